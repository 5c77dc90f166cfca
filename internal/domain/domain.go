package domain

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// Question is an immutable prompt with the set of answers accepted for it.
type Question struct {
	Prompt  string
	Answers []string

	folded []string
}

// NewQuestion builds a question. Answers are compared case-insensitively using
// Unicode case folding, so the comparison does not depend on the process locale.
func NewQuestion(prompt string, answers []string) Question {
	q := Question{
		Prompt:  prompt,
		Answers: slices.Clone(answers),
		folded:  make([]string, 0, len(answers)),
	}

	for _, a := range answers {
		q.folded = append(q.folded, fold(a))
	}

	return q
}

// Accepts reports whether text matches one of the accepted answers, ignoring case
// and surrounding whitespace.
func (q Question) Accepts(text string) bool {
	return slices.Contains(q.folded, fold(text))
}

// A cases.Caser keeps state, a new one is needed per call.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Bank maps a question prompt to its accepted answers.
type Bank map[string][]string

// Questions returns the bank as questions ordered by prompt.
func (b Bank) Questions() []Question {
	prompts := make([]string, 0, len(b))
	for p := range b {
		prompts = append(prompts, p)
	}
	slices.Sort(prompts)

	qs := make([]Question, 0, len(prompts))
	for _, p := range prompts {
		qs = append(qs, NewQuestion(p, b[p]))
	}

	return qs
}

// Standing is a participant's score at the time a snapshot was taken.
type Standing struct {
	ParticipantID string
	DisplayName   string
	Score         int
}

// EndReason tells why a contest ended.
type EndReason string

const (
	EndReasonExplicit       EndReason = "explicit"
	EndReasonRoundLimit     EndReason = "round_limit"
	EndReasonOutOfQuestions EndReason = "out_of_questions"
)

// Contest summarises a contest that has ended.
type Contest struct {
	SessionID string
	ChannelID string
	Rounds    int
	Turns     int
	Reason    EndReason
	Standings []Standing
}
