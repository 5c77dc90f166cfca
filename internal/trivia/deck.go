package trivia

import (
	"math/rand/v2"

	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/errors"
)

// ErrEmptyBank is returned when a contest is built from a bank without questions.
var ErrEmptyBank = errors.InvalidArgument("question bank is empty")

// Deck is the finite, shuffled sequence of questions of one contest.
// It is never refilled.
//
// A Deck is not safe for concurrent use, Session serializes access to it.
type Deck struct {
	questions []domain.Question
}

// NewDeck copies the questions and shuffles them once. A nil seed picks a random one.
func NewDeck(questions []domain.Question, seed *uint64) (*Deck, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyBank
	}

	var r *rand.Rand
	if seed != nil {
		r = rand.New(rand.NewPCG(*seed, *seed))
	} else {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	d := &Deck{questions: make([]domain.Question, len(questions))}
	copy(d.questions, questions)
	r.Shuffle(len(d.questions), func(i, j int) {
		d.questions[i], d.questions[j] = d.questions[j], d.questions[i]
	})

	return d, nil
}

// Draw removes and returns the next question. Callers must check IsEmpty first.
func (d *Deck) Draw() domain.Question {
	if len(d.questions) == 0 {
		panic("trivia: draw from an empty deck")
	}

	q := d.questions[0]
	d.questions = d.questions[1:]
	return q
}

// IsEmpty reports whether every question has been drawn.
func (d *Deck) IsEmpty() bool {
	return len(d.questions) == 0
}

// Len returns the number of questions left.
func (d *Deck) Len() int {
	return len(d.questions)
}
