// Package bank loads trivia question banks.
package bank

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/victornm/chattrivia/internal/domain"
	"github.com/victornm/chattrivia/internal/errors"
)

var validate = validator.New()

// Entry is a question and its accepted answers as found in a bank file or request.
type Entry struct {
	Prompt  string   `yaml:"prompt"  json:"prompt"  validate:"required,max=512"`
	Answers []string `yaml:"answers" json:"answers" validate:"required,min=1,dive,required,max=128"`
}

type file struct {
	Questions []Entry `yaml:"questions" validate:"required,min=1,dive"`
}

// Load reads a YAML question bank:
//
//	questions:
//	  - prompt: "2+2"
//	    answers: ["4", "four"]
func Load(path string) (domain.Bank, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bank: read %s: %w", path, err)
	}

	return Parse(b)
}

// Parse decodes a YAML question bank.
func Parse(data []byte) (domain.Bank, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("bank: malformed yaml"),
			errors.WithCause(err))
	}

	if err := validate.Struct(f); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("bank: invalid questions: %v", err),
			errors.WithCause(err))
	}

	return FromEntries(f.Questions)
}

// FromEntries builds a bank, prompts must be unique.
func FromEntries(entries []Entry) (domain.Bank, error) {
	b := make(domain.Bank, len(entries))

	for i, e := range entries {
		if err := validate.Struct(e); err != nil {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("bank: question %d: %v", i, err),
				errors.WithCause(err))
		}

		prompt := strings.TrimSpace(e.Prompt)
		if _, ok := b[prompt]; ok {
			return nil, errors.InvalidArgument("bank: duplicate question %q", prompt)
		}

		answers := make([]string, 0, len(e.Answers))
		for _, a := range e.Answers {
			answers = append(answers, strings.TrimSpace(a))
		}
		b[prompt] = answers
	}

	return b, nil
}
