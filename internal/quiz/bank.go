// Package quiz implements the server side of the scholarship eligibility quiz.
// It holds the question bank, scores submitted answers and tracks section
// progress. It imports nothing from internal/ and can be tested without a
// database.
package quiz

import (
	"fmt"
)

// Option is one selectable answer. Points are never sent to the browser.
type Option struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Points int    `json:"-"`
}

// Question is a single multiple-choice question.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// maxPoints is the best score available on q.
func (q Question) maxPoints() int {
	best := 0
	for _, o := range q.Options {
		if o.Points > best {
			best = o.Points
		}
	}
	return best
}

// Section groups questions shown on one step of the quiz widget.
type Section struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Bank is an immutable set of sections. Build one with NewBank.
type Bank struct {
	sections []Section
	// questionID → (section index, question index)
	index map[string][2]int
}

// NewBank validates sections and indexes them. IDs must be unique across the
// whole bank, every question needs at least two options, and option points
// must be non-negative.
func NewBank(sections []Section) (*Bank, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("quiz: bank has no sections")
	}

	b := &Bank{sections: sections, index: make(map[string][2]int)}
	sectionIDs := make(map[string]bool, len(sections))

	for si, s := range sections {
		if s.ID == "" || sectionIDs[s.ID] {
			return nil, fmt.Errorf("quiz: section %d: missing or duplicate id %q", si, s.ID)
		}
		sectionIDs[s.ID] = true
		if len(s.Questions) == 0 {
			return nil, fmt.Errorf("quiz: section %q has no questions", s.ID)
		}

		for qi, q := range s.Questions {
			if _, dup := b.index[q.ID]; q.ID == "" || dup {
				return nil, fmt.Errorf("quiz: section %q question %d: missing or duplicate id %q", s.ID, qi, q.ID)
			}
			if len(q.Options) < 2 {
				return nil, fmt.Errorf("quiz: question %q needs at least two options", q.ID)
			}
			optIDs := make(map[string]bool, len(q.Options))
			for _, o := range q.Options {
				if o.ID == "" || optIDs[o.ID] {
					return nil, fmt.Errorf("quiz: question %q: missing or duplicate option id %q", q.ID, o.ID)
				}
				if o.Points < 0 {
					return nil, fmt.Errorf("quiz: question %q option %q: negative points", q.ID, o.ID)
				}
				optIDs[o.ID] = true
			}
			b.index[q.ID] = [2]int{si, qi}
		}
	}

	return b, nil
}

// MustNewBank is NewBank for package-level literals.
func MustNewBank(sections []Section) *Bank {
	b, err := NewBank(sections)
	if err != nil {
		panic(err)
	}
	return b
}

// Public returns the sections in display order. Option points are hidden
// from JSON encoding, so the result is safe to serve to the browser as-is.
func (b *Bank) Public() []Section { return b.sections }

// QuestionCount is the total number of questions across all sections.
func (b *Bank) QuestionCount() int { return len(b.index) }

func (b *Bank) question(id string) (Question, bool) {
	pos, ok := b.index[id]
	if !ok {
		return Question{}, false
	}
	return b.sections[pos[0]].Questions[pos[1]], true
}
