package quiz

import (
	"errors"
	"fmt"
	"sort"
)

// ─── ERRORS ──────────────────────────────────────────────────────────────────

var (
	// ErrUnknownQuestion is returned when an answer references a question
	// that is not in the bank.
	ErrUnknownQuestion = errors.New("quiz: unknown question")

	// ErrUnknownOption is returned when an answer picks an option that does
	// not belong to its question.
	ErrUnknownOption = errors.New("quiz: unknown option")
)

// ─── BANDS ───────────────────────────────────────────────────────────────────

// Band is the coarse fit classification shown on the results screen and used
// to pick the wording of the quiz-results email.
type Band string

const (
	BandStrong     Band = "strong"     // >= 75%
	BandPromising  Band = "promising"  // >= 50%
	BandDeveloping Band = "developing" // everything else
)

const (
	strongThreshold    = 75
	promisingThreshold = 50
)

// Percentage is score/max rounded to the nearest whole percent. Zero max
// yields zero.
func Percentage(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	return int(float64(score)*100/float64(maxScore) + 0.5)
}

// BandFor classifies a percentage.
func BandFor(percentage int) Band {
	switch {
	case percentage >= strongThreshold:
		return BandStrong
	case percentage >= promisingThreshold:
		return BandPromising
	default:
		return BandDeveloping
	}
}

// ─── SCORING ─────────────────────────────────────────────────────────────────

// Answers maps question ID to the chosen option ID.
type Answers map[string]string

// SectionScore is the per-section breakdown of a Result.
type SectionScore struct {
	SectionID string `json:"section_id"`
	Title     string `json:"title"`
	Score     int    `json:"score"`
	MaxScore  int    `json:"max_score"`
}

// Result is the scored outcome of a set of answers.
type Result struct {
	Score      int            `json:"score"`
	MaxScore   int            `json:"max_score"`
	Percentage int            `json:"percentage"`
	Band       Band           `json:"band"`
	Sections   []SectionScore `json:"sections"`
	Complete   bool           `json:"complete"`
}

// Score validates answers against the bank and totals their points.
// Unanswered questions score zero but still count towards MaxScore, so a
// partial submission can never out-score a complete one.
func (b *Bank) Score(answers Answers) (Result, error) {
	if err := b.check(answers); err != nil {
		return Result{}, err
	}

	var res Result
	res.Sections = make([]SectionScore, 0, len(b.sections))

	for _, s := range b.sections {
		ss := SectionScore{SectionID: s.ID, Title: s.Title}
		for _, q := range s.Questions {
			ss.MaxScore += q.maxPoints()
			chosen, ok := answers[q.ID]
			if !ok {
				continue
			}
			for _, o := range q.Options {
				if o.ID == chosen {
					ss.Score += o.Points
					break
				}
			}
		}
		res.Score += ss.Score
		res.MaxScore += ss.MaxScore
		res.Sections = append(res.Sections, ss)
	}

	res.Percentage = Percentage(res.Score, res.MaxScore)
	res.Band = BandFor(res.Percentage)
	res.Complete = len(answers) == b.QuestionCount()

	return res, nil
}

// check rejects answers to questions or options the bank does not know.
// Keys are visited in sorted order so the reported error is deterministic.
func (b *Bank) check(answers Answers) error {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, qid := range keys {
		q, ok := b.question(qid)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownQuestion, qid)
		}
		found := false
		for _, o := range q.Options {
			if o.ID == answers[qid] {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q for question %q", ErrUnknownOption, answers[qid], qid)
		}
	}
	return nil
}

// ─── PROGRESS ────────────────────────────────────────────────────────────────

// Progress is the position of a respondent in the section flow. The widget
// shows CurrentSection; the lead form unlocks once Complete is true.
type Progress struct {
	CurrentSection int  `json:"current_section"` // index of the first section with an unanswered question; len(sections) when done
	Answered       int  `json:"answered"`
	Total          int  `json:"total"`
	Complete       bool `json:"complete"`
}

// Progress reports how far through the quiz answers gets. Answers to
// unknown questions are ignored here; Score rejects them.
func (b *Bank) Progress(answers Answers) Progress {
	p := Progress{CurrentSection: len(b.sections), Total: b.QuestionCount()}

	for si, s := range b.sections {
		for _, q := range s.Questions {
			if _, ok := answers[q.ID]; ok {
				p.Answered++
			} else if si < p.CurrentSection {
				p.CurrentSection = si
			}
		}
	}

	p.Complete = p.Answered == p.Total
	return p
}
