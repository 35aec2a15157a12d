package domain

import "fmt"

// QuestionKind distinguishes how a question is answered and graded.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindIdentification QuestionKind = "identification"
)

// Option represents a possible answer for a question. For identification
// questions the single option's text is the canonical answer.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question is a single quiz item.
type Question struct {
	ID      string       `json:"id" yaml:"id"`
	Text    string       `json:"text" yaml:"text"`
	Image   string       `json:"image,omitempty" yaml:"image,omitempty"`
	Kind    QuestionKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Options []Option     `json:"options" yaml:"options"`
}

// Quiz is an ordered collection of questions. It is immutable once it enters the catalog.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// ClassifyQuestion derives a question's kind from its options: a question with
// exactly one option is an identification question.
func ClassifyQuestion(q Question) QuestionKind {
	if len(q.Options) == 1 {
		return KindIdentification
	}
	return KindMultipleChoice
}

// Normalize returns a copy of the quiz with every question kind made explicit.
// A kind set in the catalog must be known and agree with ClassifyQuestion.
func (q Quiz) Normalize() (Quiz, error) {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		kind := ClassifyQuestion(question)
		switch question.Kind {
		case "", kind:
		case KindMultipleChoice, KindIdentification:
			return Quiz{}, fmt.Errorf("quiz %q: question %q is %s but has %d option(s)", q.ID, question.ID, question.Kind, len(question.Options))
		default:
			return Quiz{}, fmt.Errorf("quiz %q: question %q has unknown kind %q", q.ID, question.ID, question.Kind)
		}
		question.Kind = kind
		out.Questions[i] = question
	}
	return out, nil
}

// Question looks up a question by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Option looks up an option of the question by ID.
func (q Question) Option(id string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// CorrectAnswers returns the canonical answer texts shown in reviews.
func (q Question) CorrectAnswers() []string {
	if ClassifyQuestion(q) == KindIdentification {
		if len(q.Options) == 0 {
			return nil
		}
		return []string{q.Options[0].Text}
	}
	var out []string
	for _, opt := range q.Options {
		if opt.Correct {
			out = append(out, opt.Text)
		}
	}
	return out
}
