package domain

import "strings"

// NormalizeAnswer trims, lowercases and collapses internal whitespace runs.
func NormalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Grade reports whether answer is correct for question. A nil answer is incorrect.
// It is a pure function of its inputs; reviews call it again on stored answers.
func Grade(question Question, answer *AnswerRecord) bool {
	if answer == nil {
		return false
	}
	switch ClassifyQuestion(question) {
	case KindIdentification:
		if answer.TextAnswer == nil || len(question.Options) == 0 {
			return false
		}
		return NormalizeAnswer(*answer.TextAnswer) == NormalizeAnswer(question.Options[0].Text)
	default:
		if answer.OptionID == nil {
			return false
		}
		opt, ok := question.Option(*answer.OptionID)
		return ok && opt.Correct
	}
}

// ValidateAnswers checks answers against the quiz before anything is stored:
// every answer must target a known question at most once, carry exactly one of
// option/text matching the question kind, and reference an option of that question.
func ValidateAnswers(quiz Quiz, answers []AnswerRecord) error {
	seen := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		question, ok := quiz.Question(a.QuestionID)
		if !ok {
			return Invalid("unknown question %q", a.QuestionID)
		}
		if _, dup := seen[a.QuestionID]; dup {
			return Invalid("question %q answered more than once", a.QuestionID)
		}
		seen[a.QuestionID] = struct{}{}

		if (a.OptionID == nil) == (a.TextAnswer == nil) {
			return Invalid("answer to %q must set exactly one of optionId or textAnswer", a.QuestionID)
		}
		switch ClassifyQuestion(question) {
		case KindIdentification:
			if a.TextAnswer == nil {
				return Invalid("question %q expects a text answer", a.QuestionID)
			}
		default:
			if a.OptionID == nil {
				return Invalid("question %q expects an option", a.QuestionID)
			}
			if _, ok := question.Option(*a.OptionID); !ok {
				return Invalid("option %q does not belong to question %q", *a.OptionID, a.QuestionID)
			}
		}
	}
	return nil
}

// ScoreAnswers counts correct answers. Questions without an answer count as incorrect.
func ScoreAnswers(quiz Quiz, answers []AnswerRecord) int {
	byQuestion := indexAnswers(answers)
	score := 0
	for _, question := range quiz.Questions {
		if Grade(question, byQuestion[question.ID]) {
			score++
		}
	}
	return score
}

func indexAnswers(answers []AnswerRecord) map[string]*AnswerRecord {
	out := make(map[string]*AnswerRecord, len(answers))
	for i := range answers {
		out[answers[i].QuestionID] = &answers[i]
	}
	return out
}

// BuildReview pairs every quiz question, in order, with the stored answer and the
// canonical answer, recomputing correctness with Grade.
func BuildReview(quiz Quiz, answers []AnswerRecord) []ReviewEntry {
	byQuestion := indexAnswers(answers)
	entries := make([]ReviewEntry, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		answer := byQuestion[question.ID]
		entry := ReviewEntry{
			QuestionID:    question.ID,
			QuestionText:  question.Text,
			Image:         question.Image,
			Kind:          ClassifyQuestion(question),
			CorrectAnswer: question.CorrectAnswers(),
			IsCorrect:     Grade(question, answer),
		}
		if answer != nil {
			entry.StudentAnswer = reviewAnswer(question, *answer)
		}
		entries = append(entries, entry)
	}
	return entries
}

func reviewAnswer(question Question, answer AnswerRecord) *ReviewAnswer {
	if answer.TextAnswer != nil {
		return &ReviewAnswer{Text: *answer.TextAnswer}
	}
	if answer.OptionID == nil {
		return nil
	}
	out := &ReviewAnswer{OptionID: answer.OptionID}
	if opt, ok := question.Option(*answer.OptionID); ok {
		out.Text = opt.Text
	}
	return out
}
