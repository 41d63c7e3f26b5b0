// Package quiz scores multiple-choice answers against a generated quiz.
// Scoring is purely local: no network, no persistence.
package quiz

import (
	"sync"

	"github.com/studysparkai/backend/internal/apperr"
	"github.com/studysparkai/backend/internal/models"
)

// Answer records one question's transition out of the unanswered state.
type Answer struct {
	ChosenIndex int  `json:"chosen_index"`
	Correct     bool `json:"correct"`
}

// Feedback is returned after an answer is submitted (or re-submitted).
type Feedback struct {
	QuestionIndex int    `json:"question_index"`
	Correct       bool   `json:"correct"`
	CorrectIndex  int    `json:"correct_index"`
	Explanation   string `json:"explanation"`
	Repeated      bool   `json:"repeated"`
	Score         int    `json:"score"`
	Answered      int    `json:"answered"`
	Total         int    `json:"total"`
	Completed     bool   `json:"completed"`
}

// Attempt tracks per-question state for one generated quiz. Each question
// moves one way from unanswered to answered; re-answering has no effect.
type Attempt struct {
	mu      sync.Mutex
	items   []models.QuizItem
	answers map[int]Answer
	score   int
}

func NewAttempt(items []models.QuizItem) *Attempt {
	return &Attempt{items: items, answers: make(map[int]Answer, len(items))}
}

// Answer scores one choice. A second answer for the same question returns the
// originally recorded outcome without mutating the score.
func (a *Attempt) Answer(questionIndex, optionIndex int) (Feedback, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if questionIndex < 0 || questionIndex >= len(a.items) {
		return Feedback{}, apperr.New(apperr.Precondition, "question index %d out of range", questionIndex)
	}
	item := a.items[questionIndex]
	if optionIndex < 0 || optionIndex >= len(item.Options) {
		return Feedback{}, apperr.New(apperr.Precondition, "option index %d out of range", optionIndex)
	}

	if prev, ok := a.answers[questionIndex]; ok {
		return a.feedbackLocked(questionIndex, prev, true), nil
	}

	ans := Answer{ChosenIndex: optionIndex, Correct: optionIndex == item.CorrectAnswerIndex}
	a.answers[questionIndex] = ans
	if ans.Correct {
		a.score++
	}
	return a.feedbackLocked(questionIndex, ans, false), nil
}

func (a *Attempt) feedbackLocked(questionIndex int, ans Answer, repeated bool) Feedback {
	item := a.items[questionIndex]
	return Feedback{
		QuestionIndex: questionIndex,
		Correct:       ans.Correct,
		CorrectIndex:  item.CorrectAnswerIndex,
		Explanation:   item.Explanation,
		Repeated:      repeated,
		Score:         a.score,
		Answered:      len(a.answers),
		Total:         len(a.items),
		Completed:     len(a.answers) == len(a.items),
	}
}

// Score is the running result: correct count, answered count, question count,
// and whether every question has been answered.
type Score struct {
	Score     int  `json:"score"`
	Answered  int  `json:"answered"`
	Total     int  `json:"total"`
	Completed bool `json:"completed"`
}

func (a *Attempt) Score() Score {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Score{
		Score:     a.score,
		Answered:  len(a.answers),
		Total:     len(a.items),
		Completed: len(a.answers) == len(a.items),
	}
}
