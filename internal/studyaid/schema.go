package studyaid

import (
	"encoding/json"
	"strings"

	"github.com/studysparkai/backend/internal/apperr"
	"github.com/studysparkai/backend/internal/genai"
	"github.com/studysparkai/backend/internal/models"
)

const quizOptionCount = 4

// quizSchema constrains the quiz response to an array of question objects.
func quizSchema() *genai.Schema {
	return &genai.Schema{
		Type:        "ARRAY",
		Description: "An array of objects, each representing one quiz question.",
		Items: &genai.Schema{
			Type: "OBJECT",
			Properties: map[string]*genai.Schema{
				"question": {Type: "STRING", Description: "The quiz question."},
				"options": {
					Type:        "ARRAY",
					Description: "An array of 4 strings representing the answer options.",
					Items:       &genai.Schema{Type: "STRING"},
				},
				"correctAnswerIndex": {
					Type:        "INTEGER",
					Description: "The index (0-3) of the correct option in 'options'.",
				},
				"explanation": {
					Type:        "STRING",
					Description: "A brief explanation of why the correct answer is correct.",
				},
			},
			Required: []string{"question", "options", "correctAnswerIndex", "explanation"},
		},
	}
}

// faqSchema constrains the FAQ response to an array of question/answer pairs.
func faqSchema() *genai.Schema {
	return &genai.Schema{
		Type:        "ARRAY",
		Description: "An array of objects, each representing a question and its answer.",
		Items: &genai.Schema{
			Type: "OBJECT",
			Properties: map[string]*genai.Schema{
				"question": {Type: "STRING", Description: "The study question."},
				"answer":   {Type: "STRING", Description: "The answer to the question."},
			},
			Required: []string{"question", "answer"},
		},
	}
}

func schemaFor(t models.AidType) *genai.GenerationConfig {
	var s *genai.Schema
	switch t {
	case models.AidQuiz:
		s = quizSchema()
	case models.AidFAQ:
		s = faqSchema()
	default:
		return nil
	}
	return &genai.GenerationConfig{ResponseMIMEType: "application/json", ResponseSchema: s}
}

// parseQuiz decodes and validates a structured quiz response. A malformed
// item is rejected as a whole, never rendered partially.
func parseQuiz(raw string) ([]models.QuizItem, error) {
	var items []models.QuizItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, apperr.Wrap(apperr.Schema, err, "quiz response is not valid JSON")
	}
	if len(items) == 0 {
		return nil, apperr.New(apperr.Schema, "quiz response contained no questions")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Question) == "" {
			return nil, apperr.New(apperr.Schema, "quiz item %d has an empty question", i)
		}
		if len(item.Options) != quizOptionCount {
			return nil, apperr.New(apperr.Schema, "quiz item %d has %d options, want %d",
				i, len(item.Options), quizOptionCount)
		}
		if item.CorrectAnswerIndex < 0 || item.CorrectAnswerIndex >= quizOptionCount {
			return nil, apperr.New(apperr.Schema, "quiz item %d has correct answer index %d out of range",
				i, item.CorrectAnswerIndex)
		}
	}
	return items, nil
}

// parseFAQ decodes and validates a structured FAQ response.
func parseFAQ(raw string) ([]models.FAQItem, error) {
	var items []models.FAQItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, apperr.Wrap(apperr.Schema, err, "FAQ response is not valid JSON")
	}
	if len(items) == 0 {
		return nil, apperr.New(apperr.Schema, "FAQ response contained no entries")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Question) == "" || strings.TrimSpace(item.Answer) == "" {
			return nil, apperr.New(apperr.Schema, "FAQ item %d is missing a question or answer", i)
		}
	}
	return items, nil
}
