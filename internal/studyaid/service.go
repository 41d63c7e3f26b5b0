// Package studyaid implements the generation workflow: text extraction from
// an uploaded image, derivative study aids (summary, quiz, FAQ, mind map),
// concept explanations and practical examples, all driven by the hosted
// generation endpoints.
package studyaid

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/studysparkai/backend/internal/apperr"
	"github.com/studysparkai/backend/internal/genai"
	"github.com/studysparkai/backend/internal/logger"
	"github.com/studysparkai/backend/internal/models"
)

// historyTruncateLen bounds the text fields stored in a history record.
const historyTruncateLen = 1000

// HistoryRecorder persists the append-only audit trail of successful
// generations. Failures are logged and never surfaced to the caller.
type HistoryRecorder interface {
	Append(ctx context.Context, rec *models.HistoryRecord) error
}

// Service runs the generation workflow against the genai endpoints.
type Service struct {
	ai      *genai.Client
	history HistoryRecorder
	log     *logger.Logger
	appID   string
}

func NewService(ai *genai.Client, history HistoryRecorder, log *logger.Logger, appID string) *Service {
	return &Service{ai: ai, history: history, log: log.With("component", "studyaid"), appID: appID}
}

// ExtractText sends the uploaded image to the vision endpoint and returns the
// extracted plain text. The result never encodes an error state; failures are
// returned as typed errors.
func (s *Service) ExtractText(ctx context.Context, image []byte, mimeType string, lang models.Language) (string, error) {
	if len(image) == 0 {
		return "", apperr.New(apperr.Precondition, "no image uploaded")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", apperr.New(apperr.Precondition, "unsupported content type %q", mimeType)
	}
	parts := []genai.Part{
		{Text: extractionPrompt(lang)},
		{InlineData: &genai.Blob{
			MIMEType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	}
	text, err := s.ai.GenerateContent(ctx, parts, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GenerateInput carries everything one study-aid generation needs.
type GenerateInput struct {
	UserID        string
	ImageName     string
	ExtractedText string
	Type          models.AidType
	Profile       models.UserProfile
}

// AidResult is the outcome of the text stage of a generation. For the
// mind-map type only MindMapDescription is set; the caller forwards it to
// RenderMindMap as a second, independently observable stage.
type AidResult struct {
	Aid                *models.StudyAid
	MindMapDescription string
}

// GenerateAid issues one generation call for the requested aid type, parses
// and validates the result, and (for displayable types) appends a history
// record. A history failure never fails the generation.
func (s *Service) GenerateAid(ctx context.Context, in GenerateInput) (*AidResult, error) {
	if strings.TrimSpace(in.ExtractedText) == "" {
		return nil, apperr.New(apperr.Precondition, "extract text from an image first")
	}
	if !in.Type.Valid() {
		return nil, apperr.New(apperr.Precondition, "unknown aid type %q", in.Type)
	}

	prompt := aidPrompt(in.Type, in.Profile, in.ExtractedText)
	raw, err := s.ai.GenerateContent(ctx, []genai.Part{{Text: prompt}}, schemaFor(in.Type))
	if err != nil {
		return nil, err
	}

	if in.Type == models.AidMindMap {
		// The description is never shown to the user; it feeds the image
		// stage. No history is written for mind maps.
		return &AidResult{MindMapDescription: strings.TrimSpace(raw)}, nil
	}

	aid := &models.StudyAid{Type: in.Type}
	switch in.Type {
	case models.AidSummary:
		aid.Summary = strings.TrimSpace(raw)
	case models.AidQuiz:
		items, err := parseQuiz(raw)
		if err != nil {
			return nil, err
		}
		aid.Quiz = items
	case models.AidFAQ:
		items, err := parseFAQ(raw)
		if err != nil {
			return nil, err
		}
		aid.FAQ = items
	}

	s.recordHistory(ctx, in, aid, prompt)
	return &AidResult{Aid: aid}, nil
}

// RenderMindMap turns a mind-map description into an image via the image
// endpoint. It is the second stage of the mind-map aid and carries its own
// loading state in the workflow session.
func (s *Service) RenderMindMap(ctx context.Context, description string) ([]byte, error) {
	if strings.TrimSpace(description) == "" {
		return nil, apperr.New(apperr.Precondition, "empty mind-map description")
	}
	return s.ai.GenerateImage(ctx, mindMapImagePrompt(description))
}

// ExplainConcept asks for a focused explanation of a user-supplied concept
// against the extracted material. No schema, no persistence.
func (s *Service) ExplainConcept(ctx context.Context, extractedText, concept string, profile models.UserProfile) (string, error) {
	if strings.TrimSpace(extractedText) == "" {
		return "", apperr.New(apperr.Precondition, "extract text from an image first")
	}
	if strings.TrimSpace(concept) == "" {
		return "", apperr.New(apperr.Precondition, "enter a concept to explain")
	}
	out, err := s.ai.GenerateContent(ctx, []genai.Part{{Text: conceptPrompt(profile, extractedText, concept)}}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// PracticalExamples asks for 2-3 real-world applications of the material's
// key concepts. No schema, no persistence.
func (s *Service) PracticalExamples(ctx context.Context, extractedText string, profile models.UserProfile) (string, error) {
	if strings.TrimSpace(extractedText) == "" {
		return "", apperr.New(apperr.Precondition, "extract text from an image first")
	}
	out, err := s.ai.GenerateContent(ctx, []genai.Part{{Text: examplesPrompt(profile, extractedText)}}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// recordHistory is a best-effort post-success hook: it must not roll back or
// fail the already-produced generation.
func (s *Service) recordHistory(ctx context.Context, in GenerateInput, aid *models.StudyAid, prompt string) {
	if s.history == nil {
		return
	}
	name := in.ImageName
	if name == "" {
		name = "unknown"
	}
	rec := &models.HistoryRecord{
		AppID:             s.appID,
		UserID:            in.UserID,
		OriginalImageName: name,
		ExtractedText:     truncate(in.ExtractedText, historyTruncateLen),
		AidType:           in.Type,
		Result:            truncate(renderResult(aid), historyTruncateLen),
		StudyLevel:        in.Profile.StudyLevel,
		Language:          in.Profile.Language,
		PromptUsed:        truncate(prompt, historyTruncateLen),
		CreatedAt:         time.Now(),
	}
	if err := s.history.Append(ctx, rec); err != nil {
		perr := apperr.Wrap(apperr.Persistence, err, "history write failed")
		s.log.Warn("history record not persisted", "user_id", in.UserID, "aid_type", in.Type, "err", perr)
	}
}

// renderResult flattens an aid to text for the audit record.
func renderResult(aid *models.StudyAid) string {
	switch aid.Type {
	case models.AidSummary:
		return aid.Summary
	case models.AidQuiz:
		b, _ := json.Marshal(aid.Quiz)
		return string(b)
	case models.AidFAQ:
		b, _ := json.Marshal(aid.FAQ)
		return string(b)
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
