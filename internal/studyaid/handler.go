package studyaid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studysparkai/backend/internal/apperr"
	"github.com/studysparkai/backend/internal/logger"
	"github.com/studysparkai/backend/internal/models"
	"github.com/studysparkai/backend/internal/workflow"
)

// maxImageBytes bounds an uploaded study-material photo.
const maxImageBytes = 10 << 20

// ProfileStore defines the interface for profile persistence.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (models.UserProfile, error)
	SaveProfile(ctx context.Context, userID string, p models.UserProfile) error
}

// HistoryStore defines the read side of the audit trail.
type HistoryStore interface {
	ListHistory(ctx context.Context, userID string) ([]models.HistoryRecord, error)
}

// FileStore defines the interface for mind-map image storage.
type FileStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, string, error)
}

// Handler holds the study-workflow HTTP handlers.
type Handler struct {
	svc      *Service
	sessions *workflow.Registry
	profiles ProfileStore
	history  HistoryStore
	images   FileStore
	log      *logger.Logger
}

func NewHandler(svc *Service, sessions *workflow.Registry, profiles ProfileStore, history HistoryStore, images FileStore, log *logger.Logger) *Handler {
	return &Handler{
		svc:      svc,
		sessions: sessions,
		profiles: profiles,
		history:  history,
		images:   images,
		log:      log.With("component", "studyaid_http"),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError converts a workflow error into a JSON body carrying its kind, so
// the client can render it in the right UI region without sniffing text.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch {
	case err == workflow.ErrBusy:
		status = http.StatusConflict
	case err == workflow.ErrStale:
		status = http.StatusConflict
	case kind == apperr.Precondition:
		status = http.StatusBadRequest
	case kind == apperr.Blocked:
		status = http.StatusUnprocessableEntity
	case kind == apperr.Transport, kind == apperr.Empty, kind == apperr.Schema:
		status = http.StatusBadGateway
	}
	body := map[string]string{"error": err.Error()}
	if kind != 0 {
		body["kind"] = kind.String()
	}
	writeJSON(w, status, body)
}

func currentUser(r *http.Request) string {
	id, _ := r.Context().Value("user_id").(string)
	return id
}

func (h *Handler) loadProfile(r *http.Request, userID string) models.UserProfile {
	p, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		h.log.Warn("profile load failed, using defaults", "user_id", userID, "err", err)
		return models.DefaultProfile()
	}
	return p
}

// Extract handles the image upload and runs the extraction stage. Uploading a
// new image invalidates every result derived from the previous one.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, apperr.New(apperr.Precondition, "invalid upload: %v", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, apperr.New(apperr.Precondition, "no image uploaded"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperr.New(apperr.Precondition, "could not read the image file"))
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	profile := h.loadProfile(r, userID)
	sess := h.sessions.Session(userID)
	epoch := sess.NewImage(header.Filename)
	if _, err := sess.Begin(workflow.LaneExtraction); err != nil {
		writeError(w, err)
		return
	}

	text, err := h.svc.ExtractText(r.Context(), data, mimeType, profile.Language)
	if err != nil {
		sess.Fail(workflow.LaneExtraction, epoch, err.Error())
		writeError(w, err)
		return
	}
	if !sess.FinishExtraction(epoch, text) {
		writeError(w, workflow.ErrStale)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"extracted_text": text})
}

type generateAidRequest struct {
	Type models.AidType `json:"type"`
}

// GenerateAid runs the study-aid generation for the requested type. The
// mind-map type chains into the image stage; both stages report through
// their own lanes.
func (h *Handler) GenerateAid(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	var req generateAidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Precondition, "invalid request body"))
		return
	}
	if !req.Type.Valid() {
		writeError(w, apperr.New(apperr.Precondition, "unknown aid type %q", req.Type))
		return
	}

	sess := h.sessions.Session(userID)
	start, err := sess.BeginGeneration(workflow.LaneAid)
	if err != nil {
		writeError(w, err)
		return
	}
	if start.Text == "" {
		err := apperr.New(apperr.Precondition, "extract text from an image first")
		sess.Fail(workflow.LaneAid, start.Epoch, err.Error())
		writeError(w, err)
		return
	}

	in := GenerateInput{
		UserID:        userID,
		ImageName:     start.ImageName,
		ExtractedText: start.Text,
		Type:          req.Type,
		Profile:       h.loadProfile(r, userID),
	}
	res, err := h.svc.GenerateAid(r.Context(), in)
	if err != nil {
		sess.Fail(workflow.LaneAid, start.Epoch, err.Error())
		writeError(w, err)
		return
	}

	if res.MindMapDescription != "" {
		h.renderMindMap(w, r, sess, start.Epoch, userID, res.MindMapDescription)
		return
	}

	if !sess.FinishAid(start.Epoch, res.Aid) {
		writeError(w, workflow.ErrStale)
		return
	}
	writeJSON(w, http.StatusOK, res.Aid)
}

// renderMindMap is the second stage of the mind-map aid: its own lane, its
// own round trip, and the image persisted so it can be served back by key.
func (h *Handler) renderMindMap(w http.ResponseWriter, r *http.Request, sess *workflow.Session, epoch uint64, userID, description string) {
	if err := sess.BeginImageStage(epoch); err != nil {
		writeError(w, err)
		return
	}

	img, err := h.svc.RenderMindMap(r.Context(), description)
	if err != nil {
		sess.Fail(workflow.LaneMindMap, epoch, err.Error())
		writeError(w, err)
		return
	}

	id := uuid.New().String()
	key := fmt.Sprintf("%s/%s.png", userID, id)
	if err := h.images.Upload(r.Context(), key, img, "image/png"); err != nil {
		h.log.Error("mind-map image upload failed", "user_id", userID, "err", err)
		sess.Fail(workflow.LaneMindMap, epoch, "could not store the generated image")
		writeError(w, apperr.Wrap(apperr.Persistence, err, "could not store the generated image"))
		return
	}
	if !sess.FinishMindMap(epoch, key) {
		writeError(w, workflow.ErrStale)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"type":      string(models.AidMindMap),
		"image_key": key,
		"image_url": "/api/study/mindmaps/" + id,
	})
}

// MindMapImage serves a stored mind-map image back to its owner.
func (h *Handler) MindMapImage(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	id := chi.URLParam(r, "id")
	key := fmt.Sprintf("%s/%s.png", userID, id)

	data, ct, err := h.images.Download(r.Context(), key)
	if err != nil {
		http.Error(w, `{"error":"image not found"}`, http.StatusNotFound)
		return
	}
	if ct == "" {
		ct = "image/png"
	}
	w.Header().Set("Content-Type", ct)
	w.Write(data)
}

type explainRequest struct {
	Concept string `json:"concept"`
}

// Explain generates a focused explanation of a user-supplied concept.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	var req explainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Precondition, "invalid request body"))
		return
	}

	sess := h.sessions.Session(userID)
	start, err := sess.BeginGeneration(workflow.LaneExplanation)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.svc.ExplainConcept(r.Context(), start.Text, req.Concept, h.loadProfile(r, userID))
	if err != nil {
		sess.Fail(workflow.LaneExplanation, start.Epoch, err.Error())
		writeError(w, err)
		return
	}
	if !sess.FinishExplanation(start.Epoch, out) {
		writeError(w, workflow.ErrStale)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"concept": req.Concept, "explanation": out})
}

// Examples generates practical real-world applications of the material.
func (h *Handler) Examples(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	sess := h.sessions.Session(userID)
	start, err := sess.BeginGeneration(workflow.LaneExamples)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.svc.PracticalExamples(r.Context(), start.Text, h.loadProfile(r, userID))
	if err != nil {
		sess.Fail(workflow.LaneExamples, start.Epoch, err.Error())
		writeError(w, err)
		return
	}
	if !sess.FinishExamples(start.Epoch, out) {
		writeError(w, workflow.ErrStale)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"examples": out})
}

type quizAnswerRequest struct {
	QuestionIndex int `json:"question_index"`
	OptionIndex   int `json:"option_index"`
}

// QuizAnswer scores one answer against the active quiz. Entirely local.
func (h *Handler) QuizAnswer(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	var req quizAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Precondition, "invalid request body"))
		return
	}

	attempt, ok := h.sessions.Session(userID).Attempt()
	if !ok {
		writeError(w, apperr.New(apperr.Precondition, "no active quiz"))
		return
	}
	fb, err := attempt.Answer(req.QuestionIndex, req.OptionIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

// QuizScore returns the running score of the active quiz.
func (h *Handler) QuizScore(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	attempt, ok := h.sessions.Session(userID).Attempt()
	if !ok {
		writeError(w, apperr.New(apperr.Precondition, "no active quiz"))
		return
	}
	writeJSON(w, http.StatusOK, attempt.Score())
}

// State exposes the session's lane registry so the client can render
// per-feature loading and error states.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	writeJSON(w, http.StatusOK, h.sessions.Session(userID).Snapshot())
}

// GetProfile returns the user's study preferences, creating the defaults on
// first access.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	p, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error":"profile load failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SaveProfile replaces the user's study preferences.
func (h *Handler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	var p models.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, apperr.New(apperr.Precondition, "invalid request body"))
		return
	}
	if !p.Valid() {
		writeError(w, apperr.New(apperr.Precondition, "unknown study level or language"))
		return
	}
	if err := h.profiles.SaveProfile(r.Context(), userID, p); err != nil {
		http.Error(w, `{"error":"profile save failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// History lists the user's generation audit trail, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	recs, err := h.history.ListHistory(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error":"database error"}`, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
