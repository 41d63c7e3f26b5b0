package studyaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/studysparkai/backend/internal/genai"
	"github.com/studysparkai/backend/internal/logger"
	"github.com/studysparkai/backend/internal/models"
	"github.com/studysparkai/backend/internal/workflow"
)

type fakeProfiles struct {
	saved map[string]models.UserProfile
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	if p, ok := f.saved[userID]; ok {
		return p, nil
	}
	return models.DefaultProfile(), nil
}

func (f *fakeProfiles) SaveProfile(ctx context.Context, userID string, p models.UserProfile) error {
	if f.saved == nil {
		f.saved = map[string]models.UserProfile{}
	}
	f.saved[userID] = p
	return nil
}

type fakeHistoryList struct{}

func (fakeHistoryList) ListHistory(ctx context.Context, userID string) ([]models.HistoryRecord, error) {
	return nil, nil
}

type fakeImages struct {
	objects map[string][]byte
}

func (f *fakeImages) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	return nil
}

func (f *fakeImages) Download(ctx context.Context, key string) ([]byte, string, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("no such object %q", key)
	}
	return data, "image/png", nil
}

// newTestRouter mounts the study routes behind a middleware that injects a
// fixed user id, mirroring the session middleware.
func newTestRouter(t *testing.T, up *fakeUpstream) (*chi.Mux, *fakeImages) {
	t.Helper()
	ts := httptest.NewServer(up.handler())
	t.Cleanup(ts.Close)
	lg, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	svc := newTestServiceWithServer(t, ts.URL, lg)
	images := &fakeImages{}
	h := NewHandler(svc, workflow.NewRegistry(), &fakeProfiles{}, fakeHistoryList{}, images, lg)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), "user_id", "user-1")))
		})
	})
	r.Post("/api/study/extract", h.Extract)
	r.Post("/api/study/aids", h.GenerateAid)
	r.Post("/api/study/explain", h.Explain)
	r.Post("/api/study/examples", h.Examples)
	r.Post("/api/study/quiz/answers", h.QuizAnswer)
	r.Get("/api/study/quiz/score", h.QuizScore)
	r.Get("/api/study/state", h.State)
	r.Get("/api/study/mindmaps/{id}", h.MindMapImage)
	return r, images
}

func uploadImage(t *testing.T, r http.Handler) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="notes.png"`)
	hdr.Set("Content-Type", "image/png")
	fw, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("form part: %v", err)
	}
	fw.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/study/extract", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("extract returned %d: %s", rec.Code, rec.Body.String())
	}
}

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AidWithoutExtractionIsPrecondition(t *testing.T) {
	up := &fakeUpstream{textBody: candidateJSON(t, "never used")}
	r, _ := newTestRouter(t, up)

	rec := postJSON(t, r, "/api/study/aids", map[string]string{"type": "summary"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["kind"] != "precondition" {
		t.Fatalf("expected a precondition kind, got %+v", body)
	}
	if up.textCalls.Load() != 0 {
		t.Fatalf("precondition failure must not reach the network")
	}
}

func TestHandler_QuizFlowOverHTTP(t *testing.T) {
	items := make([]models.QuizItem, 2)
	for i := range items {
		items[i] = models.QuizItem{
			Question:           "q",
			Options:            []string{"a", "b", "c", "d"},
			CorrectAnswerIndex: 1,
			Explanation:        "e",
		}
	}
	payload, _ := json.Marshal(items)
	up := &fakeUpstream{textBody: candidateJSON(t, "extracted text")}
	r, _ := newTestRouter(t, up)
	uploadImage(t, r)

	up.setTextBody(candidateJSON(t, string(payload)))
	rec := postJSON(t, r, "/api/study/aids", map[string]string{"type": "quiz"})
	if rec.Code != http.StatusOK {
		t.Fatalf("aid generation returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, r, "/api/study/quiz/answers", map[string]int{"question_index": 0, "option_index": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = postJSON(t, r, "/api/study/quiz/answers", map[string]int{"question_index": 1, "option_index": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer returned %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/study/quiz/score", nil)
	scoreRec := httptest.NewRecorder()
	r.ServeHTTP(scoreRec, req)
	var sc struct {
		Score     int  `json:"score"`
		Total     int  `json:"total"`
		Completed bool `json:"completed"`
	}
	json.Unmarshal(scoreRec.Body.Bytes(), &sc)
	if sc.Score != 1 || sc.Total != 2 || !sc.Completed {
		t.Fatalf("unexpected score: %+v", sc)
	}
}

func TestHandler_BlockedGenerationIs422(t *testing.T) {
	up := &fakeUpstream{textBody: candidateJSON(t, "extracted text")}
	r, _ := newTestRouter(t, up)
	uploadImage(t, r)

	up.setTextBody(`{"promptFeedback":{"blockReason":"SAFETY","blockReasonMessage":"flagged"}}`)
	rec := postJSON(t, r, "/api/study/aids", map[string]string{"type": "summary"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["kind"] != "content_blocked" {
		t.Fatalf("expected content_blocked kind, got %+v", body)
	}
	if !strings.Contains(body["error"], "SAFETY") {
		t.Fatalf("block reason not surfaced: %+v", body)
	}
}

func TestHandler_UpstreamFailureIs502(t *testing.T) {
	up := &fakeUpstream{textBody: candidateJSON(t, "extracted text")}
	r, _ := newTestRouter(t, up)
	uploadImage(t, r)

	up.setTextStatus(http.StatusServiceUnavailable)
	up.setTextBody(`{"error":{"message":"quota exceeded"}}`)
	rec := postJSON(t, r, "/api/study/aids", map[string]string{"type": "summary"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["kind"] != "transport" || !strings.Contains(body["error"], "quota exceeded") {
		t.Fatalf("provider failure not mapped to transport: %+v", body)
	}
}

func TestHandler_MindMapStoresAndServesImage(t *testing.T) {
	up := &fakeUpstream{
		textBody:    candidateJSON(t, "extracted text"),
		predictBody: `{"predictions":[{"bytesBase64Encoded":"aW1hZ2U="}]}`,
	}
	r, images := newTestRouter(t, up)
	uploadImage(t, r)

	up.setTextBody(candidateJSON(t, "a mind-map description"))
	rec := postJSON(t, r, "/api/study/aids", map[string]string{"type": "mindmap_description"})
	if rec.Code != http.StatusOK {
		t.Fatalf("mind-map generation returned %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["image_url"] == "" || body["image_key"] == "" {
		t.Fatalf("mind-map response missing image reference: %+v", body)
	}
	if len(images.objects) != 1 {
		t.Fatalf("expected one stored object, got %d", len(images.objects))
	}

	req := httptest.NewRequest(http.MethodGet, body["image_url"], nil)
	imgRec := httptest.NewRecorder()
	r.ServeHTTP(imgRec, req)
	if imgRec.Code != http.StatusOK || imgRec.Body.String() != "image" {
		t.Fatalf("stored image not served back: %d %q", imgRec.Code, imgRec.Body.String())
	}
}

func TestHandler_MindMapEmptyImageStageFails(t *testing.T) {
	up := &fakeUpstream{
		textBody:    candidateJSON(t, "extracted text"),
		predictBody: `{"predictions":[]}`,
	}
	r, images := newTestRouter(t, up)
	uploadImage(t, r)

	up.setTextBody(candidateJSON(t, "a mind-map description"))
	rec := postJSON(t, r, "/api/study/aids", map[string]string{"type": "mindmap_description"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["kind"] != "empty_response" {
		t.Fatalf("expected empty_response kind, got %+v", body)
	}
	if len(images.objects) != 0 {
		t.Fatalf("no image may be stored on failure")
	}

	// The failure lands on the image stage's own lane.
	req := httptest.NewRequest(http.MethodGet, "/api/study/state", nil)
	stateRec := httptest.NewRecorder()
	r.ServeHTTP(stateRec, req)
	var snap workflow.Snapshot
	json.Unmarshal(stateRec.Body.Bytes(), &snap)
	if snap.Lanes[workflow.LaneMindMap].Status != workflow.StatusError {
		t.Fatalf("mind-map lane not in error state: %+v", snap.Lanes)
	}
	if snap.Lanes[workflow.LaneAid].Status != workflow.StatusIdle {
		t.Fatalf("aid lane should have been cleared before the handoff: %+v", snap.Lanes)
	}
}

// newTestServiceWithServer builds a Service against an already-running fake
// upstream URL.
func newTestServiceWithServer(t *testing.T, url string, lg *logger.Logger) *Service {
	t.Helper()
	client := genai.NewClient(lg, url, "k", "text-model", "image-model", 4)
	return NewService(client, &fakeRecorder{}, lg, "study-spark-test")
}
