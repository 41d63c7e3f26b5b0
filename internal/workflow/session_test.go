package workflow

import (
	"testing"
	"time"

	"github.com/studysparkai/backend/internal/models"
)

func quizAid() *models.StudyAid {
	return &models.StudyAid{
		Type: models.AidQuiz,
		Quiz: []models.QuizItem{{
			Question:           "q",
			Options:            []string{"a", "b", "c", "d"},
			CorrectAnswerIndex: 0,
			Explanation:        "e",
		}},
	}
}

func TestBegin_OneInFlightPerSession(t *testing.T) {
	s := NewSession()
	epoch := s.NewImage("notes.png")
	s.FinishExtraction(epoch, "text")

	if _, err := s.Begin(LaneAid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Begin(LaneExamples); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestNewImage_InvalidatesEverything(t *testing.T) {
	s := NewSession()
	epoch := s.NewImage("a.png")
	if !s.FinishExtraction(epoch, "old text") {
		t.Fatalf("extraction result rejected")
	}
	if _, err := s.Begin(LaneAid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.FinishAid(epoch, quizAid()) {
		t.Fatalf("aid result rejected")
	}

	s.NewImage("b.png")

	if _, ok := s.ExtractedText(); ok {
		t.Fatalf("extracted text survived a new upload")
	}
	if _, ok := s.Attempt(); ok {
		t.Fatalf("quiz attempt survived a new upload")
	}
	snap := s.Snapshot()
	if snap.Aid != nil || snap.ImageName != "b.png" {
		t.Fatalf("stale state after new upload: %+v", snap)
	}
}

func TestFinish_DiscardsStaleEpoch(t *testing.T) {
	s := NewSession()
	old := s.NewImage("a.png")
	if _, err := s.Begin(LaneExtraction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second upload arrives while the first extraction is in flight.
	s.NewImage("b.png")

	if s.FinishExtraction(old, "text from a.png") {
		t.Fatalf("stale extraction result was applied")
	}
	if s.Fail(LaneExtraction, old, "late failure") {
		t.Fatalf("stale failure was applied")
	}
	if _, ok := s.ExtractedText(); ok {
		t.Fatalf("stale text visible")
	}
}

func TestBegin_ClearsOtherFeatureResults(t *testing.T) {
	s := NewSession()
	epoch := s.NewImage("a.png")
	s.FinishExtraction(epoch, "text")

	if _, err := s.Begin(LaneAid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.FinishAid(epoch, quizAid())

	if _, err := s.Begin(LaneExplanation); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.Snapshot()
	if snap.Aid != nil || snap.Quiz != nil {
		t.Fatalf("starting an explanation kept the previous aid active: %+v", snap)
	}
	s.FinishExplanation(epoch, "an explanation")

	if _, err := s.Begin(LaneExamples); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap := s.Snapshot(); snap.Explanation != "" {
		t.Fatalf("starting examples kept the explanation active")
	}
}

func TestBeginImageStage_ClearsAidLoading(t *testing.T) {
	s := NewSession()
	epoch := s.NewImage("a.png")
	s.FinishExtraction(epoch, "text")

	if _, err := s.Begin(LaneAid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.BeginImageStage(epoch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := s.Snapshot()
	if snap.Lanes[LaneAid].Status != StatusIdle {
		t.Fatalf("aid lane still %q after handoff", snap.Lanes[LaneAid].Status)
	}
	if snap.Lanes[LaneMindMap].Status != StatusLoading {
		t.Fatalf("mind-map lane not loading after handoff")
	}

	if !s.FinishMindMap(epoch, "user/img.png") {
		t.Fatalf("mind-map result rejected")
	}
	snap = s.Snapshot()
	if snap.Aid == nil || snap.Aid.Type != models.AidMindMap || snap.Aid.ImageKey != "user/img.png" {
		t.Fatalf("mind-map result not applied: %+v", snap.Aid)
	}
}

func TestBeginImageStage_RejectsStaleEpoch(t *testing.T) {
	s := NewSession()
	epoch := s.NewImage("a.png")
	s.FinishExtraction(epoch, "text")
	if _, err := s.Begin(LaneAid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.NewImage("b.png")

	if err := s.BeginImageStage(epoch); err != ErrStale {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestFail_RecordsLaneError(t *testing.T) {
	s := NewSession()
	epoch := s.NewImage("a.png")
	s.FinishExtraction(epoch, "text")
	if _, err := s.Begin(LaneAid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Fail(LaneAid, epoch, "upstream exploded") {
		t.Fatalf("failure not applied")
	}
	snap := s.Snapshot()
	lane := snap.Lanes[LaneAid]
	if lane.Status != StatusError || lane.Error != "upstream exploded" {
		t.Fatalf("unexpected lane state: %+v", lane)
	}
	// A failed lane releases the in-flight token.
	if _, err := s.Begin(LaneAid); err != nil {
		t.Fatalf("could not retry after failure: %v", err)
	}
}

func TestBeginGeneration_CapturesTextAndEpochTogether(t *testing.T) {
	s := NewSession()
	epoch := s.NewImage("a.png")
	s.FinishExtraction(epoch, "text from a.png")

	// A second upload lands before the generation claims the token. The
	// captured state must belong to b.png, not pair a.png's text with the
	// new epoch.
	s.NewImage("b.png")

	start, err := s.BeginGeneration(LaneAid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Text != "" {
		t.Fatalf("text from a.png leaked into the b.png session: %q", start.Text)
	}
	if start.ImageName != "b.png" {
		t.Fatalf("unexpected image name: %q", start.ImageName)
	}
}

func TestBeginGeneration_StaleResultDiscarded(t *testing.T) {
	s := NewSession()
	epoch := s.NewImage("a.png")
	s.FinishExtraction(epoch, "text from a.png")

	start, err := s.BeginGeneration(LaneAid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Text != "text from a.png" || start.Epoch != epoch {
		t.Fatalf("unexpected start state: %+v", start)
	}

	// The upload lands while the generation is in flight.
	s.NewImage("b.png")

	aid := &models.StudyAid{Type: models.AidSummary, Summary: "summary of text from a.png"}
	if s.FinishAid(start.Epoch, aid) {
		t.Fatalf("aid derived from a.png text applied to the b.png session")
	}
	if snap := s.Snapshot(); snap.Aid != nil {
		t.Fatalf("stale aid visible: %+v", snap.Aid)
	}
}

func TestRegistry_PrunesIdleSessions(t *testing.T) {
	r := NewRegistry()
	a := r.Session("u1")

	if n := r.PruneIdle(time.Hour); n != 0 {
		t.Fatalf("fresh session evicted: %d", n)
	}
	time.Sleep(10 * time.Millisecond)
	if n := r.PruneIdle(time.Millisecond); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if r.Session("u1") == a {
		t.Fatalf("expected a fresh session after eviction")
	}
}

func TestRegistry_ReturnsSameSessionPerUser(t *testing.T) {
	r := NewRegistry()
	a := r.Session("u1")
	if r.Session("u1") != a {
		t.Fatalf("expected the same session for the same user")
	}
	if r.Session("u2") == a {
		t.Fatalf("expected distinct sessions for distinct users")
	}
}
