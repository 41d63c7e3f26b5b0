// Package workflow holds the per-user session state of the study workflow:
// one lane per feature with a discriminated status, a request epoch to
// discard stale asynchronous results, and an exclusive in-flight token to
// keep races away from the shared active-result slot.
package workflow

import (
	"errors"
	"sync"
	"time"

	"github.com/studysparkai/backend/internal/models"
	"github.com/studysparkai/backend/internal/quiz"
)

// Lane names an independent feature's request/result state.
type Lane string

const (
	LaneExtraction  Lane = "extraction"
	LaneAid         Lane = "aid"
	LaneMindMap     Lane = "mindmap_image"
	LaneExplanation Lane = "explanation"
	LaneExamples    Lane = "examples"
)

// Status is the discriminated state of one lane.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

var (
	// ErrBusy: another workflow request is in flight for this session.
	ErrBusy = errors.New("another request is in flight")
	// ErrStale: the session moved on (new image uploaded) since the
	// request started.
	ErrStale = errors.New("request is stale")
)

// Session is the workflow state of one user. All mutation goes through its
// methods; async completions must present the epoch they captured at start
// and are discarded when it no longer matches.
type Session struct {
	mu    sync.Mutex
	epoch uint64

	status  map[Lane]Status
	lastErr map[Lane]string

	imageName     string
	extractedText string
	aid           *models.StudyAid
	explanation   string
	examples      string
	attempt       *quiz.Attempt
}

func NewSession() *Session {
	s := &Session{}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.status = map[Lane]Status{
		LaneExtraction:  StatusIdle,
		LaneAid:         StatusIdle,
		LaneMindMap:     StatusIdle,
		LaneExplanation: StatusIdle,
		LaneExamples:    StatusIdle,
	}
	s.lastErr = map[Lane]string{}
	s.extractedText = ""
	s.aid = nil
	s.explanation = ""
	s.examples = ""
	s.attempt = nil
}

// NewImage invalidates everything derived from the previous image and bumps
// the epoch so in-flight results from before the upload are discarded on
// arrival. Returns the new epoch.
func (s *Session) NewImage(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.resetLocked()
	s.imageName = name
	return s.epoch
}

// Begin claims the session's in-flight token for a lane. It fails with
// ErrBusy while any lane is loading. Starting a result-producing lane clears
// the other feature results so at most one is active.
func (s *Session) Begin(lane Lane) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(lane)
}

func (s *Session) beginLocked(lane Lane) (uint64, error) {
	for _, st := range s.status {
		if st == StatusLoading {
			return 0, ErrBusy
		}
	}
	switch lane {
	case LaneAid, LaneMindMap, LaneExplanation, LaneExamples:
		s.aid = nil
		s.attempt = nil
		s.explanation = ""
		s.examples = ""
	}
	s.status[lane] = StatusLoading
	delete(s.lastErr, lane)
	return s.epoch, nil
}

// GenerationStart is the state a generation lane captures when it claims the
// in-flight token. Text and ImageName belong to the same upload as Epoch, so
// a result computed from them is discarded by the epoch check if a new image
// lands mid-flight.
type GenerationStart struct {
	Epoch     uint64
	Text      string
	ImageName string
}

// BeginGeneration claims the in-flight token for a generation lane and
// returns the current extracted text and image name under the same lock.
// Reading them in a separate call would let a concurrent upload slip between
// the read and the claim, pairing the previous image's text with the new
// epoch. Text is empty unless extraction has succeeded for the current image.
func (s *Session) BeginGeneration(lane Lane) (GenerationStart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	epoch, err := s.beginLocked(lane)
	if err != nil {
		return GenerationStart{}, err
	}
	start := GenerationStart{Epoch: epoch, ImageName: s.imageName}
	if s.status[LaneExtraction] == StatusSuccess {
		start.Text = s.extractedText
	}
	return start, nil
}

// BeginImageStage hands off from the aid text stage to the mind-map image
// stage: the aid lane's loading state clears before the second round trip
// starts, so the two stages are independently observable.
func (s *Session) BeginImageStage(epoch uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return ErrStale
	}
	s.status[LaneAid] = StatusIdle
	s.status[LaneMindMap] = StatusLoading
	delete(s.lastErr, LaneMindMap)
	return nil
}

// FinishExtraction applies an extraction result unless it is stale.
func (s *Session) FinishExtraction(epoch uint64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.status[LaneExtraction] = StatusSuccess
	s.extractedText = text
	return true
}

// FinishAid applies a summary/quiz/FAQ result; a quiz result also starts a
// fresh scoring attempt.
func (s *Session) FinishAid(epoch uint64, aid *models.StudyAid) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.status[LaneAid] = StatusSuccess
	s.aid = aid
	if aid != nil && aid.Type == models.AidQuiz {
		s.attempt = quiz.NewAttempt(aid.Quiz)
	} else {
		s.attempt = nil
	}
	return true
}

// FinishMindMap applies the stored image key as the terminal mind-map result.
func (s *Session) FinishMindMap(epoch uint64, imageKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.status[LaneMindMap] = StatusSuccess
	s.aid = &models.StudyAid{Type: models.AidMindMap, ImageKey: imageKey}
	return true
}

// FinishExplanation applies a concept explanation result.
func (s *Session) FinishExplanation(epoch uint64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.status[LaneExplanation] = StatusSuccess
	s.explanation = text
	return true
}

// FinishExamples applies a practical-examples result.
func (s *Session) FinishExamples(epoch uint64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.status[LaneExamples] = StatusSuccess
	s.examples = text
	return true
}

// Fail records a lane error unless the result is stale.
func (s *Session) Fail(lane Lane, epoch uint64, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.status[lane] = StatusError
	s.lastErr[lane] = msg
	return true
}

// ExtractedText returns the current material, if extraction has succeeded.
func (s *Session) ExtractedText() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status[LaneExtraction] != StatusSuccess || s.extractedText == "" {
		return "", false
	}
	return s.extractedText, true
}

// Attempt returns the active quiz attempt, if the active aid is a quiz.
func (s *Session) Attempt() (*quiz.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == nil {
		return nil, false
	}
	return s.attempt, true
}

// LaneView is one lane's state as exposed to the client.
type LaneView struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Snapshot is the full session state as exposed to the client.
type Snapshot struct {
	Epoch         uint64            `json:"epoch"`
	ImageName     string            `json:"image_name,omitempty"`
	ExtractedText string            `json:"extracted_text,omitempty"`
	Lanes         map[Lane]LaneView `json:"lanes"`
	Aid           *models.StudyAid  `json:"aid,omitempty"`
	Explanation   string            `json:"explanation,omitempty"`
	Examples      string            `json:"examples,omitempty"`
	Quiz          *quiz.Score       `json:"quiz,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Epoch:         s.epoch,
		ImageName:     s.imageName,
		ExtractedText: s.extractedText,
		Lanes:         make(map[Lane]LaneView, len(s.status)),
		Aid:           s.aid,
		Explanation:   s.explanation,
		Examples:      s.examples,
	}
	for lane, st := range s.status {
		snap.Lanes[lane] = LaneView{Status: st, Error: s.lastErr[lane]}
	}
	if s.attempt != nil {
		sc := s.attempt.Score()
		snap.Quiz = &sc
	}
	return snap
}

// Registry maps user ids to their workflow sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	sess     *Session
	lastSeen time.Time
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*registryEntry)}
}

// Session returns the user's session, creating one on first use.
func (r *Registry) Session(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[userID]
	if !ok {
		e = &registryEntry{sess: NewSession()}
		r.sessions[userID] = e
	}
	e.lastSeen = time.Now()
	return e.sess
}

// PruneIdle evicts sessions not touched within maxIdle, so the registry does
// not grow without bound over the process lifetime. Returns the number of
// sessions evicted. An evicted user gets a fresh session on next access.
func (r *Registry) PruneIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	n := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}
