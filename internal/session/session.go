package session

import (
	"errors"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/tourguide/internal/models"
)

// State is one step of the presentation flow
type State string

const (
	StateIdle      State = "idle"
	StateAnalyzing State = "analyzing"
	StateResult    State = "result"
)

var (
	// ErrBusy is returned when an analysis is already running
	ErrBusy = errors.New("analysis already in progress")
	// ErrInvalidTransition is returned when the current state does not allow the move
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Session is the presentation state of one user:
//
//	idle -> analyzing      Begin
//	analyzing -> result    Complete
//	analyzing -> idle      Fail (error kept for display)
//	any -> idle            Reset (error and result cleared)
//
// Begin hands out a Run token; Complete and Fail only apply to the run that
// currently owns the analyzing state.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	state     State
	errText   string
	result    *models.AnalysisResult
	run       Run
	updatedAt time.Time
}

// Run identifies one Begin. It changes on every Begin and Reset.
type Run uint64

// Snapshot is a point-in-time copy of a session, safe to serialize
type Snapshot struct {
	ID             string                 `json:"id"`
	State          State                  `json:"state"`
	Error          string                 `json:"error,omitempty"`
	Result         *models.AnalysisResult `json:"result,omitempty"`
	AudioAvailable bool                   `json:"audio_available"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// New returns an idle session
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		state:     StateIdle,
		updatedAt: now,
	}
}

// Begin moves idle to analyzing, clears the previous error and returns the
// token the run must present to Complete or Fail
func (s *Session) Begin() (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		s.state = StateAnalyzing
		s.errText = ""
		s.run++
		s.touch()
		return s.run, nil
	case StateAnalyzing:
		return 0, ErrBusy
	default:
		return 0, ErrInvalidTransition
	}
}

// owns reports whether run is the one in progress
func (s *Session) owns(run Run) bool {
	return s.state == StateAnalyzing && s.run == run
}

// Complete stores the result of a successful run
func (s *Session) Complete(run Run, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.owns(run) {
		return ErrInvalidTransition
	}
	s.state = StateResult
	s.result = result
	s.touch()
	return nil
}

// Fail returns to idle and keeps the error text for the user
func (s *Session) Fail(run Run, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.owns(run) {
		return ErrInvalidTransition
	}
	s.state = StateIdle
	s.result = nil
	if err != nil {
		s.errText = err.Error()
	}
	s.touch()
	return nil
}

// Reset returns to idle from any state, dropping the result and its audio
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.errText = ""
	s.result = nil
	s.run++
	s.touch()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Audio returns the narration of the current result, if any
func (s *Session) Audio() (*models.Audio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateResult || !s.result.AudioAvailable() {
		return nil, false
	}
	return s.result.NarrationAudio, true
}

// Snapshot copies the session for display
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:             s.ID,
		State:          s.state,
		Error:          s.errText,
		Result:         s.result,
		AudioAvailable: s.result.AudioAvailable(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.updatedAt,
	}
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}
