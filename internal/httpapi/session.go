package httpapi

import (
	"sync"

	"cartpilot/internal/pipeline"
)

// Session holds the single pipeline run the API works on. Only one pipeline
// operation may run at a time.
type Session struct {
	mu    sync.Mutex
	busy  bool
	pc    *pipeline.PipelineContext
	runID int
}

func NewSession() *Session {
	return &Session{pc: pipeline.NewContext()}
}

// Acquire claims the session and reports false if an operation is in flight.
func (s *Session) Acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Session) Release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) Context() (*pipeline.PipelineContext, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pc, s.runID
}

func (s *Session) set(pc *pipeline.PipelineContext, runID int) {
	s.mu.Lock()
	s.pc = pc
	s.runID = runID
	s.mu.Unlock()
}
