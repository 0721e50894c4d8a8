package pipeline

import (
	"context"
	"sync"
)

// Phase is the coarse lifecycle of a sequenced pipeline run.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseRunning   Phase = "running"
	PhaseFailed    Phase = "failed"
	PhaseCompleted Phase = "completed"
)

// SequencerStatus reports where a sequenced run stands. Stage is set while
// running and stays set after a failure to name the stage that broke.
type SequencerStatus struct {
	Phase Phase
	Stage string
}

// Sequencer runs named stages in a fixed order, stopping at the first
// failure. There is no partial resume: once a stage fails, later stages are
// never invoked.
type Sequencer struct {
	stages []string
	run    func(ctx context.Context, stage string) error

	mu     sync.Mutex
	status SequencerStatus
}

// NewSequencer builds a sequencer over the given stages. run executes one
// stage to completion and returns its first error.
func NewSequencer(stages []string, run func(ctx context.Context, stage string) error) *Sequencer {
	return &Sequencer{
		stages: append([]string(nil), stages...),
		run:    run,
		status: SequencerStatus{Phase: PhasePending},
	}
}

// Run executes the stages in order, returning the first stage error as-is.
func (s *Sequencer) Run(ctx context.Context) error {
	for _, stage := range s.stages {
		if err := ctx.Err(); err != nil {
			s.setStatus(SequencerStatus{Phase: PhaseFailed, Stage: stage})
			return err
		}
		s.setStatus(SequencerStatus{Phase: PhaseRunning, Stage: stage})
		if err := s.run(ctx, stage); err != nil {
			s.setStatus(SequencerStatus{Phase: PhaseFailed, Stage: stage})
			return err
		}
	}
	s.setStatus(SequencerStatus{Phase: PhaseCompleted})
	return nil
}

// Status returns the current sequencer state.
func (s *Sequencer) Status() SequencerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sequencer) setStatus(status SequencerStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
