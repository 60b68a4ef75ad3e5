package intake

import (
	"context"
	"fmt"
)

type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCommitted
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCommitted:
		return "committed"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Session is one simulated upload. Its mutable fields are guarded by the
// owning pipeline's lock.
type Session struct {
	ID   string
	Slot int
	File File

	p      *Pipeline
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	progress int
	outcome  Outcome
	err      error
}

// Done is closed once the session is committed or abandoned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Outcome() Outcome {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.outcome
}

// Err explains an abandoned session.
func (s *Session) Err() error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.err
}

func (s *Session) Progress() int {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.progress
}

// run probes the clip, then drives the progress ticker and the completion
// timer. The two are independent; only the completion timer commits.
func (s *Session) run() {
	p := s.p

	duration, err := p.cfg.Prober.Probe(s.ctx, s.File.Path)
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		p.abandon(s, ctxErr)
		return
	}
	if err != nil {
		p.reject(s, fmt.Errorf("probe %s: %w", s.File.Name, err), MessageUnreadable)
		return
	}
	if duration > p.cfg.MaxDuration {
		p.reject(s, fmt.Errorf("%w: %s > %s", ErrTooLong, duration, p.cfg.MaxDuration), p.cfg.TooLongMessage())
		return
	}

	ticker := p.cfg.Clock.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()
	timer := p.cfg.Clock.NewTimer(p.cfg.CommitDelay)
	defer timer.Stop()

	ticks := ticker.Chan()
	for {
		select {
		case <-ticks:
			pct, ok := p.advance(s)
			if !ok || pct >= 100 {
				ticker.Stop()
				ticks = nil
			}
		case <-timer.Chan():
			ticker.Stop()
			p.commit(s)
			return
		case <-s.ctx.Done():
			p.abandon(s, s.ctx.Err())
			return
		}
	}
}
