// Package generate runs the placeholder edit job: a single delayed flip from
// processing to verification required.
package generate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultDelay = 20 * time.Second

const MessageNoClips = "Please upload at least one video clip"

var ErrNoClips = errors.New(MessageNoClips)

type State int

const (
	StateIdle State = iota
	StateProcessing
	StateVerificationRequired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateVerificationRequired:
		return "verification_required"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ClipCounter reports how many clips are committed.
type ClipCounter interface {
	Len() int
}

type Config struct {
	Clips ClipCounter
	Clock clockwork.Clock
	Delay time.Duration
	// OnChange, when set, is called after every transition.
	OnChange func(State)
}

type Trigger struct {
	cfg Config

	mu    sync.Mutex
	state State
	stop  chan struct{}
	wg    sync.WaitGroup
}

func New(cfg Config) *Trigger {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	return &Trigger{cfg: cfg, stop: make(chan struct{})}
}

// Start begins processing. It fails with ErrNoClips when nothing is
// committed and does nothing while a run is already processing.
func (t *Trigger) Start() error {
	if t.cfg.Clips == nil || t.cfg.Clips.Len() == 0 {
		return ErrNoClips
	}

	t.mu.Lock()
	if t.state == StateProcessing {
		t.mu.Unlock()
		return nil
	}
	select {
	case <-t.stop:
		t.mu.Unlock()
		return nil
	default:
	}
	t.state = StateProcessing
	timer := t.cfg.Clock.NewTimer(t.cfg.Delay)
	t.wg.Add(1)
	t.mu.Unlock()

	slog.Info("generate: processing started", "delay", t.cfg.Delay)
	t.notify(StateProcessing)

	go func() {
		defer t.wg.Done()
		defer timer.Stop()
		select {
		case <-timer.Chan():
			t.mu.Lock()
			t.state = StateVerificationRequired
			t.mu.Unlock()
			slog.Info("generate: verification required")
			t.notify(StateVerificationRequired)
		case <-t.stop:
		}
	}()
	return nil
}

func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Close stops a pending run at shutdown.
func (t *Trigger) Close() {
	t.mu.Lock()
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Trigger) notify(s State) {
	if t.cfg.OnChange != nil {
		t.cfg.OnChange(s)
	}
}
