// Package intake validates locally selected clips and runs the simulated
// progressive upload that commits them into one of three slots.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	MaxSlots = 3

	DefaultMaxDuration  = 30 * time.Second
	DefaultProgressStep = 5
	DefaultTickInterval = 100 * time.Millisecond
	DefaultCommitDelay  = 2 * time.Second
)

const MessageUnreadable = "Could not read video metadata"

var (
	ErrInvalidSlot = errors.New("intake: slot out of range")
	ErrNoFile      = errors.New("intake: no file selected")
	ErrTooLong     = errors.New("intake: clip exceeds maximum duration")
	ErrSuperseded  = errors.New("intake: superseded by a newer selection")
	ErrClosed      = errors.New("intake: pipeline closed")
)

// File is a clip the user selected, already available on local disk.
type File struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
}

type Clip struct {
	Slot        int
	File        File
	Preview     string
	CommittedAt time.Time
}

// Observer receives the state transitions the presentation layer renders.
// Calls are made without the pipeline lock held and may come from any
// session goroutine.
type Observer interface {
	Progress(slot, percent int)
	Committed(clip Clip)
	Rejected(slot int, message string)
	// Discarded hands back a file the pipeline no longer references.
	Discarded(file File)
}

type NopObserver struct{}

func (NopObserver) Progress(int, int)    {}
func (NopObserver) Committed(Clip)       {}
func (NopObserver) Rejected(int, string) {}
func (NopObserver) Discarded(File)       {}

type Config struct {
	Prober   Prober
	Observer Observer
	Previews *Previews
	Clock    clockwork.Clock

	MaxDuration  time.Duration
	ProgressStep int
	TickInterval time.Duration
	CommitDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Observer == nil {
		c.Observer = NopObserver{}
	}
	if c.Previews == nil {
		c.Previews = NewPreviews()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.ProgressStep <= 0 {
		c.ProgressStep = DefaultProgressStep
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.CommitDelay <= 0 {
		c.CommitDelay = DefaultCommitDelay
	}
	return c
}

// TooLongMessage is the user-visible rejection for an over-long clip.
func (c Config) TooLongMessage() string {
	return fmt.Sprintf("Video must be %d seconds or less", int(c.withDefaults().MaxDuration/time.Second))
}

type Pipeline struct {
	cfg Config
	wg  sync.WaitGroup

	mu     sync.Mutex
	clips  [MaxSlots]*Clip
	active [MaxSlots]*Session
	closed bool
}

func New(cfg Config) *Pipeline {
	if cfg.Prober == nil {
		panic("intake: Config.Prober is required")
	}
	return &Pipeline{cfg: cfg.withDefaults()}
}

func (p *Pipeline) Previews() *Previews {
	return p.cfg.Previews
}

// Submit starts an upload session for file in slot. It returns a nil session
// and no error when every slot already holds a clip. A session still pending
// in the same slot is abandoned first.
//
// ctx bounds the whole session, not just the call.
func (p *Pipeline) Submit(ctx context.Context, file File, slot int) (*Session, error) {
	if slot < 0 || slot >= MaxSlots {
		return nil, ErrInvalidSlot
	}
	if file.Path == "" {
		return nil, ErrNoFile
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.lenLocked() >= MaxSlots {
		p.mu.Unlock()
		slog.Info("intake: all slots filled, ignoring selection", "slot", slot, "file", file.Name)
		return nil, nil
	}

	var superseded *Session
	if prev := p.active[slot]; prev != nil && p.finishLocked(prev, OutcomeAbandoned, ErrSuperseded) {
		superseded = prev
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:     uuid.NewString(),
		Slot:   slot,
		File:   file,
		p:      p,
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.active[slot] = s
	p.wg.Add(1)
	p.mu.Unlock()

	if superseded != nil {
		slog.Info("intake: session superseded", "session", superseded.ID, "slot", slot)
		p.cfg.Observer.Discarded(superseded.File)
	}

	go func() {
		defer p.wg.Done()
		s.run()
	}()
	return s, nil
}

// Release empties slot and revokes its preview.
func (p *Pipeline) Release(slot int) bool {
	if slot < 0 || slot >= MaxSlots {
		return false
	}
	p.mu.Lock()
	clip := p.clips[slot]
	if clip == nil {
		p.mu.Unlock()
		return false
	}
	p.clips[slot] = nil
	p.cfg.Previews.Revoke(clip.Preview)
	p.mu.Unlock()

	slog.Info("intake: clip released", "slot", slot, "file", clip.File.Name)
	p.cfg.Observer.Discarded(clip.File)
	return true
}

// Close abandons pending sessions, revokes every preview and waits for
// session goroutines to exit.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	var discarded []File
	for i, s := range p.active {
		if s != nil && p.finishLocked(s, OutcomeAbandoned, ErrClosed) {
			discarded = append(discarded, s.File)
		}
		p.active[i] = nil
	}
	for i, clip := range p.clips {
		if clip != nil {
			p.cfg.Previews.Revoke(clip.Preview)
			discarded = append(discarded, clip.File)
			p.clips[i] = nil
		}
	}
	p.mu.Unlock()

	p.wg.Wait()
	for _, f := range discarded {
		p.cfg.Observer.Discarded(f)
	}
}

func (p *Pipeline) Clips() []Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	clips := make([]Clip, 0, MaxSlots)
	for _, c := range p.clips {
		if c != nil {
			clips = append(clips, *c)
		}
	}
	return clips
}

func (p *Pipeline) Clip(slot int) (Clip, bool) {
	if slot < 0 || slot >= MaxSlots {
		return Clip{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.clips[slot]; c != nil {
		return *c, true
	}
	return Clip{}, false
}

func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lenLocked()
}

// Progress reports the pending upload in slot, or 0 when none is running.
func (p *Pipeline) Progress(slot int) int {
	if slot < 0 || slot >= MaxSlots {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s := p.active[slot]; s != nil {
		return s.progress
	}
	return 0
}

func (p *Pipeline) Active(slot int) *Session {
	if slot < 0 || slot >= MaxSlots {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[slot]
}

func (p *Pipeline) lenLocked() int {
	n := 0
	for _, c := range p.clips {
		if c != nil {
			n++
		}
	}
	return n
}

// finishLocked settles s. It reports false when s was already settled.
func (p *Pipeline) finishLocked(s *Session, outcome Outcome, err error) bool {
	if s.outcome != OutcomePending {
		return false
	}
	s.outcome = outcome
	s.err = err
	s.progress = 0
	if p.active[s.Slot] == s {
		p.active[s.Slot] = nil
	}
	s.cancel()
	close(s.done)
	return true
}

func (p *Pipeline) advance(s *Session) (int, bool) {
	p.mu.Lock()
	if s.outcome != OutcomePending {
		p.mu.Unlock()
		return 0, false
	}
	s.progress += p.cfg.ProgressStep
	if s.progress > 100 {
		s.progress = 100
	}
	pct := s.progress
	p.mu.Unlock()

	p.cfg.Observer.Progress(s.Slot, pct)
	return pct, true
}

func (p *Pipeline) commit(s *Session) {
	p.mu.Lock()
	if s.outcome != OutcomePending || p.active[s.Slot] != s {
		p.mu.Unlock()
		return
	}
	replaced := p.clips[s.Slot]
	if replaced != nil {
		p.cfg.Previews.Revoke(replaced.Preview)
	}
	clip := &Clip{
		Slot:        s.Slot,
		File:        s.File,
		Preview:     p.cfg.Previews.Create(s.File),
		CommittedAt: p.cfg.Clock.Now(),
	}
	p.clips[s.Slot] = clip
	p.finishLocked(s, OutcomeCommitted, nil)
	p.mu.Unlock()

	slog.Info("intake: clip committed", "session", s.ID, "slot", s.Slot, "file", s.File.Name)
	if replaced != nil {
		p.cfg.Observer.Discarded(replaced.File)
	}
	p.cfg.Observer.Progress(s.Slot, 0)
	p.cfg.Observer.Committed(*clip)
}

func (p *Pipeline) reject(s *Session, err error, message string) {
	p.mu.Lock()
	settled := p.finishLocked(s, OutcomeAbandoned, err)
	p.mu.Unlock()
	if !settled {
		return
	}

	slog.Info("intake: clip rejected", "session", s.ID, "slot", s.Slot, "file", s.File.Name, "error", err)
	p.cfg.Observer.Discarded(s.File)
	p.cfg.Observer.Rejected(s.Slot, message)
}

func (p *Pipeline) abandon(s *Session, err error) {
	p.mu.Lock()
	settled := p.finishLocked(s, OutcomeAbandoned, err)
	p.mu.Unlock()
	if settled {
		p.cfg.Observer.Discarded(s.File)
	}
}
