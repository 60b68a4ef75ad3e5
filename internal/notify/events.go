package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sendrec/clipintake/internal/generate"
	"github.com/sendrec/clipintake/internal/intake"
	"github.com/sendrec/clipintake/internal/webhook"
)

var _ intake.Observer = (*Events)(nil)

type Dispatcher interface {
	Dispatch(ctx context.Context, event webhook.Event) error
}

// Events turns commits, rejections and generate transitions into webhook
// events. Deliveries run in the background so observers never block the
// pipeline.
type Events struct {
	ctx        context.Context
	dispatcher Dispatcher
	now        func() time.Time
	wg         sync.WaitGroup
}

func NewEvents(ctx context.Context, d Dispatcher) *Events {
	return &Events{ctx: ctx, dispatcher: d, now: time.Now}
}

func (e *Events) Progress(int, int) {}

func (e *Events) Committed(clip intake.Clip) {
	e.send("clip.committed", map[string]any{
		"slot":        clip.Slot,
		"name":        clip.File.Name,
		"contentType": clip.File.ContentType,
		"size":        clip.File.Size,
	})
}

func (e *Events) Rejected(slot int, message string) {
	e.send("clip.rejected", map[string]any{"slot": slot, "message": message})
}

func (e *Events) Discarded(intake.File) {}

// GenerateChanged is meant for generate.Config.OnChange.
func (e *Events) GenerateChanged(s generate.State) {
	e.send("generate."+s.String(), map[string]any{})
}

func (e *Events) send(name string, data map[string]any) {
	event := webhook.Event{Name: name, Timestamp: e.now().UTC(), Data: data}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.dispatcher.Dispatch(e.ctx, event); err != nil {
			slog.Error("notify: webhook dispatch failed", "event", name, "error", err)
		}
	}()
}

// Close waits for in-flight deliveries.
func (e *Events) Close() {
	e.wg.Wait()
}
