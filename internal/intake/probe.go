package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xfrr/goffmpeg/transcoder"
)

var ErrNoDuration = errors.New("intake: media has no duration")

// Prober reads a clip's total duration without decoding its content.
type Prober interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
}

// FFProbe reads format.duration through ffprobe.
type FFProbe struct{}

func (FFProbe) Probe(ctx context.Context, path string) (time.Duration, error) {
	type result struct {
		duration time.Duration
		err      error
	}
	ch := make(chan result, 1)

	go func() {
		trans := new(transcoder.Transcoder)
		if err := trans.Initialize(path, ""); err != nil {
			ch <- result{err: fmt.Errorf("initialize transcoder: %w", err)}
			return
		}
		d, err := parseDuration(trans.MediaFile().Metadata().Format.Duration)
		ch <- result{duration: d, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			slog.Debug("probe: duration read", "path", path, "duration", r.duration)
		}
		return r.duration, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if seconds <= 0 {
		return 0, ErrNoDuration
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
