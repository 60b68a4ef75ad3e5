// Package jsonp loads payloads from origins that only publish them as
// executable scripts invoking a caller-named callback.
//
// A browser would register the callback on window and append a <script> tag.
// Here the callback lives in a Registry owned by the Fetcher and the tag is a
// Loader request tracked by a Document, so both are visible and cleaned up.
package jsonp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
)

const Placeholder = "callback=?"

const tokenPrefix = "jsonp_callback_"

var (
	ErrLoad          = errors.New("jsonp: script failed to load")
	ErrNoPlaceholder = errors.New("jsonp: url has no callback placeholder")
)

type Fetcher struct {
	loader   Loader
	registry *Registry
	document *Document
	newToken func() string
}

func NewFetcher(loader Loader) *Fetcher {
	return &Fetcher{
		loader:   loader,
		registry: NewRegistry(),
		document: NewDocument(),
		newToken: randomToken,
	}
}

func randomToken() string {
	return tokenPrefix + strconv.Itoa(rand.Intn(1_000_000_000))
}

// Fetch injects a script for url and waits until the remote invokes the
// generated callback or the script fails to load.
//
// There is no built-in timeout: if the remote never calls back, Fetch only
// returns once ctx is done. Callers needing bounded latency pass a deadline.
func (f *Fetcher) Fetch(ctx context.Context, url string) (json.RawMessage, error) {
	if !strings.Contains(url, Placeholder) {
		return nil, ErrNoPlaceholder
	}

	var call *pendingCall
	var el *scriptElement
	for {
		name := f.newToken()
		el = &scriptElement{src: strings.Replace(url, Placeholder, "callback="+name, 1)}
		call = newPendingCall(name)
		call.cleanup = func() {
			f.registry.deregister(name)
			f.document.removeChild(el)
		}
		f.document.appendChild(el)
		if f.registry.register(call) {
			break
		}
		f.document.removeChild(el)
	}

	go f.load(ctx, call, el)

	select {
	case <-call.done:
	case <-ctx.Done():
		call.settle(nil, ctx.Err())
	}
	<-call.done
	return call.payload, call.err
}

func (f *Fetcher) load(ctx context.Context, call *pendingCall, el *scriptElement) {
	body, err := f.loader.Load(ctx, el.src)
	if err != nil {
		// A loader aborted by ctx reports the same error as Fetch itself.
		if ctxErr := ctx.Err(); ctxErr != nil {
			call.settle(nil, ctxErr)
			return
		}
		call.settle(nil, fmt.Errorf("%w: %w", ErrLoad, err))
		return
	}

	callee, payload, err := parseScript(body)
	if err != nil {
		call.settle(nil, fmt.Errorf("%w: %w", ErrLoad, err))
		return
	}

	if !f.registry.Invoke(callee, payload) {
		slog.Warn("jsonp: script invoked unknown callback", "callee", callee, "expected", call.name)
	}
}

// Pending returns the number of registered callbacks.
func (f *Fetcher) Pending() int {
	return f.registry.Len()
}

// Attached returns the number of injected script elements.
func (f *Fetcher) Attached() int {
	return f.document.ChildCount()
}
