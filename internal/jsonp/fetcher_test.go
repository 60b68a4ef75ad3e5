package jsonp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

const feedURL = "https://offers.example.com/feed?user_id=1&callback=?"

// funcLoader answers every Load with respond(callbackName).
type funcLoader struct {
	respond func(callback string) ([]byte, error)
}

func (l *funcLoader) Load(_ context.Context, src string) ([]byte, error) {
	return l.respond(callbackFromSrc(src))
}

// gatedLoader blocks every Load until release is closed, announcing the src
// it was asked for on started.
type gatedLoader struct {
	started chan string
	release chan struct{}
	respond func(callback string) ([]byte, error)
}

func (l *gatedLoader) Load(ctx context.Context, src string) ([]byte, error) {
	l.started <- src
	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return l.respond(callbackFromSrc(src))
}

func callbackFromSrc(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return u.Query().Get("callback")
}

func echoScript(payload string) func(string) ([]byte, error) {
	return func(callback string) ([]byte, error) {
		return []byte(fmt.Sprintf("%s(%s);", callback, payload)), nil
	}
}

func TestFetch_ResolvesWithPayload(t *testing.T) {
	f := NewFetcher(&funcLoader{respond: echoScript(`[{"url":"https://a.example","anchor":"A"}]`)})

	payload, err := f.Fetch(context.Background(), feedURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var offers []map[string]string
	if err := json.Unmarshal(payload, &offers); err != nil {
		t.Fatalf("payload is not the JSON passed to the callback: %v", err)
	}
	if len(offers) != 1 || offers[0]["url"] != "https://a.example" {
		t.Errorf("unexpected payload %s", payload)
	}
	if f.Pending() != 0 {
		t.Errorf("pending callbacks = %d, want 0", f.Pending())
	}
	if f.Attached() != 0 {
		t.Errorf("attached elements = %d, want 0", f.Attached())
	}
}

func TestFetch_SubstitutesCallbackName(t *testing.T) {
	var got string
	var sources []string
	var f *Fetcher
	f = NewFetcher(&funcLoader{respond: func(callback string) ([]byte, error) {
		got = callback
		sources = f.document.Sources()
		return []byte(callback + "([])"), nil
	}})

	if _, err := f.Fetch(context.Background(), feedURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, tokenPrefix) || len(got) == len(tokenPrefix) {
		t.Errorf("callback = %q, want %s<n>", got, tokenPrefix)
	}
	want := strings.Replace(feedURL, Placeholder, "callback="+got, 1)
	if len(sources) != 1 || sources[0] != want {
		t.Errorf("attached sources = %v, want [%s]", sources, want)
	}
	if srcs := f.document.Sources(); len(srcs) != 0 {
		t.Errorf("sources after settling = %v, want none", srcs)
	}
}

func TestFetch_LoadErrorRejectsAndCleansUp(t *testing.T) {
	f := NewFetcher(&funcLoader{respond: func(string) ([]byte, error) {
		return nil, errors.New("404 not found")
	}})

	_, err := f.Fetch(context.Background(), feedURL)
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if f.Pending() != 0 || f.Attached() != 0 {
		t.Errorf("leaked state: pending=%d attached=%d", f.Pending(), f.Attached())
	}
}

func TestFetch_SyntaxErrorRejects(t *testing.T) {
	f := NewFetcher(&funcLoader{respond: func(callback string) ([]byte, error) {
		return []byte(callback + "({not json"), nil
	}})

	_, err := f.Fetch(context.Background(), feedURL)
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if f.Pending() != 0 || f.Attached() != 0 {
		t.Errorf("leaked state: pending=%d attached=%d", f.Pending(), f.Attached())
	}
}

func TestFetch_RequiresPlaceholder(t *testing.T) {
	f := NewFetcher(&funcLoader{respond: echoScript(`[]`)})

	_, err := f.Fetch(context.Background(), "https://offers.example.com/feed?user_id=1")
	if !errors.Is(err, ErrNoPlaceholder) {
		t.Fatalf("expected ErrNoPlaceholder, got %v", err)
	}
	if f.Pending() != 0 || f.Attached() != 0 {
		t.Errorf("leaked state: pending=%d attached=%d", f.Pending(), f.Attached())
	}
}

func TestFetch_SequentialCallsLeaveNoState(t *testing.T) {
	calls := 0
	f := NewFetcher(&funcLoader{respond: func(callback string) ([]byte, error) {
		calls++
		if calls%2 == 0 {
			return nil, errors.New("blocked")
		}
		return []byte(callback + `({"n":1})`), nil
	}})

	for i := 0; i < 25; i++ {
		_, _ = f.Fetch(context.Background(), feedURL)
		if f.Pending() != 0 || f.Attached() != 0 {
			t.Fatalf("after call %d: pending=%d attached=%d", i, f.Pending(), f.Attached())
		}
	}
}

func TestFetch_OneRegistrationPerInFlightCall(t *testing.T) {
	loader := &gatedLoader{
		started: make(chan string, 3),
		release: make(chan struct{}),
		respond: echoScript(`[]`),
	}
	f := NewFetcher(loader)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Fetch(context.Background(), feedURL); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		src := <-loader.started
		seen[callbackFromSrc(src)] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct callback names, got %v", seen)
	}
	if f.Pending() != 3 {
		t.Errorf("pending callbacks = %d, want 3", f.Pending())
	}
	if f.Attached() != 3 {
		t.Errorf("attached elements = %d, want 3", f.Attached())
	}

	close(loader.release)
	wg.Wait()

	if f.Pending() != 0 || f.Attached() != 0 {
		t.Errorf("leaked state: pending=%d attached=%d", f.Pending(), f.Attached())
	}
}

func TestFetch_RetriesOnTokenCollision(t *testing.T) {
	loader := &gatedLoader{
		started: make(chan string, 2),
		release: make(chan struct{}),
		respond: echoScript(`[]`),
	}
	f := NewFetcher(loader)
	tokens := []string{"jsonp_callback_7", "jsonp_callback_7", "jsonp_callback_8"}
	var mu sync.Mutex
	f.newToken = func() string {
		mu.Lock()
		defer mu.Unlock()
		tok := tokens[0]
		if len(tokens) > 1 {
			tokens = tokens[1:]
		}
		return tok
	}

	errs := make(chan error, 2)
	go func() {
		_, err := f.Fetch(context.Background(), feedURL)
		errs <- err
	}()
	first := callbackFromSrc(<-loader.started)

	go func() {
		_, err := f.Fetch(context.Background(), feedURL)
		errs <- err
	}()
	second := callbackFromSrc(<-loader.started)

	if first != "jsonp_callback_7" || second != "jsonp_callback_8" {
		t.Errorf("callbacks = %q, %q; want jsonp_callback_7, jsonp_callback_8", first, second)
	}
	if f.Attached() != 2 {
		t.Errorf("attached elements = %d, want 2", f.Attached())
	}

	close(loader.release)
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

func TestFetch_UnknownCalleeWaitsForContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := NewFetcher(&funcLoader{respond: func(string) ([]byte, error) {
		return []byte(`somebody_else([1,2,3])`), nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, feedURL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if f.Pending() != 0 || f.Attached() != 0 {
		t.Errorf("leaked state: pending=%d attached=%d", f.Pending(), f.Attached())
	}
}

func TestFetch_CancelWhileLoading(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	loader := &gatedLoader{
		started: make(chan string, 1),
		release: make(chan struct{}),
		respond: echoScript(`[]`),
	}
	f := NewFetcher(loader)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, feedURL)
		errs <- err
	}()

	<-loader.started
	cancel()

	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.Pending() != 0 || f.Attached() != 0 {
		t.Errorf("leaked state: pending=%d attached=%d", f.Pending(), f.Attached())
	}
}

// ctxLoader blocks until ctx is done and returns its error, like an HTTP
// transport aborted mid-request.
type ctxLoader struct {
	started chan struct{}
}

func (l *ctxLoader) Load(ctx context.Context, _ string) ([]byte, error) {
	l.started <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFetch_CancelReportsContextError(t *testing.T) {
	loader := &ctxLoader{started: make(chan struct{}, 1)}
	f := NewFetcher(loader)

	for i := 0; i < 500; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		errs := make(chan error, 1)
		go func() {
			_, err := f.Fetch(ctx, feedURL)
			errs <- err
		}()
		<-loader.started
		cancel()

		err := <-errs
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("iteration %d: expected context.Canceled, got %v", i, err)
		}
		if errors.Is(err, ErrLoad) {
			t.Fatalf("iteration %d: cancellation reported as a load failure: %v", i, err)
		}
	}
	if f.Pending() != 0 || f.Attached() != 0 {
		t.Errorf("leaked state: pending=%d attached=%d", f.Pending(), f.Attached())
	}
}

func TestFetch_LoadErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	f := NewFetcher(&funcLoader{respond: func(string) ([]byte, error) {
		return nil, cause
	}})

	_, err := f.Fetch(context.Background(), feedURL)
	if !errors.Is(err, ErrLoad) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrLoad wrapping the transport error, got %v", err)
	}
}

func TestFetch_SyntaxErrorKeepsCause(t *testing.T) {
	f := NewFetcher(&funcLoader{respond: func(string) ([]byte, error) {
		return []byte(`alert(1); evil()`), nil
	}})

	_, err := f.Fetch(context.Background(), feedURL)
	if !errors.Is(err, ErrLoad) || !errors.Is(err, ErrScriptSyntax) {
		t.Fatalf("expected ErrLoad wrapping ErrScriptSyntax, got %v", err)
	}
}

func TestRegistry_InvokeSettlesOnce(t *testing.T) {
	r := NewRegistry()
	cleanups := 0
	c := newPendingCall("cb")
	c.cleanup = func() {
		cleanups++
		r.deregister("cb")
	}
	if !r.register(c) {
		t.Fatal("expected registration to succeed")
	}
	if r.register(newPendingCall("cb")) {
		t.Fatal("expected duplicate registration to fail")
	}

	if !r.Invoke("cb", json.RawMessage(`1`)) {
		t.Fatal("expected first invoke to settle")
	}
	if r.Invoke("cb", json.RawMessage(`2`)) {
		t.Fatal("expected second invoke to find nothing")
	}
	if c.settle(nil, errors.New("late error")) {
		t.Fatal("expected late settle to be ignored")
	}
	if cleanups != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleanups)
	}
	if string(c.payload) != "1" || c.err != nil {
		t.Errorf("payload = %s, err = %v", c.payload, c.err)
	}
}
