package offers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/sendrec/clipintake/internal/jsonp"
)

// MaxOffers is how many records of the feed are ever shown.
const MaxOffers = 3

var ErrNotConfigured = errors.New("offers: feed endpoint not configured")

// Offer is a third-party display unit. Both fields are untrusted: Anchor
// carries markup and URL may use any scheme.
type Offer struct {
	URL    string `json:"url"`
	Anchor string `json:"anchor"`
}

type Config struct {
	Endpoint string
	UserID   string
	APIKey   string
	S1       string
	S2       string
	// Timeout bounds a refresh. Zero waits for the remote indefinitely.
	Timeout time.Duration
}

// Fetcher is the cross-origin channel; *jsonp.Fetcher satisfies it and a
// same-origin proxy could replace it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (json.RawMessage, error)
}

// FeedURL builds the feed request with the callback placeholder left in
// place for the fetcher to fill.
func FeedURL(cfg Config) (string, error) {
	if cfg.Endpoint == "" {
		return "", ErrNotConfigured
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse feed endpoint: %w", err)
	}

	q := u.Query()
	q.Set("user_id", cfg.UserID)
	q.Set("api_key", cfg.APIKey)
	q.Set("s1", cfg.S1)
	q.Set("s2", cfg.S2)
	q.Del("callback")
	u.RawQuery = q.Encode() + "&" + jsonp.Placeholder
	return u.String(), nil
}

// Decode reads the feed payload and keeps the first MaxOffers records.
func Decode(payload json.RawMessage) ([]Offer, error) {
	var all []Offer
	if err := json.Unmarshal(payload, &all); err != nil {
		return nil, fmt.Errorf("decode offers: %w", err)
	}
	return First(all, MaxOffers), nil
}

func First(all []Offer, n int) []Offer {
	if len(all) > n {
		all = all[:n]
	}
	out := make([]Offer, len(all))
	copy(out, all)
	return out
}

type Client struct {
	fetcher Fetcher
	cfg     Config
}

func NewClient(fetcher Fetcher, cfg Config) *Client {
	return &Client{fetcher: fetcher, cfg: cfg}
}

func (c *Client) Load(ctx context.Context) ([]Offer, error) {
	feed, err := FeedURL(c.cfg)
	if err != nil {
		return nil, err
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	payload, err := c.fetcher.Fetch(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("fetch offers: %w", err)
	}
	return Decode(payload)
}

// Board holds the offers fetched at session start for the gating view.
type Board struct {
	mu     sync.RWMutex
	offers []Offer
	loaded bool
}

func NewBoard() *Board {
	return &Board{}
}

// Refresh loads offers once. A failure is logged and leaves the board empty;
// the gating view then shows nothing.
func (b *Board) Refresh(ctx context.Context, c *Client) {
	offers, err := c.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			slog.Info("offers: feed not configured, board stays empty")
		} else {
			slog.Error("offers: failed to load feed", "error", err)
		}
		offers = nil
	} else {
		slog.Info("offers: feed loaded", "count", len(offers))
	}

	b.mu.Lock()
	b.offers = offers
	b.loaded = true
	b.mu.Unlock()
}

func (b *Board) Offers() []Offer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return First(b.offers, MaxOffers)
}

func (b *Board) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}
