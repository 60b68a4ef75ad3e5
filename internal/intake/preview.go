package intake

import (
	"sync"

	"github.com/google/uuid"
)

// Previews issues revocable handles for committed clips, the equivalent of
// object URLs. A handle resolves until it is revoked.
type Previews struct {
	mu   sync.RWMutex
	live map[string]File
}

func NewPreviews() *Previews {
	return &Previews{live: make(map[string]File)}
}

func (p *Previews) Create(f File) string {
	token := uuid.NewString()
	p.mu.Lock()
	p.live[token] = f
	p.mu.Unlock()
	return token
}

func (p *Previews) Revoke(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.live[token]; !ok {
		return false
	}
	delete(p.live, token)
	return true
}

func (p *Previews) Lookup(token string) (File, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.live[token]
	return f, ok
}

// Live returns the number of unrevoked handles.
func (p *Previews) Live() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.live)
}
