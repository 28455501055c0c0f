// Package pool implements the in-memory intent pool. Intents are held in
// arrival order until a trigger drains them into a settlement batch. The pool
// is best-effort: it is not persisted across restarts, the vault contract
// remains the authoritative record of confirmed deposits.
package pool

import (
	"sync"

	"github.com/relaypool-hq/relaypool/pkg/models"
)

// IntentPool is an ordered collection of pending intents with an atomic drain.
// All operations are safe for concurrent use and none of them block on
// anything other than the pool mutex.
type IntentPool struct {
	mu      sync.Mutex
	intents []models.Intent
}

// New creates an empty intent pool.
func New() *IntentPool {
	return &IntentPool{
		intents: make([]models.Intent, 0),
	}
}

// Enqueue appends an intent at the tail and returns the new pool size.
func (p *IntentPool) Enqueue(intent models.Intent) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.intents = append(p.intents, intent)
	return len(p.intents)
}

// DrainAll atomically removes and returns every pooled intent in original
// order. Returns an empty slice if the pool is already empty. No intent can
// appear in two concurrent drains.
func (p *IntentPool) DrainAll() []models.Intent {
	p.mu.Lock()
	defer p.mu.Unlock()

	drained := p.intents
	p.intents = make([]models.Intent, 0)
	return drained
}

// RestoreToFront re-inserts a previously drained sequence at the head, ahead
// of any intents enqueued since the drain. Used by the executor to put a
// failed batch back for retry so the oldest-waiting intents go first.
func (p *IntentPool) RestoreToFront(batch []models.Intent) int {
	if len(batch) == 0 {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.intents)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	restored := make([]models.Intent, 0, len(batch)+len(p.intents))
	restored = append(restored, batch...)
	restored = append(restored, p.intents...)
	p.intents = restored
	return len(p.intents)
}

// Size returns the number of pooled intents.
func (p *IntentPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.intents)
}

// Items returns a point-in-time copy of the pooled intents. Callers may
// mutate the result freely, later pool mutations do not affect it.
func (p *IntentPool) Items() []models.Intent {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := make([]models.Intent, len(p.intents))
	for i, intent := range p.intents {
		items[i] = intent.Copy()
	}
	return items
}
