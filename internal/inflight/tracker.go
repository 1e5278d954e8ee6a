// Package inflight tracks the latest request issued per form so that a slow
// response cannot overwrite the result of a newer submission.
package inflight

import (
	"sync"

	"github.com/google/uuid"
)

type Tracker struct {
	mu     sync.Mutex
	latest map[string]uuid.UUID
}

func NewTracker() *Tracker {
	return &Tracker{latest: map[string]uuid.UUID{}}
}

// Issue creates a new token for form, superseding any earlier one.
func (t *Tracker) Issue(form string) uuid.UUID {
	tok := uuid.New()
	t.mu.Lock()
	t.latest[form] = tok
	t.mu.Unlock()
	return tok
}

// Current reports whether tok is still the latest token for form.
func (t *Tracker) Current(form string, tok uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[form] == tok
}

// Commit runs apply only if tok is still the latest token for form. The
// check and apply happen under the tracker lock, so a newer response can
// never be overwritten by an older one. It reports whether apply ran.
func (t *Tracker) Commit(form string, tok uuid.UUID, apply func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest[form] != tok {
		return false
	}
	apply()
	return true
}
