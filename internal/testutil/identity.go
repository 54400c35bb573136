package testutil

import (
	"sync"

	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/domain/models"
)

// Identities is a hand-driven identity source.
type Identities struct {
	mu      sync.Mutex
	current *models.Identity
	subs    map[int]func(models.Identity, bool)
	next    int
}

// NewIdentities returns a source with nobody signed in.
func NewIdentities() *Identities {
	return &Identities{subs: map[int]func(models.Identity, bool){}}
}

// Current returns the signed-in identity.
func (i *Identities) Current() (models.Identity, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current == nil {
		return models.Identity{}, false
	}
	return *i.current, true
}

// Subscribe registers fn for sign-in and sign-out transitions.
func (i *Identities) Subscribe(fn func(models.Identity, bool)) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.next++
	n := i.next
	i.subs[n] = fn
	return func() {
		i.mu.Lock()
		delete(i.subs, n)
		i.mu.Unlock()
	}
}

// SignIn sets the current identity and notifies subscribers synchronously.
func (i *Identities) SignIn(id models.Identity) {
	i.mu.Lock()
	i.current = &id
	fns := i.listeners()
	i.mu.Unlock()
	for _, fn := range fns {
		fn(id, true)
	}
}

// SignOut clears the current identity and notifies subscribers.
func (i *Identities) SignOut() {
	i.mu.Lock()
	i.current = nil
	fns := i.listeners()
	i.mu.Unlock()
	for _, fn := range fns {
		fn(models.Identity{}, false)
	}
}

func (i *Identities) listeners() []func(models.Identity, bool) {
	fns := make([]func(models.Identity, bool), 0, len(i.subs))
	for _, fn := range i.subs {
		fns = append(fns, fn)
	}
	return fns
}

// Notices records notifications.
type Notices struct {
	mu   sync.Mutex
	list []notify.Notification
}

// Notify implements notify.Notifier.
func (n *Notices) Notify(note notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, note)
}

// All returns the notifications received so far.
func (n *Notices) All() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Notification, len(n.list))
	copy(out, n.list)
	return out
}
