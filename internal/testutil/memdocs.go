package testutil

import (
	"context"
	"sync"

	"github.com/dalemusser/stratatrack/internal/app/store/remotedoc"
	"github.com/dalemusser/stratatrack/internal/domain/models"
)

// MemDocs is an in-memory remote document store. Subscribers are notified
// synchronously, in the goroutine that changed the document, the way a
// real-time backend echoes a client's own write back to it.
type MemDocs struct {
	mu      sync.Mutex
	docs    map[string]models.Envelope
	subs    map[string]map[int]func(*models.Envelope)
	nextSub int
	writes  int

	// GetErr and SetErr, when set, are returned by GetDocument and SetDocument.
	GetErr error
	SetErr error
	// SubscribeErr, when set, is returned by Subscribe.
	SubscribeErr error
	// BeforeSet, when set, runs at the start of every SetDocument call.
	BeforeSet func()
}

// NewMemDocs returns an empty store.
func NewMemDocs() *MemDocs {
	return &MemDocs{
		docs: map[string]models.Envelope{},
		subs: map[string]map[int]func(*models.Envelope){},
	}
}

func docKey(collection, id string) string {
	if collection == "" {
		collection = remotedoc.DefaultCollection
	}
	return collection + "/" + id
}

func cloneEnvelope(env models.Envelope) *models.Envelope {
	return &models.Envelope{TrackedValues: env.TrackedValues.Clone(), UpdatedAt: env.UpdatedAt}
}

// GetDocument returns a copy of the stored document or remotedoc.ErrNotFound.
func (m *MemDocs) GetDocument(_ context.Context, collection, id string) (*models.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	env, ok := m.docs[docKey(collection, id)]
	if !ok {
		return nil, remotedoc.ErrNotFound
	}
	return cloneEnvelope(env), nil
}

// SetDocument stores a copy of env, counts the write and notifies subscribers.
func (m *MemDocs) SetDocument(_ context.Context, collection, id string, env models.Envelope) error {
	m.mu.Lock()
	hook := m.BeforeSet
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	if m.SetErr != nil {
		err := m.SetErr
		m.mu.Unlock()
		return err
	}
	m.writes++
	m.mu.Unlock()

	m.Put(collection, id, env)
	return nil
}

// Put stores env without counting it as a write, simulating a change made
// by another device. Subscribers are notified.
func (m *MemDocs) Put(collection, id string, env models.Envelope) {
	key := docKey(collection, id)
	m.mu.Lock()
	m.docs[key] = *cloneEnvelope(env)
	fns := m.subscribersLocked(key)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(cloneEnvelope(env))
	}
}

// Remove deletes the document and notifies subscribers with nil.
func (m *MemDocs) Remove(collection, id string) {
	key := docKey(collection, id)
	m.mu.Lock()
	delete(m.docs, key)
	fns := m.subscribersLocked(key)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(nil)
	}
}

func (m *MemDocs) subscribersLocked(key string) []func(*models.Envelope) {
	fns := make([]func(*models.Envelope), 0, len(m.subs[key]))
	for _, fn := range m.subs[key] {
		fns = append(fns, fn)
	}
	return fns
}

// Subscribe registers onChange and delivers the current document to it
// before returning. onError is never called.
func (m *MemDocs) Subscribe(_ context.Context, collection, id string, onChange func(*models.Envelope), _ func(error)) (func(), error) {
	key := docKey(collection, id)

	m.mu.Lock()
	if m.SubscribeErr != nil {
		err := m.SubscribeErr
		m.mu.Unlock()
		return nil, err
	}
	m.nextSub++
	n := m.nextSub
	if m.subs[key] == nil {
		m.subs[key] = map[int]func(*models.Envelope){}
	}
	m.subs[key][n] = onChange
	env, ok := m.docs[key]
	m.mu.Unlock()

	if ok {
		onChange(cloneEnvelope(env))
	} else {
		onChange(nil)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[key], n)
			m.mu.Unlock()
		})
	}, nil
}

// Writes returns how many SetDocument calls succeeded.
func (m *MemDocs) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Doc returns a copy of the stored document.
func (m *MemDocs) Doc(collection, id string) (*models.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	env, ok := m.docs[docKey(collection, id)]
	if !ok {
		return nil, false
	}
	return cloneEnvelope(env), true
}

// Subscribers returns the number of open subscriptions on a document.
func (m *MemDocs) Subscribers(collection, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[docKey(collection, id)])
}
