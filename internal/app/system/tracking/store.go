// internal/app/system/tracking/store.go
//
// Package tracking owns the in-memory metric collection. Every change to
// the collection is routed outward: to the remote document (debounced)
// while someone is signed in, or to the local cache otherwise. Changes
// that originate from the remote document are applied with outward
// routing suppressed so they are never echoed back.
package tracking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/app/system/savewriter"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"go.uber.org/zap"
)

// LocalCache is the on-device key/value cache.
type LocalCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// RemoteStore is the remote document store.
type RemoteStore interface {
	GetDocument(ctx context.Context, collection, id string) (*models.Envelope, error)
	Subscribe(ctx context.Context, collection, id string, onChange func(*models.Envelope), onError func(error)) (func(), error)
}

// Writer sends the collection to the remote document store.
type Writer interface {
	Write(ctx context.Context, data models.Collection, collectionName, documentID string, force bool) (bool, error)
	WriteDebounced(data models.Collection, collectionName, documentID string, delay time.Duration) <-chan bool
	Flush(ctx context.Context) (bool, error)
	Reset()
	State() savewriter.State
}

// IdentitySource reports who is signed in.
type IdentitySource interface {
	Current() (models.Identity, bool)
}

// IdentityEvents is an IdentitySource that also announces transitions.
type IdentityEvents interface {
	IdentitySource
	Subscribe(fn func(models.Identity, bool)) func()
}

// Deps are the collaborators of a Store. Notifier may be nil. Remote and
// Writer may be nil for a store that is only ever used anonymously.
type Deps struct {
	Cache    LocalCache
	Remote   RemoteStore
	Writer   Writer
	Identity IdentitySource
	Notifier notify.Notifier
	Logger   *zap.Logger
}

// Config tunes a Store.
type Config struct {
	// Collection is the remote collection holding envelope documents.
	Collection string
	// Debounce is the quiet period before a change is written remotely.
	Debounce time.Duration
	// CacheTimeout bounds each local cache write.
	CacheTimeout time.Duration
}

// Store is the synchronization store.
//
// All operations, remote applies and observer calls run under one mutex,
// so setting the applying flag, replacing the collection, running the
// observers and clearing the flag happen as one step with respect to
// local mutations. Observers must not call back into the Store.
type Store struct {
	cache    LocalCache
	remote   RemoteStore
	writer   Writer
	identity IdentitySource
	notifier notify.Notifier
	logger   *zap.Logger
	cfg      Config

	mu               sync.Mutex
	values           models.Collection
	applying         int // >0 while a remote-origin change is being installed
	authenticating   bool
	awaitingSnapshot bool
	subscriptionErr  string
	localErr         error
	unsubscribe      func()
	subGen           uint64
	observers        map[int]func(models.Collection)
	nextObserver     int
	baseCtx          context.Context
}

// New creates a Store whose collection is loaded from the local cache.
// An unreadable cached collection is logged and replaced by an empty one.
func New(ctx context.Context, deps Deps, cfg Config) (*Store, error) {
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = 5 * time.Second
	}
	s := &Store{
		cache:     deps.Cache,
		remote:    deps.Remote,
		writer:    deps.Writer,
		identity:  deps.Identity,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		cfg:       cfg,
		values:    models.Collection{},
		observers: map[int]func(models.Collection){},
		baseCtx:   context.Background(),
	}

	raw, found, err := s.cache.Get(ctx, models.TrackedValuesKey)
	if err != nil {
		return nil, fmt.Errorf("load local cache: %w", err)
	}
	if found {
		c, err := models.ParseCollection(raw)
		if err != nil {
			s.logger.Warn("local cache holds an unreadable collection, starting empty", zap.Error(err))
		} else {
			s.values = c
		}
	}
	return s, nil
}

/* -------------------------------------------------------------------------- */
/* Operations                                                                  */
/* -------------------------------------------------------------------------- */

// AddValue creates the metric key, or resets it to an empty series when
// it already exists.
func (s *Store) AddValue(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = models.Metric{Key: key, Data: []models.DataPoint{}}
	s.changedLocked()
	return nil
}

// AddDataPoint records value for date, replacing the value already stored
// for that date. The series stays sorted ascending by date.
func (s *Store) AddDataPoint(key, date string, value any) error {
	if strings.TrimSpace(date) == "" {
		return ErrInvalidDate
	}
	v := models.NormalizeValue(value)
	switch v.(type) {
	case float64, string:
	default:
		return ErrInvalidValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[key]
	if !ok {
		return &NotFoundError{Key: key}
	}

	found := false
	for i := range m.Data {
		if m.Data[i].Date == date {
			m.Data[i].Value = v
			found = true
			break
		}
	}
	if !found {
		m.Data = append(m.Data, models.DataPoint{Date: date, Value: v})
	}
	sortAscending(m.Data)
	s.values[key] = m
	s.changedLocked()
	return nil
}

// DeleteValue removes the metric.
func (s *Store) DeleteValue(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return &NotFoundError{Key: key}
	}
	delete(s.values, key)
	s.changedLocked()
	return nil
}

// DeleteValueData removes the data point for date. A date with no data
// point is not an error.
func (s *Store) DeleteValueData(key, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[key]
	if !ok {
		return &NotFoundError{Key: key}
	}
	kept := make([]models.DataPoint, 0, len(m.Data))
	for _, dp := range m.Data {
		if dp.Date != date {
			kept = append(kept, dp)
		}
	}
	m.Data = kept
	s.values[key] = m
	s.changedLocked()
	return nil
}

// SaveMetric updates the metric's name and color. Empty arguments leave
// the stored field unchanged.
func (s *Store) SaveMetric(key, name, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[key]
	if !ok {
		return &NotFoundError{Key: key}
	}
	m.Key = key
	if name != "" {
		m.Name = name
	}
	if color != "" {
		m.Color = color
	}
	s.values[key] = m
	s.changedLocked()
	return nil
}

// GetDataDesc returns a copy of the metric's data sorted newest first.
// The stored order is not changed.
func (s *Store) GetDataDesc(key string) ([]models.DataPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	out := make([]models.DataPoint, len(m.Data))
	copy(out, m.Data)
	sort.SliceStable(out, func(i, j int) bool {
		return models.LessDate(out[j].Date, out[i].Date)
	})
	return out, nil
}

// StandardizeData back-fills key, name and color on metrics stored by
// older versions and returns how many metrics it changed.
func (s *Store) StandardizeData() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for k, m := range s.values {
		before := m
		if m.Key == "" {
			m.Key = k
		}
		if m.Name == "" {
			m.Name = k
		}
		if m.Color == "" {
			m.Color = models.DefaultColor
		}
		if m.Data == nil {
			m.Data = []models.DataPoint{}
		}
		if m.Key != before.Key || m.Name != before.Name || m.Color != before.Color || before.Data == nil {
			s.values[k] = m
			changed++
		}
	}
	if changed > 0 {
		s.changedLocked()
	}
	return changed
}

// ReplaceAll installs c as the whole collection. It is a local change and
// is routed outward like any other.
func (s *Store) ReplaceAll(c models.Collection) {
	next := c.Clone()
	next.Normalize()
	for _, m := range next {
		sortAscending(m.Data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = next
	s.changedLocked()
}

// Collection returns a deep copy of the collection.
func (s *Store) Collection() models.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// Metric returns a copy of one metric.
func (s *Store) Metric(key string) (models.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[key]
	if !ok {
		return models.Metric{}, &NotFoundError{Key: key}
	}
	return m.Clone(), nil
}

// OnChange registers fn to run after every change with a copy of the
// collection. fn runs with the Store locked and must not call the Store.
func (s *Store) OnChange(fn func(models.Collection)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObserver++
	id := s.nextObserver
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func sortAscending(data []models.DataPoint) {
	sort.SliceStable(data, func(i, j int) bool {
		return models.LessDate(data[i].Date, data[j].Date)
	})
}

/* -------------------------------------------------------------------------- */
/* Outbound routing                                                            */
/* -------------------------------------------------------------------------- */

// changedLocked runs the outbound watcher and then the observers.
func (s *Store) changedLocked() {
	s.persistLocked(s.values.Clone())
	for _, fn := range s.observers {
		fn(s.values.Clone())
	}
}

func (s *Store) persistLocked(snapshot models.Collection) {
	if s.applying > 0 {
		return
	}
	if id, ok := s.identity.Current(); ok {
		s.writer.WriteDebounced(snapshot, s.cfg.Collection, id.ID, s.cfg.Debounce)
		return
	}
	s.saveLocalLocked(snapshot)
}

func (s *Store) saveLocalLocked(snapshot models.Collection) {
	raw, err := snapshot.Encode()
	if err != nil {
		s.logger.Error("encode collection for local cache", zap.Error(err))
		s.localErr = fmt.Errorf("encode collection: %w", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CacheTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, models.TrackedValuesKey, raw); err != nil {
		s.logger.Error("write local cache", zap.Error(err))
		s.localErr = fmt.Errorf("write local cache: %w", err)
		if s.notifier != nil {
			s.notifier.Notify(notify.Error("Save failed", "Your data could not be saved on this device."))
		}
		return
	}
	s.localErr = nil
}

// LocalSaveErr returns the error of the most recent local cache write, or
// nil when it succeeded.
func (s *Store) LocalSaveErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localErr
}
