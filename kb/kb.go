package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/impact-simulator/model"
)

var (
	// ErrImpactorNotFound indicates a requested impactor is not in the catalog.
	ErrImpactorNotFound = errors.New("impactor not found")
	// ErrDuplicateImpactor indicates a catalog batch repeats an ID.
	ErrDuplicateImpactor = errors.New("duplicate impactor id")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventCatalogReplaced EventType = iota
)

// Event is emitted to subscribers when the catalog changes.
type Event struct {
	Type     EventType
	Date     time.Time
	Count    int
	Sequence uint64
}

// KnowledgeBase is an in-memory, thread-safe store holding the latest
// impactor catalog. The simulation controller replaces it wholesale; HTTP
// handlers read it concurrently.
type KnowledgeBase struct {
	mu sync.RWMutex

	impactors map[string]model.Impactor
	date      time.Time
	sequence  uint64

	subs map[int]func(Event)
	next int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		impactors: make(map[string]model.Impactor),
		subs:      make(map[int]func(Event)),
	}
}

// ReplaceCatalog swaps in the catalog fetched for date by request seq and
// notifies subscribers. A batch with an empty or repeated ID is rejected as a
// whole.
func (kb *KnowledgeBase) ReplaceCatalog(date time.Time, seq uint64, impactors []model.Impactor) error {
	next := make(map[string]model.Impactor, len(impactors))
	for _, imp := range impactors {
		if imp.ID == "" {
			return fmt.Errorf("%w: empty id", ErrDuplicateImpactor)
		}
		if _, exists := next[imp.ID]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateImpactor, imp.ID)
		}
		next[imp.ID] = imp
	}

	kb.mu.Lock()
	kb.impactors = next
	kb.date = date
	kb.sequence = seq
	event := Event{
		Type:     EventCatalogReplaced,
		Date:     date,
		Count:    len(next),
		Sequence: seq,
	}
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	kb.mu.Unlock()

	// Subscribers may read the store, so they run after Unlock.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// GetImpactor returns the impactor with the given ID.
func (kb *KnowledgeBase) GetImpactor(id string) (model.Impactor, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	imp, ok := kb.impactors[id]
	if !ok {
		return model.Impactor{}, fmt.Errorf("%w: %q", ErrImpactorNotFound, id)
	}
	return imp, nil
}

// ListImpactors returns a snapshot of the catalog ordered by close approach
// and then by ID.
func (kb *KnowledgeBase) ListImpactors() []model.Impactor {
	kb.mu.RLock()
	res := make([]model.Impactor, 0, len(kb.impactors))
	for _, imp := range kb.impactors {
		res = append(res, imp)
	}
	kb.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CloseApproach.Equal(res[j].CloseApproach) {
			return res[i].CloseApproach.Before(res[j].CloseApproach)
		}
		return res[i].ID < res[j].ID
	})
	return res
}

// CatalogInfo reports the date and request sequence of the stored catalog.
// ok is false until a catalog has been stored.
func (kb *KnowledgeBase) CatalogInfo() (date time.Time, seq uint64, ok bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.date, kb.sequence, kb.sequence != 0
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.next
	kb.next++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}
