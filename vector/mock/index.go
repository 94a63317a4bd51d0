package mock

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/kbingest/vector"
)

var _ vector.Index = (*Index)(nil)

// Index is a test double for vector.Index backed by a map.
type Index struct {
	// AddFunc is called by Add before the default behavior. A non-nil error
	// is returned without storing anything.
	AddFunc func(ctx context.Context, records []vector.Record) error

	// DeleteFunc is called by Delete before the default behavior. A non-nil
	// error is returned without deleting anything.
	DeleteFunc func(ctx context.Context, ids []string) error

	// QueryFunc replaces the default Query behavior if set.
	QueryFunc func(ctx context.Context, text string, k int) (*vector.QueryResult, error)

	// CountFunc replaces the default Count behavior if set.
	CountFunc func(ctx context.Context) (int, error)

	// Delay is slept inside Add and Delete, making overlapping calls observable.
	Delay time.Duration

	mu          sync.Mutex
	records     map[string]vector.Record
	addCalls    int
	deleteCalls int
	inFlight    int
	maxInFlight int
}

// NewIndex creates an empty mock index.
func NewIndex() *Index {
	return &Index{records: make(map[string]vector.Record)}
}

func (m *Index) enter() {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()
}

func (m *Index) leave() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

func (m *Index) pause(ctx context.Context) {
	if m.Delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(m.Delay):
	}
}

// Add stores records unless AddFunc fails.
func (m *Index) Add(ctx context.Context, records []vector.Record) error {
	m.enter()
	defer m.leave()

	m.mu.Lock()
	m.addCalls++
	m.mu.Unlock()

	m.pause(ctx)
	if m.AddFunc != nil {
		if err := m.AddFunc(ctx, records); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.Metadata = maps.Clone(r.Metadata)
		m.records[r.ID] = r
	}
	return nil
}

// Delete removes the given IDs unless DeleteFunc fails.
func (m *Index) Delete(ctx context.Context, ids []string) (int, error) {
	m.enter()
	defer m.leave()

	m.mu.Lock()
	m.deleteCalls++
	m.mu.Unlock()

	m.pause(ctx)
	if m.DeleteFunc != nil {
		if err := m.DeleteFunc(ctx, ids); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Query ranks records by the share of query terms their content contains.
func (m *Index) Query(ctx context.Context, text string, k int) (*vector.QueryResult, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, text, k)
	}

	terms := strings.Fields(strings.ToLower(text))
	type scored struct {
		rec  vector.Record
		dist float64
	}

	m.mu.Lock()
	var matches []scored
	for _, r := range m.records {
		content := strings.ToLower(r.Content)
		hit := 0
		for _, t := range terms {
			if strings.Contains(content, t) {
				hit++
			}
		}
		if hit == 0 {
			continue
		}
		matches = append(matches, scored{rec: r, dist: 1 - float64(hit)/float64(len(terms))})
	}
	m.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].rec.ID < matches[j].rec.ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	res := &vector.QueryResult{}
	for _, s := range matches {
		res.IDs = append(res.IDs, s.rec.ID)
		res.Documents = append(res.Documents, s.rec.Content)
		res.Metadatas = append(res.Metadatas, s.rec.Metadata)
		res.Distances = append(res.Distances, s.dist)
	}
	return res, nil
}

// Count returns the number of stored records.
func (m *Index) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

// Has reports whether a record with id is stored.
func (m *Index) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	return ok
}

// IDs returns the stored record IDs, sorted.
func (m *Index) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.records))
}

// Record returns the stored record with id.
func (m *Index) Record(id string) (vector.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	return r, ok
}

// AddCalls returns the number of Add calls.
func (m *Index) AddCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCalls
}

// DeleteCalls returns the number of Delete calls.
func (m *Index) DeleteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCalls
}

// MaxInFlight returns the highest number of overlapping Add/Delete calls seen.
func (m *Index) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}
