package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/grantwatch/internal/catalog"
)

// mockStore implements Store in memory for pipeline tests.
type mockStore struct {
	items       map[string]*Item
	promoted    []catalog.Entry
	promoteErr  error
	setStageErr error
	listErr     error
	touches     int
	refreshes   int
}

func newMockStore() *mockStore {
	return &mockStore{items: map[string]*Item{}}
}

func (m *mockStore) FindByDedupeKey(_ context.Context, key string) (*Item, error) {
	for _, it := range m.items {
		if it.DedupeKey == key {
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) Get(_ context.Context, id string) (*Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *mockStore) Insert(_ context.Context, it *Item) error {
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *mockStore) Touch(_ context.Context, id string, seenAt time.Time) error {
	m.touches++
	m.items[id].LastSeenAt = seenAt
	return nil
}

func (m *mockStore) Refresh(_ context.Context, it *Item) error {
	m.refreshes++
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *mockStore) SetStage(_ context.Context, id string, stage Stage, score int, note string, _ time.Time) error {
	if m.setStageErr != nil {
		return m.setStageErr
	}
	it := m.items[id]
	if it == nil || it.Stage != StageRaw {
		return ErrInvalidStage
	}
	it.Stage = stage
	it.QualityScore = score
	it.ValidationNote = note
	return nil
}

func (m *mockStore) ListByStage(_ context.Context, stage Stage, limit int) ([]Item, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []Item
	for _, it := range m.items {
		if it.Stage == stage {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QualityScore != out[j].QualityScore {
			return out[i].QualityScore > out[j].QualityScore
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) StageCounts(_ context.Context) (map[Stage]int, error) {
	out := map[Stage]int{}
	for _, it := range m.items {
		out[it.Stage]++
	}
	return out, nil
}

func (m *mockStore) Promote(_ context.Context, it Item, entry catalog.Entry, _ PromoteOpts) error {
	if m.promoteErr != nil {
		return m.promoteErr
	}
	stored := m.items[it.ID]
	if stored == nil || stored.Stage != StageValidated {
		return ErrNotValidated
	}
	stored.Stage = StagePromoted
	id := entry.ID
	stored.PromotedToID = &id
	m.promoted = append(m.promoted, entry)
	return nil
}

type recordingHook struct {
	ids []string
	err error
}

func (h *recordingHook) RecomputeByID(_ context.Context, id string) error {
	h.ids = append(h.ids, id)
	return h.err
}
