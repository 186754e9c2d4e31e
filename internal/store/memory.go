package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/leadintake/internal/schema"
)

// MemoryStore keeps leads in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	leads  map[int64]*schema.StoredLead
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads: make(map[int64]*schema.StoredLead),
		now:   time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, lead *schema.Lead) (*schema.StoredLead, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneStored(s.insertLocked(lead)), nil
}

func (s *MemoryStore) CreateMany(ctx context.Context, leads []*schema.Lead) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapErr("create many", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lead := range leads {
		s.insertLocked(lead)
	}
	return len(leads), nil
}

func (s *MemoryStore) insertLocked(lead *schema.Lead) *schema.StoredLead {
	s.nextID++
	stored := &schema.StoredLead{
		ID:        s.nextID,
		CreatedAt: s.now().UTC(),
		Lead:      cloneLead(*lead),
	}
	s.leads[stored.ID] = stored
	return stored
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*schema.StoredLead, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("find by id", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	return cloneStored(stored), nil
}

func (s *MemoryStore) FindMany(ctx context.Context, filter Filter) ([]*schema.StoredLead, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("find many", err)
	}
	order, err := filter.ParseOrder()
	if err != nil {
		return nil, err
	}
	cursor, hasCursor, err := filter.ParseCursor()
	if err != nil {
		return nil, err
	}
	where, err := filter.ParseWhere()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []*schema.StoredLead
	for _, stored := range s.leads {
		if hasCursor && stored.ID < cursor {
			continue
		}
		if where != nil {
			ok, err := documentContains(stored.Lead, where)
			if err != nil {
				s.mu.RUnlock()
				return nil, wrapErr("find many", err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, cloneStored(stored))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *schema.StoredLead) int {
		for _, term := range order {
			c := compareColumn(a, b, term.Column)
			if term.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if filter.Skip != nil && *filter.Skip > 0 {
		if *filter.Skip >= len(out) {
			return nil, nil
		}
		out = out[*filter.Skip:]
	}
	if filter.Take != nil && *filter.Take >= 0 && *filter.Take < len(out) {
		out = out[:*filter.Take]
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id int64, lead *schema.Lead) (*schema.StoredLead, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapErr("update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	stored.Lead = cloneLead(*lead)
	return cloneStored(stored), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[id]; !ok {
		return ErrNotFound
	}
	delete(s.leads, id)
	return nil
}

// Len returns the number of stored leads.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}

func cloneLead(l schema.Lead) schema.Lead {
	l.Sales = slices.Clone(l.Sales)
	return l
}

func cloneStored(s *schema.StoredLead) *schema.StoredLead {
	cp := *s
	cp.Lead = cloneLead(s.Lead)
	return &cp
}

func compareColumn(a, b *schema.StoredLead, column string) int {
	switch column {
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "applied_at":
		return compareTimePtr(a.AppliedAt, b.AppliedAt)
	case "product":
		return cmp.Compare(a.Product, b.Product)
	case "stream":
		return cmp.Compare(a.Stream, b.Stream)
	case "type":
		return cmp.Compare(a.Type, b.Type)
	default:
		return cmp.Compare(a.ID, b.ID)
	}
}

// compareTimePtr orders nil after any time, as Postgres does for NULLs in
// ascending order.
func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}

// documentContains reports whether the lead's JSON document contains where,
// following Postgres jsonb @> rules.
func documentContains(lead schema.Lead, where map[string]any) (bool, error) {
	data, err := json.Marshal(lead)
	if err != nil {
		return false, fmt.Errorf("encode lead: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("decode lead: %w", err)
	}
	return jsonContains(doc, where), nil
}

func jsonContains(doc, sub any) bool {
	switch s := sub.(type) {
	case map[string]any:
		d, ok := doc.(map[string]any)
		if !ok {
			return false
		}
		for k, sv := range s {
			dv, ok := d[k]
			if !ok || !jsonContains(dv, sv) {
				return false
			}
		}
		return true
	case []any:
		d, ok := doc.([]any)
		if !ok {
			return false
		}
		for _, sv := range s {
			if !slices.ContainsFunc(d, func(dv any) bool { return jsonContains(dv, sv) }) {
				return false
			}
		}
		return true
	default:
		return doc == sub
	}
}
