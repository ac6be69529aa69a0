package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Used when no database is configured
// (development mode) and as the substitute store in tests.
type Memory struct {
	mu    sync.RWMutex
	items map[string]*Notification
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]*Notification)}
}

func (m *Memory) Create(_ context.Context, n *Notification) (*Notification, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	cp := *n
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = StatusUnread
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	m.mu.Lock()
	m.items[cp.ID] = &cp
	m.mu.Unlock()

	out := cp
	return &out, nil
}

// visible returns copies of notifications addressed to rcpts, newest first.
func (m *Memory) visible(rcpts []Recipient) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for _, n := range m.items {
		if MatchesAny(n, rcpts) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) List(_ context.Context, rcpts []Recipient, q ListQuery) (*Page, error) {
	q = q.normalized()

	all := m.visible(rcpts)
	filtered := all[:0:0]
	for _, n := range all {
		if q.Filter.Match(n) {
			filtered = append(filtered, n)
		}
	}

	total := int64(len(filtered))
	totalPages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	start := (q.Page - 1) * q.Limit
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + q.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return &Page{
		Items:      filtered[start:end],
		Page:       q.Page,
		TotalPages: totalPages,
		Total:      total,
		Limit:      q.Limit,
	}, nil
}

func (m *Memory) MarkRead(_ context.Context, id string, rcpts []Recipient) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.items[id]
	if !ok || !MatchesAny(n, rcpts) {
		return nil, ErrNotFound
	}
	n.Read = true
	n.Status = StatusRead
	cp := *n
	return &cp, nil
}

func (m *Memory) MarkAllRead(_ context.Context, rcpts []Recipient) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, n := range m.items {
		if n.Status == StatusUnread && MatchesAny(n, rcpts) {
			n.Read = true
			n.Status = StatusRead
			count++
		}
	}
	return count, nil
}

func (m *Memory) Delete(_ context.Context, id string, rcpts []Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.items[id]
	if !ok || !MatchesAny(n, rcpts) {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) CountUnread(_ context.Context, rcpts []Recipient) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, n := range m.items {
		if n.Status == StatusUnread && MatchesAny(n, rcpts) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) ListRequests(_ context.Context, rcpts []Recipient) ([]*Notification, error) {
	var out []*Notification
	for _, n := range m.visible(rcpts) {
		if n.Type == TypeEventRequest && n.Status == StatusUnread {
			out = append(out, n)
		}
	}
	return out, nil
}
