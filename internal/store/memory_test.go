package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, m *Memory, n Notification) *Notification {
	t.Helper()
	created, err := m.Create(context.Background(), &n)
	require.NoError(t, err)
	return created
}

func TestCreateValidates(t *testing.T) {
	m := NewMemory()

	cases := []struct {
		name string
		n    Notification
	}{
		{"unknown type", Notification{Message: "m", Type: "bogus", UserID: "u1"}},
		{"empty message", Notification{Type: TypeSystemNotification, UserID: "u1"}},
		{"event scoped without event id", Notification{Message: "m", Type: TypeEventRequest, UserID: "u1"}},
		{"no recipient", Notification{Message: "m", Type: TypeSystemNotification}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Create(context.Background(), &tc.n)
			assert.Error(t, err)
		})
	}
}

func TestCreateDefaults(t *testing.T) {
	m := NewMemory()
	n := seed(t, m, Notification{Message: "hello", Type: TypeSystemNotification, UserID: "u1"})

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, StatusUnread, n.Status)
	assert.False(t, n.Read)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestListVisibility(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	mine := seed(t, m, Notification{Message: "for me", Type: TypeSystemNotification, UserID: "u1"})
	seed(t, m, Notification{Message: "for someone else", Type: TypeSystemNotification, UserID: "u2"})
	forRole := seed(t, m, Notification{Message: "for admins", Type: TypeSystemNotification, ForRole: "Admin"})

	page, err := m.List(ctx, []Recipient{User("u1"), Role("Admin")}, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	ids := map[string]bool{}
	for _, n := range page.Items {
		ids[n.ID] = true
	}
	assert.True(t, ids[mine.ID])
	assert.True(t, ids[forRole.ID])
}

func TestListOrderAndPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		seed(t, m, Notification{
			Message:   fmt.Sprintf("n%02d", i),
			Type:      TypeSystemNotification,
			UserID:    "u1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	page, err := m.List(ctx, []Recipient{User("u1")}, ListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(15), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 10)
	assert.Equal(t, "n14", page.Items[0].Message)
	assert.Equal(t, "n05", page.Items[9].Message)

	page, err = m.List(ctx, []Recipient{User("u1")}, ListQuery{Page: 2, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	assert.Equal(t, "n00", page.Items[4].Message)

	// past the last page is empty, not an error
	page, err = m.List(ctx, []Recipient{User("u1")}, ListQuery{Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestListFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rcpts := []Recipient{User("u1")}

	seed(t, m, Notification{Message: "sys", Type: TypeSystemNotification, UserID: "u1"})
	seed(t, m, Notification{Message: "prof", Type: TypeProfileUpdate, UserID: "u1"})
	req := seed(t, m, Notification{Message: "req", Type: TypeEventRequest, EventID: "e1", UserID: "u1"})
	seed(t, m, Notification{Message: "upd", Type: TypeEventUpdate, EventID: "e1", UserID: "u1"})

	_, err := m.MarkRead(ctx, req.ID, rcpts)
	require.NoError(t, err)

	for _, tc := range []struct {
		filter Filter
		want   int64
	}{
		{FilterAll, 4},
		{FilterUnread, 3},
		{FilterEvent, 2},
		{FilterSystem, 1},
		{FilterProfile, 1},
	} {
		page, err := m.List(ctx, rcpts, ListQuery{Filter: tc.filter})
		require.NoError(t, err)
		assert.Equal(t, tc.want, page.Total, "filter %q", tc.filter)
	}
}

func TestMarkRead(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	n := seed(t, m, Notification{Message: "m", Type: TypeSystemNotification, UserID: "u1"})

	updated, err := m.MarkRead(ctx, n.ID, []Recipient{User("u1")})
	require.NoError(t, err)
	assert.True(t, updated.Read)
	assert.Equal(t, StatusRead, updated.Status)

	// a second read is a no-op, not an error
	_, err = m.MarkRead(ctx, n.ID, []Recipient{User("u1")})
	assert.NoError(t, err)
}

func TestMarkReadScoping(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	n := seed(t, m, Notification{Message: "m", Type: TypeSystemNotification, UserID: "u1"})

	_, err := m.MarkRead(ctx, n.ID, []Recipient{User("u2")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.MarkRead(ctx, "no-such-id", []Recipient{User("u1")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkAllRead(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seed(t, m, Notification{Message: "a", Type: TypeSystemNotification, UserID: "u1"})
	seed(t, m, Notification{Message: "b", Type: TypeSystemNotification, ForRole: "Organizer"})
	seed(t, m, Notification{Message: "other", Type: TypeSystemNotification, UserID: "u2"})

	count, err := m.MarkAllRead(ctx, []Recipient{User("u1"), Role("Organizer")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	unread, err := m.CountUnread(ctx, []Recipient{User("u1"), Role("Organizer")})
	require.NoError(t, err)
	assert.Zero(t, unread)

	// the other user's notification is untouched
	unread, err = m.CountUnread(ctx, []Recipient{User("u2")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	n := seed(t, m, Notification{Message: "m", Type: TypeSystemNotification, UserID: "u1"})

	assert.ErrorIs(t, m.Delete(ctx, n.ID, []Recipient{User("u2")}), ErrNotFound)

	require.NoError(t, m.Delete(ctx, n.ID, []Recipient{User("u1")}))
	assert.ErrorIs(t, m.Delete(ctx, n.ID, []Recipient{User("u1")}), ErrNotFound)
}

func TestListRequests(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := seed(t, m, Notification{Message: "old req", Type: TypeEventRequest, EventID: "e1", ForRole: "Admin", CreatedAt: base})
	newer := seed(t, m, Notification{Message: "new req", Type: TypeEventRequest, EventID: "e2", ForRole: "Admin", CreatedAt: base.Add(time.Minute)})
	handled := seed(t, m, Notification{Message: "handled", Type: TypeEventRequest, EventID: "e3", ForRole: "Admin", CreatedAt: base.Add(2 * time.Minute)})
	seed(t, m, Notification{Message: "not a request", Type: TypeSystemNotification, ForRole: "Admin"})

	_, err := m.MarkRead(ctx, handled.ID, []Recipient{Role("Admin")})
	require.NoError(t, err)

	out, err := m.ListRequests(ctx, []Recipient{Role("Admin")})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, newer.ID, out[0].ID)
	assert.Equal(t, older.ID, out[1].ID)
}

func TestRecipientMatching(t *testing.T) {
	userScoped := &Notification{UserID: "u1", ForRole: "Admin"}
	roleScoped := &Notification{ForRole: "Admin"}

	assert.True(t, User("u1").Matches(userScoped))
	assert.False(t, User("u2").Matches(userScoped))
	assert.True(t, Role("Admin").Matches(roleScoped))
	assert.False(t, Role("Attendee").Matches(roleScoped))
	assert.False(t, MatchesAny(roleScoped, nil))
}
