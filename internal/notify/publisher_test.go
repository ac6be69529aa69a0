package notify

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanishdngl/Event-sub000/internal/metrics"
	"github.com/Sanishdngl/Event-sub000/internal/store"
	"github.com/Sanishdngl/Event-sub000/internal/ws"
)

func newPublisher(t *testing.T) (*Publisher, *store.Memory) {
	t.Helper()
	logger := zerolog.Nop()
	m := metrics.NewRegistry(prometheus.NewRegistry())
	registry := ws.NewRegistry(ws.RegistryConfig{}, logger, m)
	t.Cleanup(registry.Close)
	st := store.NewMemory()
	return NewPublisher(st, ws.NewEngine(registry, logger, m), logger), st
}

func TestPublishPersists(t *testing.T) {
	p, st := newPublisher(t)
	ctx := context.Background()

	created, err := p.Publish(ctx, &store.Notification{
		Message: "event approved",
		Type:    store.TypeEventResponse,
		EventID: "e1",
		UserID:  "u1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, store.StatusUnread, created.Status)

	count, err := st.CountUnread(ctx, []store.Recipient{store.User("u1")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPublishRejectsInvalid(t *testing.T) {
	p, st := newPublisher(t)
	ctx := context.Background()

	_, err := p.Publish(ctx, &store.Notification{
		Message: "dangling event notification",
		Type:    store.TypeEventUpdate,
		UserID:  "u1",
	})
	require.Error(t, err)

	// nothing was persisted
	count, err := st.CountUnread(ctx, []store.Recipient{store.User("u1")})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPublishWithoutListeners(t *testing.T) {
	p, _ := newPublisher(t)

	// the push side is best-effort; no open connection is not an error
	_, err := p.Publish(context.Background(), &store.Notification{
		Message: "pending request",
		Type:    store.TypeEventRequest,
		EventID: "e1",
		ForRole: "Admin",
	})
	assert.NoError(t, err)
}
