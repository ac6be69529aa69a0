package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanishdngl/Event-sub000/internal/auth"
	"github.com/Sanishdngl/Event-sub000/internal/metrics"
	"github.com/Sanishdngl/Event-sub000/internal/store"
)

const testSecret = "ws-test-secret"

// wireFrame mirrors ServerFrame for decoding on the client side of tests.
type wireFrame struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	NotificationID string          `json:"notificationId"`
	Count          *int64          `json:"count"`
	Message        string          `json:"message"`
}

type harness struct {
	store    *store.Memory
	dir      *auth.MemoryDirectory
	registry *Registry
	engine   *Engine
	ts       *httptest.Server
}

func newHarness(t *testing.T, cfg RegistryConfig) *harness {
	t.Helper()
	logger := zerolog.Nop()
	m := metrics.NewRegistry(prometheus.NewRegistry())

	st := store.NewMemory()
	dir := auth.NewMemoryDirectory()
	gate := auth.NewGate(testSecret, dir)
	registry := NewRegistry(cfg, logger, m)
	engine := NewEngine(registry, logger, m)
	router := NewRouter(st, engine, logger)
	server := NewServer(ServerConfig{}, gate, registry, router, logger, m)

	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		registry.Close()
		ts.Close()
	})
	return &harness{store: st, dir: dir, registry: registry, engine: engine, ts: ts}
}

// addUser registers an account and returns its id and a valid token.
func (h *harness) addUser(t *testing.T, roleID, roleName string) (string, string) {
	t.Helper()
	userID := uuid.NewString()
	h.dir.Add(auth.Account{ID: userID, RoleID: roleID, RoleName: roleName})
	token, err := auth.SignToken(testSecret, userID, time.Minute)
	require.NoError(t, err)
	return userID, token
}

func (h *harness) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL(token), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame ClientFrame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f wireFrame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandshakeCloseCodes(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	noRoleID := uuid.NewString()
	h.dir.Add(auth.Account{ID: noRoleID})

	sign := func(subject string) string {
		token, err := auth.SignToken(testSecret, subject, time.Minute)
		require.NoError(t, err)
		return token
	}

	cases := []struct {
		name  string
		token string
		code  int
	}{
		{"missing token", "", auth.CloseMissingCredential},
		{"garbage token", "not.a.jwt", auth.CloseInvalidCredential},
		{"empty subject", sign(""), auth.CloseMalformedSubject},
		{"non uuid subject", sign("user-42"), auth.CloseInvalidSubjectFormat},
		{"unknown subject", sign(uuid.NewString()), auth.CloseSubjectNotFound},
		{"account without role", sign(noRoleID), auth.CloseRoleNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// the upgrade succeeds; the rejection arrives as a close frame
			conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL(tc.token), nil)
			require.NoError(t, err)
			resp.Body.Close()
			defer conn.Close()

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			_, _, err = conn.ReadMessage()
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, tc.code, closeErr.Code)
		})
	}

	assert.Zero(t, h.registry.Len())
}

func TestPingPong(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	_, token := h.addUser(t, "r1", "Attendee")
	conn := h.dial(t, token)

	send(t, conn, ClientFrame{Type: TypePing})
	assert.Equal(t, TypePong, readFrame(t, conn).Type)
}

func TestUnknownCommandIsRecoverable(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	_, token := h.addUser(t, "r1", "Attendee")
	conn := h.dial(t, token)

	send(t, conn, ClientFrame{Type: "frobnicate"})
	frame := readFrame(t, conn)
	assert.Equal(t, TypeError, frame.Type)
	assert.Contains(t, frame.Message, "frobnicate")

	// not JSON at all is recoverable too
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	assert.Equal(t, TypeError, readFrame(t, conn).Type)

	// the connection survived both
	send(t, conn, ClientFrame{Type: TypePing})
	assert.Equal(t, TypePong, readFrame(t, conn).Type)
}

func TestReadNotificationCommand(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	userID, token := h.addUser(t, "r1", "Attendee")

	n, err := h.store.Create(context.Background(), &store.Notification{
		Message: "hello", Type: store.TypeSystemNotification, UserID: userID,
	})
	require.NoError(t, err)

	conn := h.dial(t, token)
	payload, _ := json.Marshal(ReadNotificationPayload{NotificationID: n.ID})
	send(t, conn, ClientFrame{Type: TypeReadNotification, Payload: payload})

	frame := readFrame(t, conn)
	assert.Equal(t, TypeNotificationRead, frame.Type)
	assert.Equal(t, n.ID, frame.NotificationID)

	unread, err := h.store.CountUnread(context.Background(), []store.Recipient{store.User(userID)})
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestReadNotificationOwnedByRole(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	userID, token := h.addUser(t, "r1", "Organizer")

	// addressed to the role cohort, not to the user directly
	n, err := h.store.Create(context.Background(), &store.Notification{
		Message: "for organizers", Type: store.TypeSystemNotification, ForRole: "Organizer",
	})
	require.NoError(t, err)

	conn := h.dial(t, token)
	payload, _ := json.Marshal(ReadNotificationPayload{NotificationID: n.ID})
	send(t, conn, ClientFrame{Type: TypeReadNotification, Payload: payload})

	frame := readFrame(t, conn)
	assert.Equal(t, TypeNotificationRead, frame.Type)
	assert.Equal(t, n.ID, frame.NotificationID)

	unread, err := h.store.CountUnread(context.Background(),
		[]store.Recipient{store.User(userID), store.Role("Organizer")})
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestReadNotificationScoping(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	_, token := h.addUser(t, "r1", "Attendee")

	other, err := h.store.Create(context.Background(), &store.Notification{
		Message: "not yours", Type: store.TypeSystemNotification, UserID: uuid.NewString(),
	})
	require.NoError(t, err)

	conn := h.dial(t, token)
	payload, _ := json.Marshal(ReadNotificationPayload{NotificationID: other.ID})
	send(t, conn, ClientFrame{Type: TypeReadNotification, Payload: payload})

	frame := readFrame(t, conn)
	assert.Equal(t, TypeError, frame.Type)
	assert.Contains(t, frame.Message, "not found")

	// missing id is rejected before hitting the store
	send(t, conn, ClientFrame{Type: TypeReadNotification})
	assert.Equal(t, TypeError, readFrame(t, conn).Type)
}

func TestReadAllCommand(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	userID, token := h.addUser(t, "r1", "Attendee")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.store.Create(ctx, &store.Notification{
			Message: "m", Type: store.TypeSystemNotification, UserID: userID,
		})
		require.NoError(t, err)
	}

	conn := h.dial(t, token)
	send(t, conn, ClientFrame{Type: TypeReadAll})
	assert.Equal(t, TypeAllRead, readFrame(t, conn).Type)

	unread, err := h.store.CountUnread(ctx, []store.Recipient{store.User(userID)})
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestSubscribeUnreadCommand(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	userID, token := h.addUser(t, "r1", "Attendee")

	for i := 0; i < 2; i++ {
		_, err := h.store.Create(context.Background(), &store.Notification{
			Message: "m", Type: store.TypeSystemNotification, UserID: userID,
		})
		require.NoError(t, err)
	}

	conn := h.dial(t, token)
	send(t, conn, ClientFrame{Type: TypeSubscribeUnread})

	frame := readFrame(t, conn)
	assert.Equal(t, TypeUnreadCount, frame.Type)
	require.NotNil(t, frame.Count)
	assert.Equal(t, int64(2), *frame.Count)
}

func TestSubscribeAdminCommand(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	ctx := context.Background()

	_, err := h.store.Create(ctx, &store.Notification{
		Message: "join request", Type: store.TypeEventRequest, EventID: "e1", ForRole: AdminRole,
	})
	require.NoError(t, err)

	t.Run("non admin is refused", func(t *testing.T) {
		_, token := h.addUser(t, "r2", "Attendee")
		conn := h.dial(t, token)

		send(t, conn, ClientFrame{Type: TypeSubscribeAdmin})
		frame := readFrame(t, conn)
		assert.Equal(t, TypeError, frame.Type)
		assert.Contains(t, frame.Message, "Admin")
	})

	t.Run("admin receives pending requests", func(t *testing.T) {
		_, token := h.addUser(t, "r1", AdminRole)
		conn := h.dial(t, token)

		send(t, conn, ClientFrame{Type: TypeSubscribeAdmin})
		frame := readFrame(t, conn)
		assert.Equal(t, TypeNotification, frame.Type)

		var payload struct {
			Notification store.Notification `json:"notification"`
		}
		require.NoError(t, json.Unmarshal(frame.Payload, &payload))
		assert.Equal(t, store.TypeEventRequest, payload.Notification.Type)
		assert.Equal(t, "join request", payload.Notification.Message)
	})
}

func TestBroadcastToUser(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	userID, token := h.addUser(t, "r1", "Attendee")
	_, otherToken := h.addUser(t, "r1", "Attendee")

	tab1 := h.dial(t, token)
	tab2 := h.dial(t, token)
	other := h.dial(t, otherToken)

	require.Eventually(t, func() bool { return h.registry.Len() == 3 },
		time.Second, 10*time.Millisecond)

	delivered := h.engine.ToUser(userID, NotificationReadFrame("n1"))
	assert.Equal(t, 2, delivered)

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		frame := readFrame(t, conn)
		assert.Equal(t, TypeNotificationRead, frame.Type)
		assert.Equal(t, "n1", frame.NotificationID)
	}
	expectNoFrame(t, other)
}

func TestBroadcastToRole(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	_, adminToken := h.addUser(t, "r1", AdminRole)
	_, attendeeToken := h.addUser(t, "r2", "Attendee")

	admin := h.dial(t, adminToken)
	attendee := h.dial(t, attendeeToken)

	require.Eventually(t, func() bool { return h.registry.Len() == 2 },
		time.Second, 10*time.Millisecond)

	n := &store.Notification{ID: "n1", Message: "pending", Type: store.TypeEventRequest,
		EventID: "e1", ForRole: AdminRole, Status: store.StatusUnread}
	delivered := h.engine.ToRole(AdminRole, NotificationFrame(n))
	assert.Equal(t, 1, delivered)

	assert.Equal(t, TypeNotification, readFrame(t, admin).Type)
	expectNoFrame(t, attendee)

	// role id addressing reaches the same cohort
	delivered = h.engine.ToRole("r2", PongFrame())
	assert.Equal(t, 1, delivered)
	assert.Equal(t, TypePong, readFrame(t, attendee).Type)
}

func TestEvictIsIdempotent(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	_, token := h.addUser(t, "r1", "Attendee")
	h.dial(t, token)

	require.Eventually(t, func() bool { return h.registry.Len() == 1 },
		time.Second, 10*time.Millisecond)
	id := h.registry.Snapshot()[0].ID

	assert.True(t, h.registry.Evict(id, EvictSlowClient))
	assert.False(t, h.registry.Evict(id, EvictSlowClient))
	assert.Zero(t, h.registry.Len())
}

func TestRateLimitSheds(t *testing.T) {
	h := newHarness(t, RegistryConfig{MessageRate: 1, MessageBurst: 1})
	_, token := h.addUser(t, "r1", "Attendee")
	conn := h.dial(t, token)

	send(t, conn, ClientFrame{Type: TypePing})
	send(t, conn, ClientFrame{Type: TypePing})

	assert.Equal(t, TypePong, readFrame(t, conn).Type)
	frame := readFrame(t, conn)
	assert.Equal(t, TypeError, frame.Type)
	assert.Contains(t, frame.Message, "rate limit")

	// shed, not evicted
	assert.Equal(t, 1, h.registry.Len())
}

func TestHeartbeatEvictsUnresponsive(t *testing.T) {
	h := newHarness(t, RegistryConfig{
		PingInterval: 50 * time.Millisecond,
		PongTimeout:  50 * time.Millisecond,
	})
	_, token := h.addUser(t, "r1", "Attendee")
	conn := h.dial(t, token)

	// swallow pings instead of answering, simulating a wedged client
	conn.SetPingHandler(func(string) error { return nil })
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return h.registry.Len() == 0 },
		2*time.Second, 20*time.Millisecond)
}

func TestHeartbeatKeepsResponsiveConnection(t *testing.T) {
	h := newHarness(t, RegistryConfig{
		PingInterval: 50 * time.Millisecond,
		PongTimeout:  50 * time.Millisecond,
	})
	_, token := h.addUser(t, "r1", "Attendee")
	conn := h.dial(t, token)

	// the default ping handler answers with a pong
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, h.registry.Len())
}

func TestRegistryCloseEvictsAll(t *testing.T) {
	h := newHarness(t, RegistryConfig{})
	_, token := h.addUser(t, "r1", "Attendee")
	h.dial(t, token)
	h.dial(t, token)

	require.Eventually(t, func() bool { return h.registry.Len() == 2 },
		time.Second, 10*time.Millisecond)

	h.registry.Close()
	assert.Zero(t, h.registry.Len())
}
