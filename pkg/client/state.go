package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// filterMatch mirrors the server-side listing filter for push events.
func filterMatch(filter string, n Notification) bool {
	switch filter {
	case "", "all":
		return true
	case "unread":
		return n.Status == "unread"
	case "event":
		return n.Type == "event_request" || n.Type == "event_response" || n.Type == "event_update"
	case "system":
		return n.Type == "system_notification"
	case "profile":
		return n.Type == "profile_update"
	}
	return false
}

// StateSync reconciles the locally held notification list and unread count
// against three input streams: paginated REST fetches (authoritative),
// unsolicited WS pushes (prepend, de-duplicated by id), and optimistic
// local actions (forwarded to both REST and the WS command channel, rolled
// back via re-fetch when REST fails). One instance is the single source of
// truth per consumer.
type StateSync struct {
	rest   *RESTClient
	mgr    *Manager
	logger zerolog.Logger

	mu         sync.Mutex
	items      []Notification
	page       int
	totalPages int
	total      int64
	limit      int
	unread     int64
	filter     string
}

// NewStateSync wires a sync against the REST client and socket manager and
// subscribes to the push events it reconciles.
func NewStateSync(rest *RESTClient, mgr *Manager, filter string, limit int, logger zerolog.Logger) *StateSync {
	if limit <= 0 {
		limit = 10
	}
	s := &StateSync{rest: rest, mgr: mgr, logger: logger, filter: filter, limit: limit, page: 1}

	mgr.On(EventNotification, s.onPush)
	mgr.On(EventNotificationRead, s.onNotificationRead)
	mgr.On(EventAllRead, s.onAllRead)
	mgr.On(EventNotificationDeleted, s.onDeleted)
	mgr.On(EventUnreadCount, s.onUnreadCount)
	return s
}

// Detach unsubscribes every handler, for clean consumer teardown.
func (s *StateSync) Detach() {
	s.mgr.Off(EventNotification, s.onPush)
	s.mgr.Off(EventNotificationRead, s.onNotificationRead)
	s.mgr.Off(EventAllRead, s.onAllRead)
	s.mgr.Off(EventNotificationDeleted, s.onDeleted)
	s.mgr.Off(EventUnreadCount, s.onUnreadCount)
}

// Load fetches one REST page: page 1 replaces the list, later pages append
// (skipping ids already present, since a push may have landed in between).
func (s *StateSync) Load(ctx context.Context, page int) error {
	res, err := s.rest.List(ctx, page, s.Limit(), s.Filter())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Page <= 1 {
		s.items = res.Items
	} else {
		for _, n := range res.Items {
			if !s.containsLocked(n.ID) {
				s.items = append(s.items, n)
			}
		}
	}
	s.page = res.Page
	s.totalPages = res.TotalPages
	s.total = res.Total
	s.limit = res.Limit
	return nil
}

// Refresh discards local state in favour of the server's: first page plus
// the authoritative unread count.
func (s *StateSync) Refresh(ctx context.Context) error {
	if err := s.Load(ctx, 1); err != nil {
		return err
	}
	count, err := s.rest.UnreadCount(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unread = count
	s.mu.Unlock()
	return nil
}

// MarkRead applies the read optimistically, then forwards it to both the
// REST endpoint and the WS command channel for redundancy. On REST failure
// the state is re-fetched so the optimistic change never lingers
// unexplained.
func (s *StateSync) MarkRead(ctx context.Context, id string) error {
	s.markReadLocal(id)

	payload, _ := json.Marshal(notificationIDPayload{NotificationID: id})
	_ = s.mgr.Send(Frame{Type: CommandReadNotification, Payload: payload})

	if _, err := s.rest.MarkRead(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", id).Msg("mark read rejected, re-fetching")
		if rerr := s.Refresh(ctx); rerr != nil {
			s.logger.Error().Err(rerr).Msg("re-fetch after failed mark read also failed")
		}
		return err
	}
	return nil
}

// MarkAllRead is the bulk variant of MarkRead.
func (s *StateSync) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].Read = true
		s.items[i].Status = "read"
	}
	s.unread = 0
	s.mu.Unlock()

	_ = s.mgr.Send(Frame{Type: CommandReadAll})

	if err := s.rest.MarkAllRead(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("mark all read rejected, re-fetching")
		if rerr := s.Refresh(ctx); rerr != nil {
			s.logger.Error().Err(rerr).Msg("re-fetch after failed mark all read also failed")
		}
		return err
	}
	return nil
}

// Delete removes the notification optimistically and confirms over REST.
func (s *StateSync) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	for i, n := range s.items {
		if n.ID == id {
			if n.Status == "unread" && s.unread > 0 {
				s.unread--
			}
			s.items = append(s.items[:i], s.items[i+1:]...)
			if s.total > 0 {
				s.total--
			}
			break
		}
	}
	s.mu.Unlock()

	if err := s.rest.Delete(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", id).Msg("delete rejected, re-fetching")
		if rerr := s.Refresh(ctx); rerr != nil {
			s.logger.Error().Err(rerr).Msg("re-fetch after failed delete also failed")
		}
		return err
	}
	return nil
}

// SubscribeUnreadCount asks the server to push a fresh unread count.
func (s *StateSync) SubscribeUnreadCount() {
	_ = s.mgr.Send(Frame{Type: CommandSubscribeUnread})
}

// Items returns a copy of the visible list, newest first.
func (s *StateSync) Items() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// UnreadCount returns the cached unread projection. Best-effort: the
// authoritative value is always re-derivable from the store.
func (s *StateSync) UnreadCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Pagination returns the page cursor state.
func (s *StateSync) Pagination() (page, totalPages, limit int, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page, s.totalPages, s.limit, s.total
}

// Filter returns the active listing filter.
func (s *StateSync) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Limit returns the page size.
func (s *StateSync) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// SetFilter changes the filter; callers follow with Load(ctx, 1).
func (s *StateSync) SetFilter(filter string) {
	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
}

// ApplyPush merges a pushed notification: de-duplicate by id, honour the
// active filter, synthesize a temporary id when the push omitted one so
// consumer keys stay stable. Returns whether the list changed.
func (s *StateSync) ApplyPush(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = "local-" + uuid.NewString()
	} else if s.containsLocked(n.ID) {
		return false
	}
	if !filterMatch(s.filter, n) {
		return false
	}

	s.items = append([]Notification{n}, s.items...)
	s.total++
	if n.Status == "unread" {
		s.unread++
	}
	return true
}

func (s *StateSync) containsLocked(id string) bool {
	for _, n := range s.items {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (s *StateSync) markReadLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == id {
			if n.Status == "unread" && s.unread > 0 {
				s.unread--
			}
			s.items[i].Read = true
			s.items[i].Status = "read"
			return
		}
	}
}

func (s *StateSync) onPush(frame Frame) {
	var payload notificationPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.logger.Debug().Err(err).Msg("dropping malformed notification push")
		return
	}
	s.ApplyPush(payload.Notification)
}

func (s *StateSync) onNotificationRead(frame Frame) {
	if frame.NotificationID != "" {
		s.markReadLocal(frame.NotificationID)
	}
}

func (s *StateSync) onAllRead(Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		s.items[i].Read = true
		s.items[i].Status = "read"
	}
	s.unread = 0
}

func (s *StateSync) onDeleted(frame Frame) {
	var payload notificationIDPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil || payload.NotificationID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.items {
		if n.ID == payload.NotificationID {
			if n.Status == "unread" && s.unread > 0 {
				s.unread--
			}
			s.items = append(s.items[:i], s.items[i+1:]...)
			if s.total > 0 {
				s.total--
			}
			return
		}
	}
}

func (s *StateSync) onUnreadCount(frame Frame) {
	if frame.Count == nil {
		return
	}
	s.mu.Lock()
	s.unread = *frame.Count
	s.mu.Unlock()
}
