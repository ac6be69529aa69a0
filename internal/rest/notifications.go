// Package rest is the paginated collaborator surface over the same
// notification store the WebSocket layer mutates, so a client refreshing
// over REST always sees socket-driven changes and vice versa.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Sanishdngl/Event-sub000/internal/auth"
	"github.com/Sanishdngl/Event-sub000/internal/notify"
	"github.com/Sanishdngl/Event-sub000/internal/store"
	"github.com/Sanishdngl/Event-sub000/internal/ws"
)

// Handler serves the /api/notifications routes.
type Handler struct {
	store     store.Store
	gate      *auth.Gate
	publisher *notify.Publisher
	engine    *ws.Engine
	logger    zerolog.Logger
}

// NewHandler wires the REST surface.
func NewHandler(st store.Store, gate *auth.Gate, publisher *notify.Publisher, engine *ws.Engine, logger zerolog.Logger) *Handler {
	return &Handler{store: st, gate: gate, publisher: publisher, engine: engine, logger: logger}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications", h.authed(h.list))
	mux.HandleFunc("POST /api/notifications", h.authed(h.create))
	mux.HandleFunc("POST /api/notifications/read-all", h.authed(h.readAll))
	mux.HandleFunc("GET /api/notifications/unread-count", h.authed(h.unreadCount))
	mux.HandleFunc("POST /api/notifications/{id}/read", h.authed(h.readOne))
	mux.HandleFunc("DELETE /api/notifications/{id}", h.authed(h.delete))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, identity auth.Identity)

// authed resolves the bearer credential (Authorization header first, then
// the token query parameter) through the same gate the handshake uses.
func (h *Handler) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		identity, err := h.gate.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, identity)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	q := store.ListQuery{
		Page:   intParam(r, "page", 1),
		Limit:  intParam(r, "limit", 10),
		Filter: store.Filter(r.URL.Query().Get("filter")),
	}
	if q.Filter != "" && !q.Filter.Valid() {
		writeError(w, http.StatusBadRequest, "invalid filter")
		return
	}

	page, err := h.store.List(r.Context(), identity.Recipients(), q)
	if err != nil {
		h.logger.Error().Err(err).Msg("list notifications failed")
		writeError(w, http.StatusInternalServerError, "could not list notifications")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	if identity.RoleName != ws.AdminRole {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	var n store.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification body")
		return
	}

	created, err := h.publisher.Publish(r.Context(), &n)
	if err != nil {
		h.logger.Error().Err(err).Msg("publish notification failed")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) readOne(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	id := r.PathValue("id")
	n, err := h.store.MarkRead(r.Context(), id, identity.Recipients())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("notification_id", id).Msg("mark read failed")
		writeError(w, http.StatusInternalServerError, "could not mark notification read")
		return
	}

	// Mirror the ack over the push channel so other open tabs converge.
	h.engine.ToUser(identity.UserID, ws.NotificationReadFrame(n.ID))
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) readAll(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	count, err := h.store.MarkAllRead(r.Context(), identity.Recipients())
	if err != nil {
		h.logger.Error().Err(err).Msg("mark all read failed")
		writeError(w, http.StatusInternalServerError, "could not mark notifications read")
		return
	}

	h.engine.ToUser(identity.UserID, ws.AllReadFrame())
	writeJSON(w, http.StatusOK, map[string]int64{"updated": count})
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	count, err := h.store.CountUnread(r.Context(), identity.Recipients())
	if err != nil {
		h.logger.Error().Err(err).Msg("count unread failed")
		writeError(w, http.StatusInternalServerError, "could not count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	id := r.PathValue("id")
	err := h.store.Delete(r.Context(), id, identity.Recipients())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("notification_id", id).Msg("delete failed")
		writeError(w, http.StatusInternalServerError, "could not delete notification")
		return
	}

	h.publisher.PublishDeleted(identity.UserID, id)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
