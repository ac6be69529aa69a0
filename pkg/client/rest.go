package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// RESTClient talks to the authoritative notification REST surface. The
// push channel is a hint; anything durable is read and written here.
type RESTClient struct {
	base  string // e.g. http://host:8080
	token string
	http  *http.Client
}

// NewRESTClient builds a client for base with a bearer token.
func NewRESTClient(base, token string) *RESTClient {
	return &RESTClient{base: base, token: token, http: http.DefaultClient}
}

// SetToken replaces the bearer credential.
func (c *RESTClient) SetToken(token string) { c.token = token }

func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// List fetches one page of notifications.
func (c *RESTClient) List(ctx context.Context, page, limit int, filter string) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if filter != "" {
		q.Set("filter", filter)
	}
	var out Page
	if err := c.do(ctx, http.MethodGet, "/api/notifications", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks one notification read.
func (c *RESTClient) MarkRead(ctx context.Context, id string) (*Notification, error) {
	var out Notification
	if err := c.do(ctx, http.MethodPost, "/api/notifications/"+id+"/read", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkAllRead marks every unread notification read.
func (c *RESTClient) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil)
}

// Delete removes one notification.
func (c *RESTClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/"+id, nil, nil)
}

// UnreadCount fetches the authoritative unread count.
func (c *RESTClient) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
