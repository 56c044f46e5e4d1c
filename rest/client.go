// Package rest is the thin client for the chat server's REST collaborator
// endpoints: message deletion and history search. Every response carries a
// code field where 0 means success; non-zero codes surface as an *Error and
// are never retried here.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Error is a non-zero application code returned by a collaborator endpoint.
type Error struct {
	Code int    `json:"code"`
	Info string `json:"info"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Info)
}

// HistoryEntry is one search result. The search endpoints flatten the sender
// relation into prefixed field names.
type HistoryEntry struct {
	Content      string `json:"content"`
	SenderName   string `json:"sender__name"`
	SenderAvatar string `json:"sender__avatar"`
	MessageID    int64  `json:"msg_id"`
	Time         string `json:"create_time"`
}

type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	c := &Client{
		base:   base,
		token:  token,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DeleteMessage deletes one message for the calling user.
func (c *Client) DeleteMessage(ctx context.Context, roomID, messageID int64) error {
	q := url.Values{}
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	q.Set("message_id", strconv.FormatInt(messageID, 10))

	var body struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	}
	if err := c.call(ctx, http.MethodDelete, "/api/communication/delete/message", q, &body); err != nil {
		return err
	}
	if body.Code != 0 {
		return &Error{Code: body.Code, Info: body.Info}
	}
	return nil
}

// SearchByRoom returns the full searchable history of a room.
func (c *Client) SearchByRoom(ctx context.Context, roomID int64) ([]HistoryEntry, error) {
	q := url.Values{}
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	return c.search(ctx, "/api/communication/searchby/room", q)
}

// SearchByMember returns a room's history restricted to one sender.
func (c *Client) SearchByMember(ctx context.Context, roomID, memberID int64) ([]HistoryEntry, error) {
	q := url.Values{}
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	q.Set("member_user_id", strconv.FormatInt(memberID, 10))
	return c.search(ctx, "/api/communication/searchby/member", q)
}

// SearchByDate returns a room's history for one day, date formatted as
// YYYY-MM-DD.
func (c *Client) SearchByDate(ctx context.Context, roomID int64, date string) ([]HistoryEntry, error) {
	q := url.Values{}
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	q.Set("date", date)
	return c.search(ctx, "/api/communication/searchby/date", q)
}

func (c *Client) search(ctx context.Context, path string, q url.Values) ([]HistoryEntry, error) {
	var body struct {
		Code     int            `json:"code"`
		Info     string         `json:"info"`
		Messages []HistoryEntry `json:"messages"`
	}
	if err := c.call(ctx, http.MethodGet, path, q, &body); err != nil {
		return nil, err
	}
	if body.Code != 0 {
		return nil, &Error{Code: body.Code, Info: body.Info}
	}
	return body.Messages, nil
}

func (c *Client) call(ctx context.Context, method, path string, q url.Values, v any) error {
	u := *c.base
	u.Path, _ = url.JoinPath(u.Path, path)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug(fmt.Sprintf("%s %s: %s", method, path, resp.Status))

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
