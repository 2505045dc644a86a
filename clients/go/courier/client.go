// Package courier provides a client for the courier message delivery
// service.
package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Client is a courier API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	UserID     string
	Username   string
	HTTPClient *http.Client
}

// Config holds the locally persisted identity.
type Config struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// NewClient creates a new courier client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("COURIER_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".courier")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the saved identity from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "user.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.UserID = config.ID
	c.Username = config.Username
	return nil
}

// SaveConfig saves the identity to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	config := Config{ID: c.UserID, Username: c.Username}
	data, _ := json.MarshalIndent(config, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "user.json"), data, 0600)
}

// APIError is a non-2xx response from the service. The status code
// lets callers tell permanent rejections from transient outages.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("courier error %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request later could
// succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusServiceUnavailable ||
		e.StatusCode == http.StatusTooManyRequests
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.UserID != "" {
		req.Header.Set("X-User-ID", c.UserID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, nil
}

// Message represents a delivered message.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// User represents a directory entry.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	Online    bool      `json:"online"`
}

// RegisterRequest is the request body for directory registration.
type RegisterRequest struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
}

// Register registers a username and persists the returned identity.
func (c *Client) Register(username string) (*User, error) {
	req := RegisterRequest{Username: username}
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest(context.Background(), "POST", "/users", body)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, err
	}

	c.UserID = user.ID
	c.Username = user.Username
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}

	return &user, nil
}

// GetUser fetches a directory entry by ID.
func (c *Client) GetUser(userID string) (*User, error) {
	respBody, err := c.doRequest(context.Background(), "GET", "/users/"+userID, nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// LookupUser resolves a username to a directory entry.
func (c *Client) LookupUser(username string) (*User, error) {
	respBody, err := c.doRequest(context.Background(), "GET", "/users?username="+url.QueryEscape(username), nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendMessage sends a message and returns the stored form with its
// server-assigned ID and timestamp.
func (c *Client) SendMessage(to, body string) (*Message, error) {
	req := SendMessageRequest{To: to, Body: body}
	reqBody, _ := json.Marshal(req)

	respBody, err := c.doRequest(context.Background(), "POST", "/messages", reqBody)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PollResponse is the response from polling.
type PollResponse struct {
	Messages []Message `json:"messages"`
}

// Poll fetches messages newer than since for this client's user,
// oldest first.
func (c *Client) Poll(since int64, limit int) ([]Message, error) {
	return c.PollContext(context.Background(), since, limit)
}

// PollContext is Poll with a caller-supplied context, so an in-flight
// poll can be abandoned.
func (c *Client) PollContext(ctx context.Context, since int64, limit int) ([]Message, error) {
	path := fmt.Sprintf("/messages/poll/%s?since=%d&limit=%d", c.UserID, since, limit)

	respBody, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp PollResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// HistoryResponse is the response from the history endpoint.
type HistoryResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// History fetches a page of durable conversation history with one
// partner, newest first.
func (c *Client) History(partnerID string, before int64, limit int) (*HistoryResponse, error) {
	path := fmt.Sprintf("/messages/history/%s/%s?limit=%d", c.UserID, partnerID, limit)
	if before > 0 {
		path += fmt.Sprintf("&before=%d", before)
	}

	respBody, err := c.doRequest(context.Background(), "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp HistoryResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Conversation represents one conversation summary.
type Conversation struct {
	PartnerID       string `json:"partner_id"`
	PartnerUsername string `json:"partner_username"`
	LastFrom        string `json:"last_from"`
	LastBody        string `json:"last_body"`
	LastTimestamp   int64  `json:"last_timestamp"`
	UnreadCount     int64  `json:"unread_count"`
}

// ConversationsResponse is the response from the conversations endpoint.
type ConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
}

// Conversations lists this user's conversations, most recent first.
func (c *Client) Conversations() ([]Conversation, error) {
	respBody, err := c.doRequest(context.Background(), "GET", "/conversations/"+c.UserID, nil)
	if err != nil {
		return nil, err
	}

	var resp ConversationsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// UnreadResponse is the response from the unread endpoint.
type UnreadResponse struct {
	Unread map[string]int64 `json:"unread"`
	Total  int64            `json:"total"`
}

// Unread fetches per-sender unread counts.
func (c *Client) Unread() (*UnreadResponse, error) {
	respBody, err := c.doRequest(context.Background(), "GET", "/messages/unread/"+c.UserID, nil)
	if err != nil {
		return nil, err
	}

	var resp UnreadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead clears the unread counter for one partner.
func (c *Client) MarkRead(partnerID string) error {
	body, _ := json.Marshal(map[string]string{"partner_id": partnerID})
	_, err := c.doRequest(context.Background(), "POST", "/messages/read", body)
	return err
}

// Typing notifies the recipient that this user is typing.
func (c *Client) Typing(to string) error {
	body, _ := json.Marshal(map[string]string{"to": to})
	_, err := c.doRequest(context.Background(), "POST", "/typing", body)
	return err
}

// IsTyping reports whether the partner is typing to this user.
func (c *Client) IsTyping(partnerID string) (bool, error) {
	path := fmt.Sprintf("/typing/%s/%s", c.UserID, partnerID)
	respBody, err := c.doRequest(context.Background(), "GET", path, nil)
	if err != nil {
		return false, err
	}

	var resp struct {
		Typing bool `json:"typing"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return false, err
	}
	return resp.Typing, nil
}

// Online marks this user online.
func (c *Client) Online() error {
	_, err := c.doRequest(context.Background(), "POST", "/presence/online", nil)
	return err
}

// Offline removes this user's presence.
func (c *Client) Offline() error {
	_, err := c.doRequest(context.Background(), "POST", "/presence/offline", nil)
	return err
}

// OnlineUsersResponse is the response from the online users endpoint.
type OnlineUsersResponse struct {
	Online []string `json:"online"`
	Count  int      `json:"count"`
}

// OnlineUsers lists currently online users.
func (c *Client) OnlineUsers() (*OnlineUsersResponse, error) {
	respBody, err := c.doRequest(context.Background(), "GET", "/presence/online", nil)
	if err != nil {
		return nil, err
	}

	var resp OnlineUsersResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest(context.Background(), "GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
