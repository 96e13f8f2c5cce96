// Package staffchat is the client-side synchronization core for staffloop
// chat. It keeps a consistent in-memory view of direct and channel
// conversations fed by the realtime transport, and reconciles optimistic
// local sends and deletions against server-confirmed events.
//
// Example:
//
//	client := staffchat.NewClient("https://hub.staffloop.dev",
//		staffchat.WithToken(token))
//
//	sess := staffchat.NewSession(client, staffchat.SessionOptions{
//		Identity: staffchat.StaticIdentity("E1"),
//	})
//	if err := sess.Initialize(ctx); err != nil { ... }
//	defer sess.Cleanup()
//
//	sess.SelectConversation(ctx, staffchat.ModeDirect, "E2")
//	sess.Send(ctx, "hello")
package staffchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://hub.staffloop.dev"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the thin REST client for the directory and history endpoints.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a staffchat REST client. baseURL may be "" for the
// default hub.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zerolog.Nop(),
	}
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured hub URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetToken sets or updates the auth token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server error (%d)", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ============================================================================
// Directory endpoints
// ============================================================================

// FetchEmployees retrieves the raw employee roster.
func (c *Client) FetchEmployees(ctx context.Context) ([]Participant, error) {
	data, err := c.doRequest(ctx, "GET", "/api/directory/employees", nil, nil)
	if err != nil {
		return nil, err
	}
	entries, err := decodeRoster(data, "employees")
	if err != nil {
		return nil, err
	}
	return participantsFromEntries(entries), nil
}

// FetchChannels retrieves the raw channel roster.
func (c *Client) FetchChannels(ctx context.Context) ([]Channel, error) {
	data, err := c.doRequest(ctx, "GET", "/api/directory/channels", nil, nil)
	if err != nil {
		return nil, err
	}
	entries, err := decodeRoster(data, "channels")
	if err != nil {
		return nil, err
	}
	return channelsFromEntries(entries), nil
}

// ============================================================================
// History endpoint
// ============================================================================

// FetchHistory retrieves the stored backlog for one conversation.
func (c *Client) FetchHistory(ctx context.Context, key ConversationKey) ([]Message, error) {
	data, err := c.doRequest(ctx, "GET", "/api/chat/history/"+url.PathEscape(string(key)), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeHistory(data)
}

// decodeHistory tolerates both a bare message array and a wrapped
// {messages: [...]} response.
func decodeHistory(data []byte) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err == nil {
		return msgs, nil
	}
	var wrapped struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return wrapped.Messages, nil
}
