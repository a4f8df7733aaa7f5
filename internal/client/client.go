// Package client talks to a running pidisplayd over its WebThing API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/properties"
	"github.com/jmylchreest/pidisplay/internal/webthing"
)

// StatusError is returned when the daemon answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for one display thing.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the thing at baseURL, e.g. "http://pi:8070".
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the thing URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Thing fetches the Thing Description.
func (c *Client) Thing(ctx context.Context) (*webthing.Description, error) {
	var td webthing.Description
	if err := c.do(ctx, http.MethodGet, "/", nil, &td); err != nil {
		return nil, err
	}
	return &td, nil
}

// GetAll returns every property value.
func (c *Client) GetAll(ctx context.Context) (map[string]any, error) {
	values := make(map[string]any)
	if err := c.do(ctx, http.MethodGet, "/properties", nil, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Get returns the value of one property.
func (c *Client) Get(ctx context.Context, name string) (any, error) {
	values := make(map[string]any)
	if err := c.do(ctx, http.MethodGet, "/properties/"+url.PathEscape(name), nil, &values); err != nil {
		return nil, err
	}
	v, ok := values[name]
	if !ok {
		return nil, fmt.Errorf("response does not contain property %q", name)
	}
	return v, nil
}

// Set writes one property and returns the value the daemon reports back.
func (c *Client) Set(ctx context.Context, name string, value any) (any, error) {
	values := make(map[string]any)
	body := map[string]any{name: value}
	if err := c.do(ctx, http.MethodPut, "/properties/"+url.PathEscape(name), body, &values); err != nil {
		return nil, err
	}
	return values[name], nil
}

// SetLayer sets the text of a layer, given by name or rank. A non-nil ttl is
// applied before the text.
func (c *Client) SetLayer(ctx context.Context, layer, text string, ttl *int) error {
	rank, err := compositor.ParseRank(layer)
	if err != nil {
		return err
	}
	if ttl != nil {
		if _, err := c.Set(ctx, properties.LayerTTLProperty(rank), *ttl); err != nil {
			return err
		}
	}
	_, err = c.Set(ctx, properties.LayerTextProperty(rank), text)
	return err
}

// ClearLayer empties a layer and cancels its expiry.
func (c *Client) ClearLayer(ctx context.Context, layer string) error {
	ttl := compositor.NoTTL
	return c.SetLayer(ctx, layer, "", &ttl)
}

func (c *Client) do(ctx context.Context, method, path string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		message = body.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}

// wsURL converts the base URL to a WebSocket URL. https becomes wss, http
// becomes ws.
func (c *Client) wsURL() string {
	u := c.baseURL + "/"
	if strings.HasPrefix(u, "https://") {
		return "wss://" + u[len("https://"):]
	}
	if strings.HasPrefix(u, "http://") {
		return "ws://" + u[len("http://"):]
	}
	return u
}

// Stream is a live WebSocket connection to the thing.
type Stream struct {
	conn *websocket.Conn
}

// Watch opens a WebSocket to the thing. The daemon sends the current values
// right away and again after every change.
func (c *Client) Watch(ctx context.Context) (*Stream, error) {
	conn, _, err := websocket.Dial(ctx, c.wsURL(), &websocket.DialOptions{
		HTTPClient: &http.Client{Transport: c.httpClient.Transport},
	})
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next property status and returns its values. Error
// replies to SetProperty are returned as *StatusError.
func (s *Stream) Next(ctx context.Context) (map[string]any, error) {
	for {
		var msg webthing.Message
		if err := wsjson.Read(ctx, s.conn, &msg); err != nil {
			return nil, err
		}
		switch msg.MessageType {
		case webthing.MessagePropertyStatus:
			return webthing.StatusValues(msg)
		case webthing.MessageError:
			return nil, streamError(msg.Data)
		}
	}
}

func streamError(data map[string]any) error {
	message, _ := data["message"].(string)
	status, _ := data["status"].(string)
	code := http.StatusBadRequest
	if _, err := fmt.Sscanf(status, "%d", &code); err != nil {
		code = http.StatusBadRequest
	}
	return &StatusError{StatusCode: code, Message: message}
}

// SetProperty asks the daemon to change one property. Failures arrive as an
// error from a following Next.
func (s *Stream) SetProperty(ctx context.Context, name string, value any) error {
	return wsjson.Write(ctx, s.conn, webthing.Message{
		MessageType: webthing.MessageSetProperty,
		Data:        map[string]any{name: value},
	})
}

// Close ends the stream.
func (s *Stream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// IsClosed reports whether err means the daemon ended the stream.
func IsClosed(err error) bool {
	return websocket.CloseStatus(err) != -1 || errors.Is(err, io.EOF)
}
