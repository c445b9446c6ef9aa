// Package chatgw implements the chat transport against a chat gateway
// speaking JSON frames over a single websocket: requests
// {id, method, params} answered by {id, result|error}, plus unsolicited
// events {event, data} for inbound messages and conversation changes.
package chatgw

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

const (
	writeTimeout = 10 * time.Second
	callTimeout  = 30 * time.Second
)

// frame is one websocket message in either direction
type frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *frameError     `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type frameError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client is a chat gateway connection implementing the chat repository
type Client struct {
	url   string
	token string
	log   zerolog.Logger

	mu      sync.Mutex // guards conn writes and pending
	conn    *websocket.Conn
	pending map[string]chan frame

	events    chan domain.ChatEvent
	closed    chan struct{}
	closeOnce sync.Once
}

var _ repo.ChatRepo = (*Client)(nil)

// Dial connects to the chat gateway
func Dial(ctx context.Context, gatewayURL, token string, log zerolog.Logger) (*Client, error) {
	c := &Client{
		url:     gatewayURL,
		token:   token,
		log:     log.With().Str("component", "chatgw").Logger(),
		pending: make(map[string]chan frame),
		events:  make(chan domain.ChatEvent, 64),
		closed:  make(chan struct{}),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("failed to dial chat gateway: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Close tears down the connection and the event feed
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Events starts the read loop and returns the inbound event feed. The
// connection is re-dialed with exponential backoff when it drops; the
// channel closes only when ctx is canceled or Close is called.
func (c *Client) Events(ctx context.Context) (<-chan domain.ChatEvent, error) {
	go c.readLoop(ctx)
	return c.events, nil
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.events)
	for {
		err := c.readFrames(ctx)
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		c.log.Warn().Err(err).Msg("gateway connection lost, reconnecting")
		c.failPending(err)

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 2 * time.Second
		policy.MaxInterval = 5 * time.Minute
		policy.MaxElapsedTime = 0
		err = backoff.Retry(func() error {
			if c.isClosed() {
				return backoff.Permanent(fmt.Errorf("client closed"))
			}
			return c.connect(ctx)
		}, backoff.WithContext(policy, ctx))
		if err != nil {
			return
		}
		c.log.Info().Msg("gateway connection re-established")
	}
}

func (c *Client) readFrames(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		switch {
		case f.ID != "":
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			if ok {
				delete(c.pending, f.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case f.Event != "":
			ev, ok := decodeEvent(f)
			if !ok {
				c.log.Debug().Str("event", f.Event).Msg("ignoring unknown gateway event")
				continue
			}
			select {
			case c.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func decodeEvent(f frame) (domain.ChatEvent, bool) {
	switch f.Event {
	case "message":
		var d struct {
			ConversationID string `json:"conversationId"`
			Sender         string `json:"sender"`
			Text           string `json:"text"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			return domain.ChatEvent{}, false
		}
		return domain.ChatEvent{
			Kind:   domain.EventMessage,
			Conv:   d.ConversationID,
			Sender: d.Sender,
			Text:   d.Text,
		}, true
	case "memberLeft":
		var d struct {
			ConversationID string `json:"conversationId"`
			Member         string `json:"member"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			return domain.ChatEvent{}, false
		}
		return domain.ChatEvent{
			Kind:   domain.EventMemberLeft,
			Conv:   d.ConversationID,
			Member: d.Member,
		}, true
	case "renamed":
		var d struct {
			ConversationID string `json:"conversationId"`
			Name           string `json:"name"`
			Actor          string `json:"actor"`
		}
		if json.Unmarshal(f.Data, &d) != nil {
			return domain.ChatEvent{}, false
		}
		return domain.ChatEvent{
			Kind:  domain.EventRenamed,
			Conv:  d.ConversationID,
			Name:  d.Name,
			Actor: d.Actor,
		}, true
	}
	return domain.ChatEvent{}, false
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- frame{ID: id, Error: &frameError{Message: err.Error()}}
	}
}

// call sends one request frame and waits for the matching response
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s params: %w", method, err)
	}
	id := uuid.NewString()
	ch := make(chan frame, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("gateway not connected")
	}
	c.pending[id] = ch
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteJSON(frame{ID: id, Method: method, Params: raw})
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s failed: %s", method, resp.Error.Message)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%s timed out", method)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// SendMessage sends a text message into a conversation
func (c *Client) SendMessage(ctx context.Context, conv, text string) error {
	return c.call(ctx, "sendMessage", map[string]string{
		"conversationId": conv,
		"text":           text,
	}, nil)
}

// CreateConversation creates a conversation and returns its id
func (c *Client) CreateConversation(ctx context.Context, name string, members []string) (string, error) {
	var result struct {
		ConversationID string `json:"conversationId"`
	}
	err := c.call(ctx, "createConversation", map[string]any{
		"name":    name,
		"members": members,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.ConversationID, nil
}

// RenameConversation sets the conversation display name
func (c *Client) RenameConversation(ctx context.Context, conv, name string) error {
	return c.call(ctx, "renameConversation", map[string]string{
		"conversationId": conv,
		"name":           name,
	}, nil)
}

// SetAvatar sets the conversation avatar image
func (c *Client) SetAvatar(ctx context.Context, conv string, image []byte) error {
	return c.call(ctx, "setAvatar", map[string]string{
		"conversationId": conv,
		"image":          base64.StdEncoding.EncodeToString(image),
	}, nil)
}

// LeaveConversation makes the bot leave a conversation
func (c *Client) LeaveConversation(ctx context.Context, conv string) error {
	return c.call(ctx, "leaveConversation", map[string]string{
		"conversationId": conv,
	}, nil)
}
