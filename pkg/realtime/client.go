// Package realtime implements the websocket client for the OpenAI Realtime
// API: connection setup, session configuration, the send primitives the
// voice bridge needs, and the inbound event loop.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by send primitives before Connect succeeds or
// after Disconnect.
var ErrNotConnected = errors.New("realtime: not connected")

// ConnectionError wraps a failure during dial or session configuration. The
// caller must not start the receive loop after getting one.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("realtime: connect: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Config carries everything needed to open and configure one upstream
// session.
type Config struct {
	BaseURL          string // wss://api.openai.com/v1/realtime
	APIKey           string
	Model            string
	Voice            string
	Instructions     string
	Tools            []ToolDef
	HandshakeTimeout time.Duration

	// Dialer overrides the websocket dialer, for tests.
	Dialer *websocket.Dialer
}

// Client owns one upstream realtime connection. Writes are serialized with a
// mutex because both bridge loops send through the same connection.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

// Connect dials the realtime endpoint and immediately sends the session
// configuration. On any failure the connection is torn down and a
// ConnectionError is returned.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(strings.TrimSpace(c.cfg.BaseURL))
	if err != nil {
		return &ConnectionError{Err: fmt.Errorf("parse base url: %w", err)}
	}
	q := u.Query()
	q.Set("model", c.cfg.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := c.cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	}

	c.logger.Info("connecting to realtime api", "model", c.cfg.Model)
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return &ConnectionError{Err: fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)}
		}
		return &ConnectionError{Err: fmt.Errorf("dial: %w", err)}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.Send(c.sessionConfig()); err != nil {
		c.Disconnect()
		return &ConnectionError{Err: fmt.Errorf("send session config: %w", err)}
	}
	c.logger.Info("realtime session configured", "voice", c.cfg.Voice, "tools", len(c.cfg.Tools))
	return nil
}

func (c *Client) sessionConfig() SessionUpdateEvent {
	return SessionUpdateEvent{
		Type: TypeSessionUpdate,
		Session: SessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      c.cfg.Instructions,
			Voice:             c.cfg.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			InputAudioTranscription: &TranscriptionConfig{
				Model: "whisper-1",
			},
			TurnDetection: &TurnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMS:   300,
				SilenceDurationMS: 500,
			},
			Tools:      c.cfg.Tools,
			ToolChoice: "auto",
		},
	}
}

// Send serializes v and writes it as one text frame.
func (c *Client) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: encode message: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("realtime: write message: %w", err)
	}
	return nil
}

// SendAudio appends one base64 PCM16 chunk to the input audio buffer. The
// chunk content is not validated beyond being non-empty; the audio format is
// fixed by the session configuration.
func (c *Client) SendAudio(audioB64 string) error {
	if audioB64 == "" {
		return fmt.Errorf("realtime: empty audio chunk")
	}
	return c.Send(InputAudioBufferAppendEvent{Type: TypeInputAudioBufferAppend, Audio: audioB64})
}

// CommitAudio commits the input audio buffer so the service can respond.
func (c *Client) CommitAudio() error {
	return c.Send(InputAudioBufferCommitEvent{Type: TypeInputAudioBufferCommit})
}

// ClearAudio drops any uncommitted input audio.
func (c *Client) ClearAudio() error {
	return c.Send(InputAudioBufferClearEvent{Type: TypeInputAudioBufferClear})
}

// CreateResponse asks the service to generate a response.
func (c *Client) CreateResponse() error {
	return c.Send(ResponseCreateEvent{Type: TypeResponseCreate})
}

// ReceiveLoop reads inbound frames until the connection closes or the
// context is canceled, invoking onEvent for each decodable event. Frames
// that fail to decode are logged and skipped. A normal peer close returns
// nil; a non-nil error from onEvent stops the loop and is returned as-is.
func (c *Client) ReceiveLoop(ctx context.Context, onEvent func(ServerEvent) error) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	// Unblock the pending read when the session is torn down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Info("realtime connection closed")
				return nil
			}
			return fmt.Errorf("realtime: read message: %w", err)
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil || strings.TrimSpace(envelope.Type) == "" {
			c.logger.Error("failed to parse realtime event", "error", err, "bytes", len(data))
			continue
		}
		if err := onEvent(ServerEvent{Type: envelope.Type, Raw: json.RawMessage(data)}); err != nil {
			return err
		}
	}
}

// Disconnect closes the connection if open. Safe to call more than once and
// from any goroutine; concurrent reads and writes observe a closed
// connection error.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = conn.Close()
	c.logger.Info("disconnected from realtime api")
}
