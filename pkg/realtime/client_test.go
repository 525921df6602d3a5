package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type upstreamStub struct {
	t *testing.T

	authorization string
	beta          string
	model         string

	sessionUpdate chan []byte
	serverConn    chan *websocket.Conn
}

func newUpstreamStub(t *testing.T) (*upstreamStub, *httptest.Server) {
	t.Helper()
	stub := &upstreamStub{
		t:             t,
		sessionUpdate: make(chan []byte, 1),
		serverConn:    make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.authorization = r.Header.Get("Authorization")
		stub.beta = r.Header.Get("OpenAI-Beta")
		stub.model = r.URL.Query().Get("model")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read session config: %v", err)
			return
		}
		stub.sessionUpdate <- frame
		stub.serverConn <- conn
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_ConnectConfiguresSession(t *testing.T) {
	stub, srv := newUpstreamStub(t)

	c := NewClient(Config{
		BaseURL:      wsURL(srv),
		APIKey:       "sk-test",
		Model:        "gpt-4o-realtime-preview-2024-12-17",
		Voice:        "alloy",
		Instructions: "be brief",
		Tools: []ToolDef{{
			Type: "function",
			Name: "search_properties",
		}},
		HandshakeTimeout: 5 * time.Second,
	}, testLogger())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	if stub.authorization != "Bearer sk-test" {
		t.Fatalf("authorization=%q", stub.authorization)
	}
	if stub.beta != "realtime=v1" {
		t.Fatalf("beta=%q", stub.beta)
	}
	if stub.model != "gpt-4o-realtime-preview-2024-12-17" {
		t.Fatalf("model=%q", stub.model)
	}

	var update SessionUpdateEvent
	select {
	case frame := <-stub.sessionUpdate:
		if err := json.Unmarshal(frame, &update); err != nil {
			t.Fatalf("decode session update: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no session update received")
	}

	if update.Type != TypeSessionUpdate {
		t.Fatalf("type=%q", update.Type)
	}
	s := update.Session
	if s.Voice != "alloy" || s.Instructions != "be brief" {
		t.Fatalf("session=%+v", s)
	}
	if s.InputAudioFormat != "pcm16" || s.OutputAudioFormat != "pcm16" {
		t.Fatalf("audio formats=%q/%q", s.InputAudioFormat, s.OutputAudioFormat)
	}
	if s.InputAudioTranscription == nil || s.InputAudioTranscription.Model != "whisper-1" {
		t.Fatalf("transcription=%+v", s.InputAudioTranscription)
	}
	if s.TurnDetection == nil || s.TurnDetection.Type != "server_vad" {
		t.Fatalf("turn detection=%+v", s.TurnDetection)
	}
	if s.ToolChoice != "auto" || len(s.Tools) != 1 || s.Tools[0].Name != "search_properties" {
		t.Fatalf("tools=%+v choice=%q", s.Tools, s.ToolChoice)
	}
}

func TestClient_ConnectFailureWrapsConnectionError(t *testing.T) {
	c := NewClient(Config{
		BaseURL:          "ws://127.0.0.1:1", // nothing listens here
		APIKey:           "sk-test",
		Model:            "m",
		HandshakeTimeout: time.Second,
	}, testLogger())

	err := c.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := NewClient(Config{}, testLogger())
	if err := c.CommitAudio(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err=%v", err)
	}
}

func TestClient_SendAudioRejectsEmptyChunk(t *testing.T) {
	c := NewClient(Config{}, testLogger())
	if err := c.SendAudio(""); err == nil {
		t.Fatalf("expected error for empty chunk")
	}
}

func TestClient_ReceiveLoopDeliversEvents(t *testing.T) {
	stub, srv := newUpstreamStub(t)

	c := NewClient(Config{
		BaseURL:          wsURL(srv),
		APIKey:           "sk-test",
		Model:            "m",
		HandshakeTimeout: 5 * time.Second,
	}, testLogger())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	serverConn := <-stub.serverConn
	frames := []string{
		`{"type":"session.created","session":{}}`,
		`not json`,
		`{"no_type":true}`,
		`{"type":"response.done"}`,
	}
	for _, frame := range frames {
		if err := serverConn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := serverConn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		t.Fatalf("server close: %v", err)
	}

	var got []string
	err := c.ReceiveLoop(context.Background(), func(ev ServerEvent) error {
		got = append(got, ev.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("ReceiveLoop: %v", err)
	}
	if len(got) != 2 || got[0] != TypeSessionCreated || got[1] != TypeResponseDone {
		t.Fatalf("events=%v", got)
	}
}

func TestClient_ReceiveLoopStopsOnHandlerError(t *testing.T) {
	stub, srv := newUpstreamStub(t)

	c := NewClient(Config{
		BaseURL:          wsURL(srv),
		APIKey:           "sk-test",
		Model:            "m",
		HandshakeTimeout: 5 * time.Second,
	}, testLogger())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()

	serverConn := <-stub.serverConn
	if err := serverConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error"}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	handlerErr := errors.New("stop here")
	err := c.ReceiveLoop(context.Background(), func(ev ServerEvent) error {
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("err=%v", err)
	}
}

func TestClient_ReceiveLoopReturnsOnCancel(t *testing.T) {
	stub, srv := newUpstreamStub(t)

	c := NewClient(Config{
		BaseURL:          wsURL(srv),
		APIKey:           "sk-test",
		Model:            "m",
		HandshakeTimeout: 5 * time.Second,
	}, testLogger())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Disconnect()
	<-stub.serverConn

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.ReceiveLoop(ctx, func(ServerEvent) error { return nil })
	}()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ReceiveLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("ReceiveLoop did not return after cancel")
	}
}

func TestClient_DisconnectIsIdempotent(t *testing.T) {
	c := NewClient(Config{}, testLogger())
	c.Disconnect()
	c.Disconnect()
}
