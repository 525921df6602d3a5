// Package session implements the duplex bridge between one client voice
// websocket and one upstream realtime session.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/realtyvoice/voice-gateway/pkg/gateway/live/protocol"
	"github.com/realtyvoice/voice-gateway/pkg/gateway/metrics"
	"github.com/realtyvoice/voice-gateway/pkg/realtime"
)

// maxPendingCalls bounds in-flight argument accumulation against an upstream
// that never sends completion events; the oldest entry is evicted with a
// warning once the cap is hit.
const maxPendingCalls = 64

// Upstream is the slice of the realtime client the bridge drives. Tests
// substitute a fake.
type Upstream interface {
	Connect(ctx context.Context) error
	Send(v any) error
	SendAudio(audioB64 string) error
	CommitAudio() error
	CreateResponse() error
	ReceiveLoop(ctx context.Context, onEvent func(realtime.ServerEvent) error) error
	Disconnect()
}

// Dispatcher executes one completed function call. It must never fail:
// faults come back as error-marker payloads.
type Dispatcher interface {
	Dispatch(ctx context.Context, name, rawArgs string) any
}

type Dependencies struct {
	Conn      *websocket.Conn
	Upstream  Upstream
	Tools     Dispatcher
	Logger    *slog.Logger
	SessionID string

	// MaxDuration ends the session when exceeded; zero disables the cap.
	MaxDuration time.Duration
}

// pendingCall accumulates the streamed argument fragments for one upstream
// function call.
type pendingCall struct {
	name string
	args strings.Builder
}

// Bridge owns one client connection and one upstream session and multiplexes
// between them. All mutable state (the pending-call map) is touched only
// from the upstream loop, so no locking is needed.
type Bridge struct {
	conn      *websocket.Conn
	upstream  Upstream
	tools     Dispatcher
	logger    *slog.Logger
	sessionID string
	maxDur    time.Duration

	pending      map[string]*pendingCall
	pendingOrder []string
}

func New(deps Dependencies) (*Bridge, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("client connection is required")
	}
	if deps.Upstream == nil {
		return nil, fmt.Errorf("upstream client is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Bridge{
		conn:      deps.Conn,
		upstream:  deps.Upstream,
		tools:     deps.Tools,
		logger:    deps.Logger.With("session_id", deps.SessionID),
		sessionID: deps.SessionID,
		maxDur:    deps.MaxDuration,
		pending:   make(map[string]*pendingCall),
	}, nil
}

// Run connects upstream and pumps both directions until either side ends.
// Whichever loop exits first cancels the other; the upstream connection is
// torn down exactly once on the way out, including when connect itself
// fails. The client connection's close is the caller's concern.
func (b *Bridge) Run(ctx context.Context) error {
	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if b.maxDur > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, b.maxDur)
		defer cancelTimeout()
	}

	defer b.upstream.Disconnect()
	if err := b.upstream.Connect(ctx); err != nil {
		return fmt.Errorf("connect upstream: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A clean client disconnect must stop the upstream loop too, not
		// just a failure, so cancel explicitly rather than relying on the
		// group's error propagation.
		defer cancel()
		return b.clientLoop(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return b.upstreamLoop(ctx)
	})

	err := g.Wait()
	if err != nil {
		b.logger.Warn("voice session ended with error", "error", err)
	} else {
		b.logger.Info("voice session ended")
	}
	return err
}

// clientLoop forwards client frames to the upstream session. Malformed and
// unrecognized frames are logged and skipped; only transport faults end the
// loop.
func (b *Bridge) clientLoop(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = b.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				b.logger.Info("client disconnected")
				return nil
			}
			return fmt.Errorf("read client frame: %w", err)
		}
		if messageType != websocket.TextMessage {
			b.logger.Warn("ignoring non-text client frame", "message_type", messageType)
			continue
		}

		msg, decErr := protocol.DecodeClientMessage(data)
		if decErr != nil {
			b.logger.Warn("invalid client frame", "error", decErr)
			continue
		}
		switch m := msg.(type) {
		case protocol.ClientAudio:
			if err := b.upstream.SendAudio(m.Audio); err != nil {
				return fmt.Errorf("forward audio: %w", err)
			}
		case protocol.ClientAudioCommit:
			if err := b.upstream.CommitAudio(); err != nil {
				return fmt.Errorf("commit audio: %w", err)
			}
		case protocol.ClientResponseRequest:
			if err := b.upstream.CreateResponse(); err != nil {
				return fmt.Errorf("request response: %w", err)
			}
		}
	}
}

func (b *Bridge) upstreamLoop(ctx context.Context) error {
	return b.upstream.ReceiveLoop(ctx, func(ev realtime.ServerEvent) error {
		return b.handleUpstreamEvent(ctx, ev)
	})
}

func (b *Bridge) handleUpstreamEvent(ctx context.Context, ev realtime.ServerEvent) error {
	switch protocol.ClassifyUpstream(ev.Type) {
	case protocol.ClassFunctionDelta:
		metrics.UpstreamEvents.WithLabelValues("function_delta").Inc()
		b.accumulateCallDelta(ev)
		return nil
	case protocol.ClassFunctionDone:
		metrics.UpstreamEvents.WithLabelValues("function_done").Inc()
		return b.finishCall(ctx, ev)
	case protocol.ClassForward:
		metrics.UpstreamEvents.WithLabelValues("forward").Inc()
		if ev.Type == realtime.TypeError {
			b.logger.Error("upstream error event", "event", string(ev.Raw))
		}
		if err := b.conn.WriteMessage(websocket.TextMessage, ev.Raw); err != nil {
			// The client can no longer receive session state, so this is
			// fatal to the session.
			return fmt.Errorf("forward to client: %w", err)
		}
		metrics.ForwardedEvents.Inc()
		return nil
	default:
		metrics.UpstreamEvents.WithLabelValues("ignored").Inc()
		return nil
	}
}

// accumulateCallDelta appends one argument fragment to the pending call,
// creating the record and capturing the function name on the first fragment.
func (b *Bridge) accumulateCallDelta(ev realtime.ServerEvent) {
	fc, err := ev.FunctionCallArgs()
	if err != nil {
		b.logger.Warn("undecodable function-call delta", "error", err)
		return
	}
	pc, ok := b.pending[fc.CallID]
	if !ok {
		if len(b.pendingOrder) >= maxPendingCalls {
			oldest := b.pendingOrder[0]
			b.pendingOrder = b.pendingOrder[1:]
			delete(b.pending, oldest)
			b.logger.Warn("evicted stale pending function call", "call_id", oldest)
		}
		pc = &pendingCall{name: fc.Name}
		b.pending[fc.CallID] = pc
		b.pendingOrder = append(b.pendingOrder, fc.CallID)
	}
	pc.args.WriteString(fc.Delta)
}

// finishCall resolves a completed function call: parses the arguments,
// dispatches, and injects the result upstream followed by a response
// request. The pending entry is removed unconditionally, before anything
// that can fail.
func (b *Bridge) finishCall(ctx context.Context, ev realtime.ServerEvent) error {
	fc, err := ev.FunctionCallArgs()
	if err != nil {
		b.logger.Warn("undecodable function-call completion", "error", err)
		return nil
	}

	pc := b.pending[fc.CallID]
	delete(b.pending, fc.CallID)
	b.dropPendingOrder(fc.CallID)

	name := fc.Name
	rawArgs := fc.Arguments
	if pc != nil {
		if name == "" {
			name = pc.name
		}
		if rawArgs == "" {
			rawArgs = pc.args.String()
		}
	}
	b.logger.Info("function call complete", "tool", name, "call_id", fc.CallID)

	result := b.tools.Dispatch(ctx, name, rawArgs)
	output, err := json.Marshal(result)
	if err != nil {
		b.logger.Error("encode function result", "tool", name, "error", err)
		output = []byte(`{"error":"failed to encode function result"}`)
	}

	item := realtime.ConversationItemCreateEvent{
		Type: realtime.TypeConversationItemCreate,
		Item: realtime.ConversationItem{
			Type:   "function_call_output",
			CallID: fc.CallID,
			Output: string(output),
		},
	}
	if err := b.upstream.Send(item); err != nil {
		return fmt.Errorf("send function result: %w", err)
	}
	// Keep the model talking off the result instead of leaving the
	// conversation hanging.
	if err := b.upstream.CreateResponse(); err != nil {
		return fmt.Errorf("request response after function result: %w", err)
	}
	return nil
}

func (b *Bridge) dropPendingOrder(callID string) {
	for i, id := range b.pendingOrder {
		if id == callID {
			b.pendingOrder = append(b.pendingOrder[:i], b.pendingOrder[i+1:]...)
			return
		}
	}
}
