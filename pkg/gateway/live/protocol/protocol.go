// Package protocol defines the client-facing message shapes for the voice
// websocket and the classification of upstream realtime events.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/realtyvoice/voice-gateway/pkg/realtime"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientAudio carries one base64 PCM16 mono 24kHz chunk.
type ClientAudio struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// ClientAudioCommit commits the buffered input audio.
type ClientAudioCommit struct {
	Type string `json:"type"`
}

// ClientResponseRequest asks for a model response without further audio.
type ClientResponseRequest struct {
	Type string `json:"type"`
}

// DecodeClientMessage validates one inbound text frame into a tagged client
// message. Unknown types return a DecodeError with code "unsupported" so the
// caller can log and keep the session alive.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "audio":
		var msg ClientAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.Audio) == "" {
			return nil, badRequest("audio.audio is required", "audio")
		}
		return msg, nil
	case "audio_commit":
		return ClientAudioCommit{Type: typ}, nil
	case "response_request":
		return ClientResponseRequest{Type: typ}, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

// EventClass says how the bridge treats one upstream event type.
type EventClass int

const (
	// ClassIgnore drops the event. Unknown future event types land here so
	// protocol additions never get mis-forwarded.
	ClassIgnore EventClass = iota
	// ClassForward re-sends the event verbatim to the client.
	ClassForward
	// ClassFunctionDelta accumulates a function-call argument fragment.
	ClassFunctionDelta
	// ClassFunctionDone finalizes and dispatches a function call.
	ClassFunctionDone
)

var forwardable = map[string]struct{}{
	realtime.TypeSessionCreated:       {},
	realtime.TypeSessionUpdated:       {},
	realtime.TypeResponseAudioDelta:   {},
	realtime.TypeResponseAudioDone:    {},
	realtime.TypeAudioTranscriptDelta: {},
	realtime.TypeAudioTranscriptDone:  {},
	realtime.TypeResponseTextDelta:    {},
	realtime.TypeResponseTextDone:     {},
	realtime.TypeResponseDone:         {},
	realtime.TypeSpeechStarted:        {},
	realtime.TypeSpeechStopped:        {},
	realtime.TypeConversationItemMade: {},
	realtime.TypeError:                {},
}

// ClassifyUpstream maps an upstream event type onto exactly one class.
func ClassifyUpstream(eventType string) EventClass {
	switch eventType {
	case realtime.TypeFunctionCallArgsDelta:
		return ClassFunctionDelta
	case realtime.TypeFunctionCallArgsDone:
		return ClassFunctionDone
	}
	if _, ok := forwardable[eventType]; ok {
		return ClassForward
	}
	return ClassIgnore
}
