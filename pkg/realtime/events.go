package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client event types sent to the realtime service.
const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioBufferAppend = "input_audio_buffer.append"
	TypeInputAudioBufferCommit = "input_audio_buffer.commit"
	TypeInputAudioBufferClear  = "input_audio_buffer.clear"
	TypeResponseCreate         = "response.create"
	TypeConversationItemCreate = "conversation.item.create"
)

// Server event types received from the realtime service. Only the types the
// gateway reacts to are named here; everything else flows through as an
// opaque ServerEvent.
const (
	TypeSessionCreated         = "session.created"
	TypeSessionUpdated         = "session.updated"
	TypeResponseAudioDelta     = "response.audio.delta"
	TypeResponseAudioDone      = "response.audio.done"
	TypeAudioTranscriptDelta   = "response.audio_transcript.delta"
	TypeAudioTranscriptDone    = "response.audio_transcript.done"
	TypeResponseTextDelta      = "response.text.delta"
	TypeResponseTextDone       = "response.text.done"
	TypeResponseDone           = "response.done"
	TypeSpeechStarted          = "input_audio_buffer.speech_started"
	TypeSpeechStopped          = "input_audio_buffer.speech_stopped"
	TypeConversationItemMade   = "conversation.item.created"
	TypeError                  = "error"
	TypeFunctionCallArgsDelta  = "response.function_call_arguments.delta"
	TypeFunctionCallArgsDone   = "response.function_call_arguments.done"
)

// SessionConfig is the payload of the initial session.update event.
// TurnDetection deliberately has no omitempty: sending an explicit null is
// how the service disables voice-activity detection.
type SessionConfig struct {
	Modalities              []string             `json:"modalities,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection"`
	Tools                   []ToolDef            `json:"tools,omitempty"`
	ToolChoice              string               `json:"tool_choice,omitempty"`
}

type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

// ToolDef declares one callable function in the session configuration.
type ToolDef struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type SessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type InputAudioBufferAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type InputAudioBufferCommitEvent struct {
	Type string `json:"type"`
}

type InputAudioBufferClearEvent struct {
	Type string `json:"type"`
}

type ResponseCreateEvent struct {
	Type string `json:"type"`
}

// ConversationItem carries a function_call_output item back into the
// conversation. Output is a JSON-encoded string, not an object.
type ConversationItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output,omitempty"`
}

type ConversationItemCreateEvent struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

// ServerEvent is one decoded inbound frame: the type tag plus the raw bytes
// it was decoded from. Raw is kept so allow-listed events can be forwarded
// verbatim without a lossy re-marshal.
type ServerEvent struct {
	Type string
	Raw  json.RawMessage
}

// FunctionCallArgs is the shape shared by the function_call_arguments delta
// and done events. Delta is set on delta events; Arguments carries the final
// argument text on done events.
type FunctionCallArgs struct {
	Type        string `json:"type"`
	EventID     string `json:"event_id,omitempty"`
	ResponseID  string `json:"response_id,omitempty"`
	ItemID      string `json:"item_id,omitempty"`
	OutputIndex int    `json:"output_index,omitempty"`
	CallID      string `json:"call_id"`
	Name        string `json:"name,omitempty"`
	Delta       string `json:"delta,omitempty"`
	Arguments   string `json:"arguments,omitempty"`
}

// FunctionCallArgs decodes the event payload as a function-call-arguments
// event. The call identifier is required; everything else is best effort.
func (e ServerEvent) FunctionCallArgs() (FunctionCallArgs, error) {
	var fc FunctionCallArgs
	if err := json.Unmarshal(e.Raw, &fc); err != nil {
		return FunctionCallArgs{}, fmt.Errorf("decode %s event: %w", e.Type, err)
	}
	if strings.TrimSpace(fc.CallID) == "" {
		return FunctionCallArgs{}, fmt.Errorf("%s event is missing call_id", e.Type)
	}
	return fc, nil
}
