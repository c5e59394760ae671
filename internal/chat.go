package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// this struct describes the json envelope for one chat line; the same shape is
// used on the wire, in storage, and in the client timeline.
type ChatMessage struct {
	MessageID string `json:"message_id"`
	EventID   string `json:"event_id"`
	UserID    int64  `json:"user_id"`
	UserName  string `json:"user_name"`
	Text      string `json:"text"`
	Ts        int64  `json:"ts"`
}

// Event carries the descriptive metadata the chat view renders above the timeline.
type Event struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	StartsAt     int64  `json:"starts_at"`
	Capacity     int64  `json:"capacity"`
	MessageCount int64  `json:"message_count"`
	OnlineCount  int    `json:"online_count"`
}

// ErrMalformedPayload is returned when a server payload is missing required
// fields. Payloads that fail this check are dropped at the boundary instead of
// being rendered with zero-value fields.
var ErrMalformedPayload = errors.New("malformed payload")

// frame type tags exchanged on the realtime channel.
const (
	frameJoinEvent      = "join_event"
	frameSendMessage    = "send_message"
	frameReceiveMessage = "receive_message"
	frameError          = "error"
)

// error codes carried inside error frames.
const (
	errCodeUnauthorized = "unauthorized"
	errCodeBadFrame     = "bad_frame"
	errCodeNotJoined    = "not_joined"
	errCodeNotFound     = "not_found"
	errCodeRateLimited  = "rate_limited"
	errCodeInternal     = "internal"
)

// hubFrame is the tagged envelope for everything on the channel: join_event
// and send_message from the client, receive_message and error from the server.
type hubFrame struct {
	Type    string       `json:"type"`
	EventID string       `json:"event_id,omitempty"`
	UserID  int64        `json:"user_id,omitempty"`
	Text    string       `json:"text,omitempty"`
	Message *ChatMessage `json:"message,omitempty"`
	Code    string       `json:"code,omitempty"`
}

func decodeFrame(payload []byte) (hubFrame, error) {
	var frame hubFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return hubFrame{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if frame.Type == "" {
		return hubFrame{}, fmt.Errorf("%w: missing frame type", ErrMalformedPayload)
	}
	return frame, nil
}

func encodeFrame(frame hubFrame) ([]byte, error) {
	return json.Marshal(frame)
}

func errorFrame(code, text string) hubFrame {
	return hubFrame{Type: frameError, Code: code, Text: text}
}

// validate checks the server-assigned fields every delivered message must carry.
func (m ChatMessage) validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("%w: missing message_id", ErrMalformedPayload)
	}
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("%w: missing event_id", ErrMalformedPayload)
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: missing text", ErrMalformedPayload)
	}
	return nil
}
