package internal

import (
	"errors"
	"testing"
)

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	if _, err := decodeFrame([]byte("not json")); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := decodeFrame([]byte(`{"event_id":"e1"}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing type, got %v", err)
	}
}

func TestDecodeFrameRoundTrip(t *testing.T) {
	original := hubFrame{
		Type:    frameReceiveMessage,
		EventID: "e1",
		Message: &ChatMessage{
			MessageID: "m1",
			EventID:   "e1",
			UserID:    7,
			UserName:  "ana",
			Text:      "hello",
			Ts:        1700000000,
		},
	}
	payload, err := encodeFrame(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeFrame(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != frameReceiveMessage {
		t.Fatalf("wrong type %q", decoded.Type)
	}
	if decoded.Message == nil || decoded.Message.MessageID != "m1" || decoded.Message.Text != "hello" {
		t.Fatalf("message did not survive the round trip: %+v", decoded.Message)
	}
}

func TestChatMessageValidate(t *testing.T) {
	good := ChatMessage{MessageID: "m1", EventID: "e1", UserID: 1, UserName: "ana", Text: "hi", Ts: 1}
	if err := good.validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	cases := []ChatMessage{
		{EventID: "e1", Text: "hi"},
		{MessageID: "m1", Text: "hi"},
		{MessageID: "m1", EventID: "e1"},
		{MessageID: "  ", EventID: "e1", Text: "hi"},
	}
	for i, message := range cases {
		if err := message.validate(); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("case %d: expected ErrMalformedPayload, got %v", i, err)
		}
	}
}
