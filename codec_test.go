package embedstore

import (
	"testing"
)

type segment struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec{}

	t.Run("round trip", func(t *testing.T) {
		original := segment{Text: "hello", Metadata: map[string]string{"k": "v"}}
		data, err := codec.Encode(&original)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if string(data) != `{"text":"hello","metadata":{"k":"v"}}` {
			t.Errorf("unexpected encoding %s", data)
		}

		var decoded segment
		if err := codec.Decode(data, &decoded); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if decoded.Text != "hello" || decoded.Metadata["k"] != "v" {
			t.Errorf("round trip mismatch: got %+v", decoded)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		var v segment
		if err := codec.Decode([]byte(`{invalid}`), &v); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("unsupported value", func(t *testing.T) {
		if _, err := codec.Encode(make(chan int)); err == nil {
			t.Error("expected error encoding a channel")
		}
	})

	if codec.ContentType() != "application/json" {
		t.Errorf("content type: got %s", codec.ContentType())
	}
}

func TestGobCodec(t *testing.T) {
	codec := GobCodec{}

	t.Run("round trip", func(t *testing.T) {
		original := segment{Text: "gob", Metadata: map[string]string{"a": "b"}}
		data, err := codec.Encode(&original)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		var decoded segment
		if err := codec.Decode(data, &decoded); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if decoded.Text != "gob" || decoded.Metadata["a"] != "b" {
			t.Errorf("round trip mismatch: got %+v", decoded)
		}
	})

	t.Run("invalid data", func(t *testing.T) {
		var v segment
		if err := codec.Decode([]byte(`not gob data`), &v); err == nil {
			t.Error("expected error for invalid gob data")
		}
	})
}
