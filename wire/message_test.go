package wire

import "testing"

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	m := Message{Seq: 42, Timestamp: 1700000000000000000, Payload: 3.14159}

	var buf [MessageSize]byte
	m.Encode(buf[:])

	got := Decode(buf[:])
	if got != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestMessageEncodeDecodeNegativeSeq(t *testing.T) {
	m := Message{Seq: InvalidSeq, Timestamp: -1, Payload: -0.5}

	var buf [MessageSize]byte
	m.Encode(buf[:])

	got := Decode(buf[:])
	if got != m {
		t.Fatalf("round trip mismatch with negative fields: got %+v, want %+v", got, m)
	}
}

func TestMessageValid(t *testing.T) {
	if (Message{Seq: InvalidSeq}).Valid() {
		t.Error("sentinel seq should not be valid")
	}
	if !(Message{Seq: 0}).Valid() {
		t.Error("seq 0 should be valid")
	}
}

func TestMessageSize(t *testing.T) {
	if MessageSize != 24 {
		t.Fatalf("MessageSize = %d, want 24", MessageSize)
	}
}
