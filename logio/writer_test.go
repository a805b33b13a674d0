package logio

import (
	"path/filepath"
	"testing"

	"github.com/mktdata/replayfabric/wire"
)

func TestWriterBookkeeping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	if w.Count() != 0 {
		t.Errorf("fresh writer Count() = %d, want 0", w.Count())
	}

	for seq := int64(0); seq < 5; seq++ {
		if err := w.Write(wire.Message{Seq: seq, Timestamp: seq * 1000, Payload: float64(seq)}); err != nil {
			t.Fatalf("Write(%d): %v", seq, err)
		}
	}

	if w.FirstSeq() != 0 {
		t.Errorf("FirstSeq() = %d, want 0", w.FirstSeq())
	}
	if w.LastSeq() != 4 {
		t.Errorf("LastSeq() = %d, want 4", w.LastSeq())
	}
	if w.Count() != 5 {
		t.Errorf("Count() = %d, want 5", w.Count())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWriterFirstSeqNeverMutatedAfterFirstWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.Write(wire.Message{Seq: 10, Payload: 1})
	w.Write(wire.Message{Seq: 11, Payload: 2})

	if w.FirstSeq() != 10 {
		t.Errorf("FirstSeq() = %d, want 10 (set once, never mutated)", w.FirstSeq())
	}
}
