package logio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mktdata/replayfabric/wire"
)

// Property 3: writes followed by Close round-trip exactly through a fresh
// reader, with an accurate count/first/last and cleanly-closed = true.
func TestRoundTripCleanClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	want := make([]wire.Message, 0, 10)
	for seq := int64(0); seq < 10; seq++ {
		m := wire.Message{Seq: seq, Timestamp: seq * 100, Payload: float64(seq) * 1.5}
		want = append(want, m)
		if err := w.Write(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if r.Count() != 10 {
		t.Errorf("Count() = %d, want 10", r.Count())
	}
	if r.FirstSeq() != 0 {
		t.Errorf("FirstSeq() = %d, want 0", r.FirstSeq())
	}
	if r.LastSeq() != 9 {
		t.Errorf("LastSeq() = %d, want 9", r.LastSeq())
	}
	if !r.CleanlyClosed() {
		t.Error("CleanlyClosed() = false, want true")
	}

	var got []wire.Message
	for {
		m, ok := r.Next()
		if !ok {
			break
		}
		got = append(got, m)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	if r.ViolationCount() != 0 {
		t.Errorf("ViolationCount() = %d, want 0 on a well-formed ascending file", r.ViolationCount())
	}
}

// Property 4: if the writer never calls Close, a reader trusts the last
// flushed header count and reports cleanly-closed = false, with no error.
func TestCrashResilienceTrustsLastFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	for seq := int64(0); seq < 3; seq++ {
		w.Write(wire.Message{Seq: seq, Payload: float64(seq)})
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash: two more unflushed writes, then the process "dies"
	// (we just never call Close, and leave the extra bytes on disk).
	w.Write(wire.Message{Seq: 3, Payload: 3})
	w.Write(wire.Message{Seq: 4, Payload: 4})
	w.buf.Flush() // push bytes to the OS without rewriting the header

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader should not error on an unclosed file: %v", err)
	}
	defer r.Close()

	if r.CleanlyClosed() {
		t.Error("CleanlyClosed() = true, want false (writer never closed)")
	}
	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3 (last flushed count)", r.Count())
	}

	var n int
	for {
		if _, ok := r.Next(); !ok {
			break
		}
		n++
	}
	if n != 3 {
		t.Errorf("read %d records, want 3 (trailing unflushed bytes ignored)", n)
	}

	w.file.Close()
}

// Scenario S4: sequences [0,1,2,1,4] with cleanly-closed set; reader still
// returns all 5 records and increments the violation counter.
func TestScenarioS4OutOfOrderSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	seqs := []int64{0, 1, 2, 1, 4}
	writeCraftedFile(t, path, seqs, true)

	r, err := OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var got []wire.Message
	for {
		m, ok := r.Next()
		if !ok {
			break
		}
		got = append(got, m)
	}
	if len(got) != 5 {
		t.Fatalf("got %d records, want 5", len(got))
	}
	if r.ViolationCount() < 1 {
		t.Error("expected at least one continuity violation for [0,1,2,1,4]")
	}
}

// Scenario S5: count=50, flag=0, 50 records following; reader reports
// cleanly-closed=false and returns all 50 in order.
func TestScenarioS5UnsetCleanFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	seqs := make([]int64, 50)
	for i := range seqs {
		seqs[i] = int64(i)
	}
	writeCraftedFile(t, path, seqs, false)

	r, err := OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.CleanlyClosed() {
		t.Error("CleanlyClosed() = true, want false")
	}

	var n int64
	for {
		m, ok := r.Next()
		if !ok {
			break
		}
		if m.Seq != seqs[n] {
			t.Errorf("record %d: seq = %d, want %d", n, m.Seq, seqs[n])
		}
		n++
	}
	if n != 50 {
		t.Errorf("read %d records, want 50", n)
	}
}

func TestOpenReaderRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	h := wire.NewFileHeader(20260803)
	h.Magic = 0xDEADBEEF
	var buf [wire.HeaderSize]byte
	h.Encode(buf[:])
	if err := os.WriteFile(path, buf[:], 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenReader(path); err == nil {
		t.Error("expected error opening a file with bad magic")
	}
}

func TestOpenReaderRejectsVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.bin")
	h := wire.NewFileHeader(20260803)
	h.Version = 1
	var buf [wire.HeaderSize]byte
	h.Encode(buf[:])
	if err := os.WriteFile(path, buf[:], 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenReader(path); err == nil {
		t.Error("expected error opening a version-1 file")
	}
}

func TestSeekInvalidatesContinuityState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	for seq := int64(0); seq < 20; seq++ {
		w.Write(wire.Message{Seq: seq, Payload: float64(seq)})
	}
	w.Close()

	r, err := OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	r.Next() // seq 0
	r.Next() // seq 1

	if err := r.Seek(10); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	m, ok := r.Next()
	if !ok || m.Seq != 10 {
		t.Fatalf("after Seek(10), Next() = (%+v, %v), want seq=10", m, ok)
	}
	if r.ViolationCount() != 0 {
		t.Errorf("ViolationCount() = %d, want 0 immediately after a seek", r.ViolationCount())
	}
}

func TestShouldCatchUpSignedComparison(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	w, err := OpenWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Write(wire.Message{Seq: 0, Payload: 0})
	w.Close()

	r, err := OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	r.Next()

	// live < current: signed subtraction goes negative, predicate satisfied.
	if !r.ShouldCatchUp(0, 100) {
		t.Error("ShouldCatchUp should be true when live < current (signed arithmetic)")
	}
}

// writeCraftedFile writes a log file with an explicit header and the given
// sequence numbers as records, bypassing Writer's normal bookkeeping so
// deliberately malformed/out-of-order files can be constructed for tests.
func writeCraftedFile(t *testing.T, path string, seqs []int64, cleanlyClosed bool) {
	t.Helper()

	h := wire.NewFileHeader(20260803)
	h.Count = int64(len(seqs))
	if len(seqs) > 0 {
		h.FirstSeq = seqs[0]
		h.LastSeq = seqs[len(seqs)-1]
	}
	if cleanlyClosed {
		h.Flags |= wire.FlagCleanlyClosed
	}

	var hdrBuf [wire.HeaderSize]byte
	h.Encode(hdrBuf[:])

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.Write(hdrBuf[:]); err != nil {
		t.Fatal(err)
	}
	for _, s := range seqs {
		m := wire.Message{Seq: s, Payload: float64(s)}
		var buf [wire.MessageSize]byte
		m.Encode(buf[:])
		if _, err := f.Write(buf[:]); err != nil {
			t.Fatal(err)
		}
	}
}
