// Package logio implements the append-only binary log: a Writer that
// persists the stream with crash-resilient header semantics, and a Reader
// that replays it back with continuity validation. Grounded on the
// teacher's mmap_writer.go header-rewrite pattern, adapted to plain
// sequential file I/O since this log is single-writer, single-file,
// append-only — no random-access multi-process window is needed.
package logio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mktdata/replayfabric/wire"
)

// Writer is the append-only log writer. open truncates or creates the
// file and writes a placeholder header; write appends records without
// touching the on-disk header; flush periodically rewrites the header so
// a crash between flushes still leaves a well-formed file; close sets the
// cleanly-closed flag.
type Writer struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	header wire.FileHeader

	recordBuf [wire.MessageSize]byte
	headerBuf [wire.HeaderSize]byte
}

// OpenWriter truncates (or creates) path and writes a placeholder header.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("logio: open writer %s: %w", path, err)
	}

	date := dateStamp(time.Now())
	w := &Writer{
		path:   path,
		file:   f,
		buf:    bufio.NewWriter(f),
		header: wire.NewFileHeader(date),
	}

	w.header.Encode(w.headerBuf[:])
	if _, err := f.Write(w.headerBuf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("logio: write placeholder header: %w", err)
	}

	return w, nil
}

// Write appends one record, updating the in-memory first/last/count
// bookkeeping. It does not touch the on-disk header — call Flush for that.
func (w *Writer) Write(m wire.Message) error {
	m.Encode(w.recordBuf[:])
	if _, err := w.buf.Write(w.recordBuf[:]); err != nil {
		return fmt.Errorf("logio: write record: %w", err)
	}

	if w.header.FirstSeq == wire.InvalidSeq {
		w.header.FirstSeq = m.Seq
	}
	w.header.LastSeq = m.Seq
	w.header.Count++
	return nil
}

// Flush seeks back to offset 0, writes the current header (without the
// cleanly-closed flag), restores the append position, and syncs. This is
// what lets a crash between flushes still leave a well-formed file: the
// header's count/first/last reflect the last flush point, and the reader
// trusts count as authoritative and ignores any trailing unflushed bytes.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("logio: flush buffer: %w", err)
	}

	pos, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("logio: get write position: %w", err)
	}

	w.header.Encode(w.headerBuf[:])
	if _, err := w.file.WriteAt(w.headerBuf[:], 0); err != nil {
		return fmt.Errorf("logio: rewrite header: %w", err)
	}

	if _, err := w.file.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("logio: restore write position: %w", err)
	}

	return w.file.Sync()
}

// Close sets the cleanly-closed flag, writes the header one final time,
// and closes the file.
func (w *Writer) Close() error {
	w.header.Flags |= wire.FlagCleanlyClosed
	if err := w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// FirstSeq, LastSeq, and Count expose the writer's current in-memory
// bookkeeping (pre-flush), useful for tests and metrics.
func (w *Writer) FirstSeq() wire.SeqNum { return w.header.FirstSeq }
func (w *Writer) LastSeq() wire.SeqNum  { return w.header.LastSeq }
func (w *Writer) Count() int64          { return w.header.Count }

// dateStamp encodes t as a YYYYMMDD uint32, the format §3 specifies for the
// header's date field.
func dateStamp(t time.Time) uint32 {
	return uint32(t.Year())*10000 + uint32(t.Month())*100 + uint32(t.Day())
}
