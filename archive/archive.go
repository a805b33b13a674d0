// Package archive compresses sealed log segments and age-retires old
// ones. It is a file-level concern distinct from message-level wire
// compression: it runs over daily-rotated, already-closed logio files,
// never over the live segment a Recorder is appending to.
//
// Grounded on the teacher's retention manager (retention.go,
// startRetentionManager/runRetentionCleanup), adapted from a
// multi-shard index-driven sweep to a directory scan of sealed segment
// files, and on the teacher's zstd usage (client.go/reader.go) for the
// compressor/decompressor pair, repurposed from per-entry payload
// compression to whole-segment compression.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mktdata/replayfabric/internal/telemetry"
)

// SegmentSuffix names an uncompressed, sealed daily log segment; Archiver
// compresses these to CompressedSuffix and, once MaxAge has elapsed,
// deletes the compressed copy.
const (
	SegmentSuffix    = ".bin"
	CompressedSuffix = ".bin.zst"
)

// Config controls an Archiver's sweep.
type Config struct {
	// Dir is the directory containing sealed log segments.
	Dir string
	// MaxAge is how long a compressed segment is retained before
	// deletion. Zero disables deletion.
	MaxAge time.Duration
	// CleanupInterval is the period between sweeps. Zero disables the
	// background ticker; callers may still invoke RunOnce directly.
	CleanupInterval time.Duration
}

// Archiver periodically compresses sealed segments and deletes expired
// compressed ones.
type Archiver struct {
	cfg Config
	log telemetry.Logger

	stopped chan struct{}
	done    chan struct{}
}

// New constructs an Archiver over cfg.
func New(cfg Config, log telemetry.Logger) *Archiver {
	if log == nil {
		log = telemetry.NoOp{}
	}
	return &Archiver{
		cfg:     cfg,
		log:     log,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background sweep ticker. A no-op if
// cfg.CleanupInterval is zero.
func (a *Archiver) Start() {
	if a.cfg.CleanupInterval <= 0 {
		close(a.done)
		return
	}

	go func() {
		defer close(a.done)

		ticker := time.NewTicker(a.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.RunOnce()
			case <-a.stopped:
				return
			}
		}
	}()
}

// Stop signals the background sweep to exit and waits for it to finish.
func (a *Archiver) Stop() {
	select {
	case <-a.stopped:
	default:
		close(a.stopped)
	}
	<-a.done
}

// RunOnce performs a single compress-then-expire sweep. It is exported so
// callers such as tests can force a deterministic pass.
func (a *Archiver) RunOnce() {
	entries, err := os.ReadDir(a.cfg.Dir)
	if err != nil {
		a.log.Error("archive: read dir failed", "dir", a.cfg.Dir, "err", err)
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SegmentSuffix) || strings.HasSuffix(e.Name(), CompressedSuffix) {
			continue
		}
		path := filepath.Join(a.cfg.Dir, e.Name())
		if err := a.compressSegment(path); err != nil {
			a.log.Error("archive: compress failed", "path", path, "err", err)
		}
	}

	if a.cfg.MaxAge > 0 {
		a.expireCompressed()
	}
}

// compressSegment compresses path into path+".zst" and removes the
// uncompressed original on success. The uncompressed file is never the
// one a Recorder currently has open; callers are responsible for only
// pointing Archiver at a directory of already-rotated segments.
func (a *Archiver) compressSegment(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer src.Close()

	dstPath := path + ".zst"
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", dstPath, err)
	}

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		dst.Close()
		os.Remove(dstPath)
		return fmt.Errorf("archive: new encoder: %w", err)
	}

	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		dst.Close()
		os.Remove(dstPath)
		return fmt.Errorf("archive: compress %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return fmt.Errorf("archive: finalize %s: %w", dstPath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", dstPath, err)
	}

	if err := os.Remove(path); err != nil {
		a.log.Warn("archive: could not remove uncompressed segment after archival", "path", path, "err", err)
	}

	a.log.Info("archive: segment compressed", "path", path, "archived_as", dstPath)
	return nil
}

// expireCompressed removes compressed segments whose modification time
// is older than MaxAge.
func (a *Archiver) expireCompressed() {
	entries, err := os.ReadDir(a.cfg.Dir)
	if err != nil {
		a.log.Error("archive: read dir failed during expiry", "dir", a.cfg.Dir, "err", err)
		return
	}

	cutoff := time.Now().Add(-a.cfg.MaxAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), CompressedSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(a.cfg.Dir, e.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				a.log.Warn("archive: expire failed", "path", path, "err", err)
				continue
			}
			a.log.Info("archive: segment expired", "path", path)
		}
	}
}

// Decompress reads a zstd-compressed segment back into its original
// bytes, for tooling that needs to inspect an archived file. The replay
// subcommand reads only uncompressed log files and does not call it.
func Decompress(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("archive: new decoder: %w", err)
	}
	defer dec.Close()

	return io.ReadAll(dec)
}
