package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunOnceCompressesSealedSegments(t *testing.T) {
	dir := t.TempDir()
	segPath := filepath.Join(dir, "mktdata_20260101.bin")
	want := bytes.Repeat([]byte{0xAB}, 4096)
	if err := os.WriteFile(segPath, want, 0644); err != nil {
		t.Fatal(err)
	}

	a := New(Config{Dir: dir}, nil)
	a.RunOnce()

	if _, err := os.Stat(segPath); !os.IsNotExist(err) {
		t.Error("uncompressed segment should be removed after archival")
	}

	compressedPath := segPath + ".zst"
	if _, err := os.Stat(compressedPath); err != nil {
		t.Fatalf("compressed segment should exist: %v", err)
	}

	got, err := Decompress(compressedPath)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("decompressed content does not match original segment")
	}
}

func TestRunOnceSkipsAlreadyCompressed(t *testing.T) {
	dir := t.TempDir()
	segPath := filepath.Join(dir, "mktdata_20260101.bin")
	os.WriteFile(segPath, []byte("data"), 0644)

	a := New(Config{Dir: dir}, nil)
	a.RunOnce()
	a.RunOnce() // second pass must not try to re-compress the .zst file

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var zstCount int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".zst" {
			zstCount++
		}
	}
	if zstCount != 1 {
		t.Errorf("found %d .zst files, want exactly 1", zstCount)
	}
}

func TestExpireCompressedRemovesOldSegments(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "mktdata_20200101.bin.zst")
	os.WriteFile(oldPath, []byte("old"), 0644)

	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(oldPath, old, old)

	a := New(Config{Dir: dir, MaxAge: 24 * time.Hour}, nil)
	a.RunOnce()

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expired compressed segment should have been removed")
	}
}

func TestExpireCompressedKeepsRecentSegments(t *testing.T) {
	dir := t.TempDir()
	recentPath := filepath.Join(dir, "mktdata_20260803.bin.zst")
	os.WriteFile(recentPath, []byte("recent"), 0644)

	a := New(Config{Dir: dir, MaxAge: 24 * time.Hour}, nil)
	a.RunOnce()

	if _, err := os.Stat(recentPath); err != nil {
		t.Error("recent compressed segment should not have been removed")
	}
}

func TestStartStopWithoutCleanupInterval(t *testing.T) {
	a := New(Config{Dir: t.TempDir()}, nil)
	a.Start()
	a.Stop() // must not hang when CleanupInterval is 0 (background ticker disabled)
}
