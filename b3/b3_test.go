package b3

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashFileMatchesReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	fromReader, err := Blake3HashFromReader(strings.NewReader("RIFF....WAVEfmt "))
	if err != nil {
		t.Fatalf("Blake3HashFromReader: %v", err)
	}
	if fromFile != fromReader {
		t.Fatalf("hash mismatch: %s vs %s", fromFile, fromReader)
	}
	if len(fromFile) != Size*2 {
		t.Fatalf("expected %d hex chars, got %d", Size*2, len(fromFile))
	}
}

func TestHashDiffersByContent(t *testing.T) {
	a, _ := Blake3HashFromReader(strings.NewReader("a"))
	b, _ := Blake3HashFromReader(strings.NewReader("b"))
	if a == b {
		t.Fatal("different content produced the same hash")
	}
}

func TestHashEmptyInput(t *testing.T) {
	// BLAKE3 of the empty string.
	const want = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	got, err := Blake3HashFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestHashFileMissing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}
