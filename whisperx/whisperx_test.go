package whisperx

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"notetaker/notes"
	"notetaker/transcript"
)

const sampleJSON = `{
  "segments": [
    {
      "text": " Merhaba, nasilsin?",
      "start": 0.031,
      "end": 1.5,
      "words": [
        {"word": "Merhaba,", "start": 0.031, "end": 0.6},
        {"word": "nasilsin?", "start": 0.7, "end": 1.5}
      ]
    },
    {
      "text": " 2024 yilinda",
      "start": 1.6,
      "end": 3.0,
      "words": [
        {"word": "2024"},
        {"word": "yilinda", "start": 2.2, "end": 3.0}
      ]
    }
  ]
}`

func TestDecodeResult(t *testing.T) {
	segs, err := decodeResult(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[0].Text != "Merhaba, nasilsin?" || segs[0].Start != 0.031 {
		t.Fatalf("segment 0 = %+v", segs[0])
	}
	want := []transcript.Word{
		{Start: 1.6, End: 2.2, Text: "2024"},
		{Start: 2.2, End: 3.0, Text: "yilinda"},
	}
	for n, w := range want {
		if segs[1].Words[n] != w {
			t.Errorf("word %d = %+v, want %+v", n, segs[1].Words[n], w)
		}
	}
	if err := transcript.ValidateSegments(segs); err != nil {
		t.Fatalf("decoded segments do not validate: %v", err)
	}
}

func TestDecodeResultClampsOverlaps(t *testing.T) {
	in := `{"segments":[
		{"text":"a b","start":0,"end":2,"words":[
			{"word":"a","start":0,"end":1.2},
			{"word":"b","start":1.0,"end":2.0},
			{"word":"  "},
			{"word":"c","start":1.9}
		]}
	]}`
	segs, err := decodeResult(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	ws := segs[0].Words
	if len(ws) != 3 {
		t.Fatalf("got %d words, want 3 (blank dropped): %+v", len(ws), ws)
	}
	if ws[1].Start != 1.2 || ws[2].Start != 2.0 || ws[2].End != 2.0 {
		t.Fatalf("words not clamped: %+v", ws)
	}
	if err := transcript.ValidateSegments(segs); err != nil {
		t.Fatalf("decoded segments do not validate: %v", err)
	}
}

func TestDecodeResultMalformed(t *testing.T) {
	if _, err := decodeResult(strings.NewReader("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func fakeWhisperx(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "result.json")
	if err := os.WriteFile(jsonPath, []byte(sampleJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\nRESULT=" + jsonPath + "\n" + body
	bin := filepath.Join(dir, "whisperx")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestTranscribeRunsCLI(t *testing.T) {
	bin := fakeWhisperx(t, `
audio="$1"
shift
out=""
lang=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output_dir) out="$2"; shift ;;
    --language) lang="$2"; shift ;;
  esac
  shift
done
[ "$lang" = "tr" ] || { echo "missing language" >&2; exit 3; }
echo "loading model"
base=$(basename "$audio")
cp "$RESULT" "$out/${base%.*}.json"
`)
	audio := filepath.Join(t.TempDir(), "meeting.ogg")
	if err := os.WriteFile(audio, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := WhisperxTranscriber{Bin: bin, Model: "small"}
	segs, err := w.Transcribe(context.Background(), audio, notes.TranscribeOptions{Language: "tr"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if transcript.WordCount(segs) != 4 {
		t.Fatalf("got %d words, want 4", transcript.WordCount(segs))
	}
}

func TestTranscribeReportsFailure(t *testing.T) {
	bin := fakeWhisperx(t, `echo "CUDA failed with error out of memory" >&2; exit 1`)
	_, err := WhisperxTranscriber{Bin: bin}.Transcribe(context.Background(), "a.wav", notes.TranscribeOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("error does not carry stderr tail: %v", err)
	}
}

func TestTranscribeMissingOutput(t *testing.T) {
	bin := fakeWhisperx(t, `exit 0`)
	if _, err := (WhisperxTranscriber{Bin: bin}).Transcribe(context.Background(), "a.wav", notes.TranscribeOptions{}); err == nil {
		t.Fatal("expected error when whisperx writes no result")
	}
}
