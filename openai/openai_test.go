package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"notetaker/notes"
	"notetaker/transcript"
)

const verboseResponse = `{
  "task": "transcribe",
  "language": "turkish",
  "text": "Merhaba Ali. Nasilsin?",
  "segments": [
    {"id": 0, "start": 0.0, "end": 1.2, "text": " Merhaba Ali."},
    {"id": 1, "start": 1.4, "end": 2.5, "text": " Nasilsin?"}
  ],
  "words": [
    {"word": "Merhaba", "start": 0.0, "end": 0.6},
    {"word": "Ali.", "start": 0.5, "end": 1.2},
    {"word": "Nasilsin?", "start": 1.4, "end": 2.5}
  ]
}`

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if r.FormValue("response_format") != "verbose_json" || r.FormValue("language") != "tr" || r.FormValue("model") != "whisper-1" {
			t.Errorf("unexpected form: %v", r.MultipartForm.Value)
		}
		if got := r.MultipartForm.Value["timestamp_granularities[]"]; len(got) != 2 {
			t.Errorf("timestamp_granularities = %v", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if string(data) != "audio" {
				t.Errorf("uploaded %q", data)
			}
		}
		w.Write([]byte(verboseResponse))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "sk-test"})
	c.api.Backoff = 1
	segs, err := c.Transcribe(context.Background(), writeAudio(t, "talk.mp3"), notes.TranscribeOptions{Language: "tr"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
	if len(segs) != 2 || len(segs[0].Words) != 2 || len(segs[1].Words) != 1 {
		t.Fatalf("segments = %+v", segs)
	}
	if w := segs[0].Words[1]; w.Start != 0.6 || w.End != 1.2 || w.Text != "Ali." {
		t.Fatalf("overlapping word not clamped: %+v", w)
	}
	if err := transcript.ValidateSegments(segs); err != nil {
		t.Fatalf("segments do not validate: %v", err)
	}
}

func TestTranscribeRejectsFormat(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	_, err := c.Transcribe(context.Background(), writeAudio(t, "notes.flac"), notes.TranscribeOptions{})
	if !errors.Is(err, transcript.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSegmentsWithoutSegmentTimestamps(t *testing.T) {
	vt := verboseTranscription{Text: " a b"}
	if err := json.Unmarshal([]byte(`{"text":" a b","words":[{"word":"a","start":0.2,"end":0.4},{"word":"b","start":0.5,"end":0.9}]}`), &vt); err != nil {
		t.Fatal(err)
	}
	segs := vt.segments()
	if len(segs) != 1 || len(segs[0].Words) != 2 || segs[0].Start != 0.2 || segs[0].End != 0.9 || segs[0].Text != "a b" {
		t.Fatalf("segments = %+v", segs)
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "gpt-4o" || len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "Question") {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Ali was there."}}]}`))
	}))
	defer srv.Close()

	answer, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}).Complete(context.Background(), "Question: who?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if answer != "Ali was there." {
		t.Fatalf("answer = %q", answer)
	}
}

func TestCompleteFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"refusal", `{"choices":[{"message":{"refusal":"I can't help with that."}}]}`, ErrRefused},
		{"empty content", `{"choices":[{"message":{"content":""}}]}`, ErrEmptyResponse},
		{"no choices", `{"choices":[]}`, ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}).Complete(context.Background(), "q")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
