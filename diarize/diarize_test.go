package diarize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"notetaker/httpretry"
	"notetaker/transcript"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNoop(t *testing.T) {
	turns, err := Noop{}.Diarize(context.Background(), "x.wav", transcript.SpeakerCount{Min: 1, Max: 3})
	if err != nil || len(turns) != 0 {
		t.Fatalf("Noop = %v, %v", turns, err)
	}
}

func TestClientDiarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/diarize" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf_token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("min_speakers") != "" || r.FormValue("max_speakers") != "5" {
			t.Errorf("speaker bounds = %q/%q", r.FormValue("min_speakers"), r.FormValue("max_speakers"))
		}
		w.Write([]byte(`{"turns":[
			{"start":0.03,"end":4.2,"speaker":"SPEAKER_00"},
			{"start":3.9,"end":7.5,"speaker":"SPEAKER_01"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "hf_token"})
	turns, err := c.Diarize(context.Background(), writeAudio(t), transcript.SpeakerCount{Max: 5})
	if err != nil {
		t.Fatalf("Diarize: %v", err)
	}
	want := []transcript.Turn{{0.03, 4.2, "SPEAKER_00"}, {3.9, 7.5, "SPEAKER_01"}}
	if len(turns) != len(want) {
		t.Fatalf("turns = %+v", turns)
	}
	for n := range want {
		if turns[n] != want[n] {
			t.Errorf("turn %d = %+v, want %+v", n, turns[n], want[n])
		}
	}
}

func TestClientDiarizeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Diarize(context.Background(), writeAudio(t), transcript.SpeakerCount{})
	if !httpretry.IsStatus(err, http.StatusUnprocessableEntity) {
		t.Fatalf("expected 422 status error, got %v", err)
	}
}

func TestClientDiarizeMissingFile(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := c.Diarize(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), transcript.SpeakerCount{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
