// Package notes stores transcribed recordings as notes and answers questions
// about them.
package notes

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"notetaker/transcript"
)

const (
	SourceLocal = "local"
	SourceCloud = "cloud"
)

var ErrNotFound = errors.New("note not found")

type (
	Note struct {
		ID         string    `json:"id"`
		Owner      string    `json:"owner"`
		Title      string    `json:"title"`
		Body       string    `json:"body"`
		Blake3Hash string    `json:"blake3_hash"`
		Language   string    `json:"language"`
		Source     string    `json:"source"`
		CreatedAt  time.Time `json:"created_at"`
	}

	StoredUtterance struct {
		NoteID  string `json:"note_id"`
		Seq     int    `json:"seq"`
		Speaker string `json:"speaker"`
		StartMs uint64 `json:"start_ms"`
		EndMs   uint64 `json:"end_ms"`
		Text    string `json:"text"`
	}
)

var thousand = decimal.NewFromInt(1000)

func secondsToMs(sec float64) uint64 {
	return uint64(decimal.NewFromFloat(sec).Mul(thousand).Round(0).IntPart())
}

func storedUtterances(noteID string, us []transcript.Utterance) []StoredUtterance {
	res := make([]StoredUtterance, len(us))
	for n, u := range us {
		res[n] = StoredUtterance{
			NoteID:  noteID,
			Seq:     n,
			Speaker: u.Speaker,
			StartMs: secondsToMs(u.Start),
			EndMs:   secondsToMs(u.End),
			Text:    u.Text,
		}
	}
	return res
}
