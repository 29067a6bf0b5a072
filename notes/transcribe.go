package notes

import (
	"context"

	"notetaker/transcript"
)

type (
	// Transcriber converts an audio file into time-ordered segments of
	// timestamped words.
	Transcriber interface {
		Transcribe(ctx context.Context, filePath string, opts TranscribeOptions) ([]transcript.Segment, error)
	}

	TranscribeOptions struct {
		// Language is an opaque hint for the engine; empty means detect.
		Language string
	}

	// Diarizer reports who spoke when. The speaker bounds are passed through
	// unchanged.
	Diarizer interface {
		Diarize(ctx context.Context, filePath string, speakers transcript.SpeakerCount) ([]transcript.Turn, error)
	}

	// Chatter answers a free-form prompt.
	Chatter interface {
		Complete(ctx context.Context, prompt string) (string, error)
	}
)
