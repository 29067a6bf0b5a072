// Package transcript merges ASR word timestamps with diarization turns into
// speaker-attributed utterances.
package transcript

// UnknownSpeaker labels words that no diarization turn overlaps.
const UnknownSpeaker = "Unknown"

type (
	Interval struct {
		Start float64
		End   float64
	}

	Word struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	}

	Segment struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []Word  `json:"words"`
	}

	Turn struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	}

	Utterance struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
	}
)

// Overlap returns the length of the range shared by i and o, or 0 when they
// are disjoint or only touch.
func (i Interval) Overlap(o Interval) float64 {
	d := min(i.End, o.End) - max(i.Start, o.Start)
	if d < 0 {
		return 0
	}
	return d
}

func (w Word) Interval() Interval { return Interval{Start: w.Start, End: w.End} }

func (t Turn) Interval() Interval { return Interval{Start: t.Start, End: t.End} }

// WordCount returns the number of words across all segments.
func WordCount(segments []Segment) int {
	n := 0
	for _, s := range segments {
		n += len(s.Words)
	}
	return n
}
