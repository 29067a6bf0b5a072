package transcript

import "strings"

// Aggregator groups consecutive words with the same speaker into utterances.
// The zero value is empty and ready to use.
type Aggregator struct {
	accumulating bool
	speaker      string
	start        float64
	end          float64
	words        []string
}

// Add feeds the next word. When speaker differs from the open run, the run is
// closed and returned with ok set, and a new run starts at w.
func (a *Aggregator) Add(w Word, speaker string) (u Utterance, ok bool) {
	if a.accumulating && speaker == a.speaker {
		a.words = append(a.words, w.Text)
		a.end = w.End
		return Utterance{}, false
	}
	u, ok = a.Flush()
	a.accumulating = true
	a.speaker = speaker
	a.start = w.Start
	a.end = w.End
	a.words = append(a.words[:0], w.Text)
	return u, ok
}

// Flush closes the open run, if any, and returns it.
func (a *Aggregator) Flush() (Utterance, bool) {
	if !a.accumulating {
		return Utterance{}, false
	}
	u := Utterance{
		Speaker: a.speaker,
		Start:   a.start,
		End:     a.end,
		Text:    strings.Join(a.words, " "),
	}
	a.accumulating = false
	a.words = a.words[:0]
	return u, true
}
