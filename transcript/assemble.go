package transcript

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultPrecision = 1
	MaxPrecision     = 6
)

type (
	// Assembler turns ASR segments and diarization turns into utterances. It
	// holds configuration only and is safe for concurrent use.
	Assembler struct {
		precision int
		naive     bool
	}

	Result struct {
		Utterances []Utterance
		Lines      []string
	}

	resolver interface {
		Resolve(w Word) string
	}
)

// NewAssembler returns an Assembler rendering start times with precision
// decimal places.
func NewAssembler(precision int) (Assembler, error) {
	if precision < 0 || precision > MaxPrecision {
		return Assembler{}, invalidf("precision must be within [0, %d], got %d", MaxPrecision, precision)
	}
	return Assembler{precision: precision}, nil
}

// Assemble uses DefaultPrecision.
func Assemble(segments []Segment, turns []Turn) (Result, error) {
	return Assembler{precision: DefaultPrecision}.Assemble(segments, turns)
}

func (a Assembler) Precision() int { return a.precision }

// Assemble validates both inputs and merges them. On error no utterances are
// returned. Segments without words are skipped.
func (a Assembler) Assemble(segments []Segment, turns []Turn) (Result, error) {
	if err := ValidateSegments(segments); err != nil {
		return Result{}, err
	}
	if err := ValidateTurns(turns); err != nil {
		return Result{}, err
	}

	var r resolver
	if a.naive {
		r = naiveResolver(turns)
	} else {
		r = NewResolver(turns)
	}

	var (
		agg Aggregator
		res Result
	)
	for _, s := range segments {
		for _, w := range s.Words {
			if u, ok := agg.Add(w, r.Resolve(w)); ok {
				res.Utterances = append(res.Utterances, u)
			}
		}
	}
	if u, ok := agg.Flush(); ok {
		res.Utterances = append(res.Utterances, u)
	}

	res.Lines = make([]string, len(res.Utterances))
	for n, u := range res.Utterances {
		res.Lines[n] = Render(u, a.precision)
	}
	return res, nil
}

// Text joins the rendered lines with newlines.
func (r Result) Text() string {
	return strings.Join(r.Lines, "\n")
}

// Render formats u as "[<start>s] <speaker>: <text>" with start rounded to
// precision decimal places. Rounding applies to the exact binary value of the
// float with ties to even, so 0.15 renders as 0.1.
func Render(u Utterance, precision int) string {
	start := strconv.FormatFloat(u.Start, 'f', precision, 64)
	return fmt.Sprintf("[%ss] %s: %s", start, u.Speaker, u.Text)
}

// ValidateSegments checks that every word has a sane interval and that words
// follow each other without overlap, across segment boundaries too. A word
// may start where a zero-length word before it sits.
func ValidateSegments(segments []Segment) error {
	var (
		prev    Word
		hasPrev bool
	)
	for i, s := range segments {
		if !validTime(s.Start) || !validTime(s.End) || s.Start > s.End {
			return invalidf("segment %d: bad interval [%v, %v]", i, s.Start, s.End)
		}
		for j, w := range s.Words {
			if !validTime(w.Start) || !validTime(w.End) || w.Start > w.End {
				return invalidf("segment %d word %d %q: bad interval [%v, %v]", i, j, w.Text, w.Start, w.End)
			}
			if hasPrev && w.Start < prev.End {
				return invalidf("segment %d word %d %q: starts at %v before previous word %q ends at %v",
					i, j, w.Text, w.Start, prev.Text, prev.End)
			}
			prev, hasPrev = w, true
		}
	}
	return nil
}

// ValidateTurns checks each turn's interval. Turns of different speakers may
// overlap and need not be sorted.
func ValidateTurns(turns []Turn) error {
	for i, t := range turns {
		if !validTime(t.Start) || !validTime(t.End) || t.Start > t.End {
			return invalidf("turn %d (%s): bad interval [%v, %v]", i, t.Speaker, t.Start, t.End)
		}
	}
	return nil
}
