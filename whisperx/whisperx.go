package whisperx

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"notetaker/notes"
	"notetaker/transcript"
)

type (
	transcribeResult struct {
		Segments []segment `json:"segments"`
	}

	segment struct {
		Text  string          `json:"text"`
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
		Words []word          `json:"words"`
	}

	word struct {
		Text  string           `json:"word"`
		Start *decimal.Decimal `json:"start"`
		End   *decimal.Decimal `json:"end"`
	}
)

// WhisperxTranscriber runs the whisperx command line tool on the local
// machine.
type WhisperxTranscriber struct {
	// Bin is the executable to run; empty means "whisperx" from PATH.
	Bin string
	// Model is the whisper model size, e.g. "small" or "medium".
	Model string
	// ComputeType is passed as --compute_type when set.
	ComputeType string
	Logger      *slog.Logger
}

var _ notes.Transcriber = WhisperxTranscriber{}

func (w WhisperxTranscriber) Transcribe(ctx context.Context, filePath string, opts notes.TranscribeOptions) ([]transcript.Segment, error) {
	outDir, err := os.MkdirTemp("", "whisperx-*")
	if err != nil {
		return nil, fmt.Errorf("creating whisperx output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	bin := w.Bin
	if bin == "" {
		bin = "whisperx"
	}
	args := []string{filePath, "--output_format", "json", "--output_dir", outDir}
	if w.Model != "" {
		args = append(args, "--model", w.Model)
	}
	if w.ComputeType != "" {
		args = append(args, "--compute_type", w.ComputeType)
	}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	cmd := exec.CommandContext(ctx, bin, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("whisperx stderr: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("whisperx stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting whisperx: %w", err)
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "whisperx")

	var (
		wg      sync.WaitGroup
		tailMu  sync.Mutex
		errTail string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		streamLines(stderr, func(m string) {
			logger.Debug(m, "stream", "stderr")
			tailMu.Lock()
			errTail = m
			tailMu.Unlock()
		})
	}()
	go func() {
		defer wg.Done()
		streamLines(stdout, func(m string) { logger.Debug(m, "stream", "stdout") })
	}()
	// Pipes must be drained before Wait closes them.
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if errTail != "" {
			return nil, fmt.Errorf("transcribing with whisperx: %w: %s", err, errTail)
		}
		return nil, fmt.Errorf("transcribing with whisperx: %w", err)
	}

	base := filepath.Base(filePath)
	resultPath := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".json")
	f, err := os.Open(resultPath)
	if err != nil {
		return nil, fmt.Errorf("opening whisperx transcribe result: %w", err)
	}
	defer f.Close()

	return decodeResult(f)
}

func streamLines(r io.Reader, emit func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}

func decodeResult(r io.Reader) ([]transcript.Segment, error) {
	var tr transcribeResult
	if err := json.NewDecoder(r).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding whisperx json result: %w", err)
	}

	res := make([]transcript.Segment, 0, len(tr.Segments))
	prevEnd := decimal.Zero
	for _, s := range tr.Segments {
		seg := transcript.Segment{
			Text:  strings.TrimSpace(s.Text),
			Start: s.Start.InexactFloat64(),
			End:   s.End.InexactFloat64(),
		}
		var ws []transcript.Word
		ws, prevEnd = repairWords(s, prevEnd)
		seg.Words = ws
		if seg.Start > seg.End {
			seg.End = seg.Start
		}
		res = append(res, seg)
	}
	return res, nil
}

// repairWords fills in timestamps whisperx could not align (numbers and
// symbols usually come without them) and clamps every word so that it starts
// no earlier than the previous one ended. It returns the end of the last word.
func repairWords(s segment, prevEnd decimal.Decimal) ([]transcript.Word, decimal.Decimal) {
	res := make([]transcript.Word, 0, len(s.Words))
	for n, w := range s.Words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}

		var start decimal.Decimal
		switch {
		case w.Start != nil:
			start = *w.Start
		case n == 0:
			start = s.Start
		default:
			start = prevEnd
		}
		start = decimal.Max(start, prevEnd)

		var end decimal.Decimal
		if w.End != nil {
			end = *w.End
		} else {
			end = nextStart(s, n)
		}
		end = decimal.Max(end, start)

		res = append(res, transcript.Word{
			Start: start.InexactFloat64(),
			End:   end.InexactFloat64(),
			Text:  text,
		})
		prevEnd = end
	}
	return res, prevEnd
}

// nextStart returns the first known start after word n, or the segment end.
func nextStart(s segment, n int) decimal.Decimal {
	for _, w := range s.Words[n+1:] {
		if w.Start != nil {
			return *w.Start
		}
	}
	return s.End
}
