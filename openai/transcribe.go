package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"notetaker/notes"
	"notetaker/transcript"
)

var supportedFormats = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".ogg":  true,
	".m4a":  true,
	".webm": true,
}

type (
	verboseTranscription struct {
		Language string           `json:"language"`
		Text     string           `json:"text"`
		Segments []verboseSegment `json:"segments"`
		Words    []verboseWord    `json:"words"`
	}

	verboseSegment struct {
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
		Text  string          `json:"text"`
	}

	verboseWord struct {
		Word  string          `json:"word"`
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
	}
)

var _ notes.Transcriber = (*Client)(nil)

// Transcribe uploads the audio file and asks for word level timestamps.
func (c *Client) Transcribe(ctx context.Context, filePath string, opts notes.TranscribeOptions) ([]transcript.Segment, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if !supportedFormats[ext] {
		return nil, fmt.Errorf("%w: %q files are not supported by cloud transcription", transcript.ErrInvalidInput, ext)
	}

	body, err := c.api.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		payload, contentType, err := c.transcriptionForm(filePath, opts)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/audio/transcriptions", payload)
		if err != nil {
			return nil, err
		}
		c.authorize(req)
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", filepath.Base(filePath), err)
	}

	var vt verboseTranscription
	if err := json.Unmarshal(body, &vt); err != nil {
		return nil, fmt.Errorf("transcribe %s: decode response: %w", filepath.Base(filePath), err)
	}
	return vt.segments(), nil
}

func (c *Client) transcriptionForm(filePath string, opts notes.TranscribeOptions) (io.Reader, string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("copy audio data: %w", err)
	}
	fields := [][2]string{
		{"model", c.cfg.TranscribeModel},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
		{"timestamp_granularities[]", "segment"},
	}
	if opts.Language != "" {
		fields = append(fields, [2]string{"language", opts.Language})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

// segments files every word under the last segment starting at or before
// it. Words are clamped so that none starts before the previous one ends.
func (vt verboseTranscription) segments() []transcript.Segment {
	res := make([]transcript.Segment, len(vt.Segments))
	for n, s := range vt.Segments {
		res[n] = transcript.Segment{
			Start: s.Start.InexactFloat64(),
			End:   decimal.Max(s.Start, s.End).InexactFloat64(),
			Text:  strings.TrimSpace(s.Text),
		}
	}
	if len(res) == 0 && len(vt.Words) > 0 {
		res = []transcript.Segment{{
			Start: vt.Words[0].Start.InexactFloat64(),
			Text:  strings.TrimSpace(vt.Text),
		}}
	}

	seg := 0
	prevEnd := decimal.Zero
	for _, w := range vt.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		start := decimal.Max(w.Start, prevEnd)
		end := decimal.Max(w.End, start)
		prevEnd = end

		for seg+1 < len(vt.Segments) && vt.Segments[seg+1].Start.LessThanOrEqual(start) {
			seg++
		}
		word := transcript.Word{Start: start.InexactFloat64(), End: end.InexactFloat64(), Text: text}
		res[seg].Words = append(res[seg].Words, word)
		if word.End > res[seg].End {
			res[seg].End = word.End
		}
	}
	return res
}
