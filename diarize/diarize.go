// Package diarize obtains speaker turns for an audio file.
package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"notetaker/httpretry"
	"notetaker/notes"
	"notetaker/transcript"
)

// Noop reports no turns, so every word ends up attributed to
// transcript.UnknownSpeaker.
type Noop struct{}

var _ notes.Diarizer = Noop{}

func (Noop) Diarize(context.Context, string, transcript.SpeakerCount) ([]transcript.Turn, error) {
	return nil, nil
}

type Config struct {
	// BaseURL of a pyannote speaker-diarization service.
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
	Logger  *slog.Logger
}

// Client calls a pyannote speaker-diarization service over HTTP. The
// service keeps the model loaded; a Client is cheap and carries no model
// state of its own.
type Client struct {
	cfg Config
	api httpretry.Client
}

var _ notes.Diarizer = (*Client)(nil)

type (
	diarizeResponse struct {
		Turns []turn `json:"turns"`
	}

	turn struct {
		Start   decimal.Decimal `json:"start"`
		End     decimal.Decimal `json:"end"`
		Speaker string          `json:"speaker"`
	}
)

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.Retries == 0 {
		cfg.Retries = httpretry.DefaultRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		api: httpretry.Client{
			HTTP:    &http.Client{Timeout: cfg.Timeout},
			Retries: cfg.Retries,
			Logger:  logger.With("component", "diarize"),
		},
	}
}

// Diarize uploads the audio. Non-zero speaker bounds are sent as
// min_speakers and max_speakers.
func (c *Client) Diarize(ctx context.Context, filePath string, speakers transcript.SpeakerCount) ([]transcript.Turn, error) {
	body, err := c.api.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		payload, contentType, err := diarizeForm(filePath, speakers)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/diarize", payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("diarize %s: %w", filepath.Base(filePath), err)
	}

	var dr diarizeResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, fmt.Errorf("diarize %s: decode response: %w", filepath.Base(filePath), err)
	}
	turns := make([]transcript.Turn, len(dr.Turns))
	for n, t := range dr.Turns {
		turns[n] = transcript.Turn{
			Start:   t.Start.InexactFloat64(),
			End:     t.End.InexactFloat64(),
			Speaker: t.Speaker,
		}
	}
	return turns, nil
}

func diarizeForm(filePath string, speakers transcript.SpeakerCount) (io.Reader, string, error) {
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
	if speakers.Min != 0 {
		if err := mw.WriteField("min_speakers", strconv.FormatUint(uint64(speakers.Min), 10)); err != nil {
			return nil, "", err
		}
	}
	if speakers.Max != 0 {
		if err := mw.WriteField("max_speakers", strconv.FormatUint(uint64(speakers.Max), 10)); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}
