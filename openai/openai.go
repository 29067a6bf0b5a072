// Package openai talks to the OpenAI HTTP API for cloud transcription and
// for answering questions about stored notes.
package openai

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"notetaker/httpretry"
)

const (
	DefaultBaseURL         = "https://api.openai.com"
	DefaultTranscribeModel = "whisper-1"
	DefaultChatModel       = "gpt-4o"
)

type Config struct {
	BaseURL         string
	APIKey          string
	TranscribeModel string
	ChatModel       string
	Timeout         time.Duration
	Retries         int
	Logger          *slog.Logger
}

type Client struct {
	cfg Config
	api httpretry.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = DefaultTranscribeModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
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
			Logger:  logger.With("component", "openai"),
		},
	}
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
}
