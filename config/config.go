package config

import (
	"fmt"
	"strings"
	"time"

	"notetaker/transcript"
)

const (
	DefaultDBPath       = "notetaker.db"
	DefaultListenAddr   = ":8121"
	DefaultLogLevel     = "info"
	DefaultASR          = "local"
	DefaultLanguage     = "tr"
	DefaultWhisperxBin  = "whisperx"
	DefaultWhisperModel = "medium"
	DefaultTimeout      = 2 * time.Hour
)

// Config is the process configuration, read from the environment by Loader.
type Config struct {
	DBPath     string
	ListenAddr string
	LogLevel   string

	// ASRBackend is "local" (whisperx) or "cloud" (OpenAI).
	ASRBackend   string
	Language     string
	WhisperxBin  string
	WhisperModel string

	// DiarizerURL selects the diarization service; empty disables
	// diarization and every word is attributed to the unknown speaker.
	DiarizerURL   string
	DiarizerToken string
	Speakers      transcript.SpeakerCount
	Precision     int

	OpenAIKey             string
	OpenAIBaseURL         string
	OpenAITranscribeModel string
	OpenAIChatModel       string

	Timeout time.Duration
}

func Default() Config {
	return Config{
		DBPath:       DefaultDBPath,
		ListenAddr:   DefaultListenAddr,
		LogLevel:     DefaultLogLevel,
		ASRBackend:   DefaultASR,
		Language:     DefaultLanguage,
		WhisperxBin:  DefaultWhisperxBin,
		WhisperModel: DefaultWhisperModel,
		Precision:    transcript.DefaultPrecision,
		Timeout:      DefaultTimeout,
	}
}

// Validate checks required fields and rejects out-of-range values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: database path is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	switch c.ASRBackend {
	case "local":
	case "cloud":
		if c.OpenAIKey == "" {
			return fmt.Errorf("config: cloud ASR requires OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("config: unknown ASR backend %q (want local or cloud)", c.ASRBackend)
	}
	if err := c.Speakers.Validate(false); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Precision < 0 || c.Precision > transcript.MaxPrecision {
		return fmt.Errorf("config: precision must be in [0, %d], got %d", transcript.MaxPrecision, c.Precision)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must be >= 0, got %s", c.Timeout)
	}
	return nil
}
