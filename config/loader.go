package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load applies environment overrides on top of Default and validates the
// result.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := Default()

	overrideString(l.Lookup, "NOTETAKER_DB_PATH", &cfg.DBPath)
	overrideString(l.Lookup, "NOTETAKER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NOTETAKER_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "NOTETAKER_ASR", &cfg.ASRBackend)
	overrideString(l.Lookup, "NOTETAKER_LANGUAGE", &cfg.Language)
	overrideString(l.Lookup, "NOTETAKER_WHISPERX_BIN", &cfg.WhisperxBin)
	overrideString(l.Lookup, "NOTETAKER_WHISPER_MODEL", &cfg.WhisperModel)
	overrideString(l.Lookup, "NOTETAKER_DIARIZER_URL", &cfg.DiarizerURL)
	overrideString(l.Lookup, "NOTETAKER_DIARIZER_TOKEN", &cfg.DiarizerToken)
	overrideString(l.Lookup, "OPENAI_API_KEY", &cfg.OpenAIKey)
	overrideString(l.Lookup, "OPENAI_BASE_URL", &cfg.OpenAIBaseURL)
	overrideString(l.Lookup, "OPENAI_TRANSCRIBE_MODEL", &cfg.OpenAITranscribeModel)
	overrideString(l.Lookup, "OPENAI_CHAT_MODEL", &cfg.OpenAIChatModel)

	if err := overrideUint32(l.Lookup, "NOTETAKER_MIN_SPEAKERS", &cfg.Speakers.Min); err != nil {
		return Config{}, err
	}
	if err := overrideUint32(l.Lookup, "NOTETAKER_MAX_SPEAKERS", &cfg.Speakers.Max); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "NOTETAKER_PRECISION", &cfg.Precision); err != nil {
		return Config{}, err
	}
	if err := overrideDuration(l.Lookup, "NOTETAKER_TIMEOUT", &cfg.Timeout); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookupTrimmed(lookup, key); ok {
		*target = value
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*target = n
	return nil
}

func overrideUint32(lookup func(string) (string, bool), key string, target *uint32) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*target = uint32(n)
	return nil
}

func overrideDuration(lookup func(string) (string, bool), key string, target *time.Duration) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*target = d
	return nil
}
