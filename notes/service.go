package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"notetaker/b3"
	"notetaker/transcript"
)

// NoNotesAnswer is returned by Ask when the owner has nothing stored yet.
const NoNotesAnswer = "You have no saved notes yet."

var ErrChatUnavailable = errors.New("chat is not configured")

type (
	repo interface {
		CreateNote(ctx context.Context, n Note, us []StoredUtterance) (Note, bool, error)
		DeleteNote(ctx context.Context, id string) error
		GetNote(ctx context.Context, id string) (Note, error)
		GetNoteByHash(ctx context.Context, owner string, blake3Hash string) (Note, error)
		ListNotes(ctx context.Context, owner string) ([]Note, error)
		NoteContext(ctx context.Context, owner string) ([]Note, error)
		Utterances(ctx context.Context, noteID string) ([]StoredUtterance, error)
	}

	// Deps are the collaborators a Service drives. Transcribers is keyed by
	// source (SourceLocal, SourceCloud). Chat may be nil.
	Deps struct {
		Repo         repo
		Transcribers map[string]Transcriber
		Diarizer     Diarizer
		Chat         Chatter
		Logger       *slog.Logger
	}

	Options struct {
		Language  string
		Speakers  transcript.SpeakerCount
		Precision int
		// Workers bounds concurrent StartProcess jobs; 0 means 2.
		Workers int
		// Timeout bounds each StartProcess job; 0 means no limit.
		Timeout time.Duration
	}

	Service struct {
		r         repo
		asr       map[string]Transcriber
		diarizer  Diarizer
		chat      Chatter
		log       *slog.Logger
		assembler transcript.Assembler
		opts      Options
		slots     chan struct{}
		wg        *sync.WaitGroup
		now       func() time.Time
	}

	ProcessRequest struct {
		Owner  string `json:"owner"`
		Title  string `json:"title"`
		Path   string `json:"path"`
		Source string `json:"source"`
	}

	ProcessResult struct {
		Note       Note                   `json:"note"`
		Utterances []transcript.Utterance `json:"utterances,omitempty"`
		// Existing is set when the audio had already been processed for
		// this owner and nothing new was stored.
		Existing bool `json:"existing"`
	}
)

func NewService(d Deps, o Options) (*Service, error) {
	if d.Repo == nil {
		return nil, errors.New("notes: repo is required")
	}
	if len(d.Transcribers) == 0 {
		return nil, errors.New("notes: at least one transcriber is required")
	}
	if d.Diarizer == nil {
		return nil, errors.New("notes: diarizer is required")
	}
	if err := o.Speakers.Validate(false); err != nil {
		return nil, fmt.Errorf("notes: %w", err)
	}
	a, err := transcript.NewAssembler(o.Precision)
	if err != nil {
		return nil, fmt.Errorf("notes: %w", err)
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var wg sync.WaitGroup
	return &Service{
		r:         d.Repo,
		asr:       d.Transcribers,
		diarizer:  d.Diarizer,
		chat:      d.Chat,
		log:       logger.With("component", "notes.Service"),
		assembler: a,
		opts:      o,
		slots:     make(chan struct{}, o.Workers),
		wg:        &wg,
		now:       time.Now,
	}, nil
}

func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) normalize(req ProcessRequest) (ProcessRequest, error) {
	if strings.TrimSpace(req.Path) == "" {
		return req, fmt.Errorf("%w: audio path is required", transcript.ErrInvalidInput)
	}
	if req.Source == "" {
		req.Source = SourceLocal
	}
	if _, ok := s.asr[req.Source]; !ok {
		return req, fmt.Errorf("%w: unknown source %q", transcript.ErrInvalidInput, req.Source)
	}
	if req.Title == "" {
		req.Title = filepath.Base(req.Path)
		if req.Source == SourceCloud {
			req.Title += " (Cloud)"
		}
	}
	return req, nil
}

// Process transcribes, diarizes and stores one recording. Nothing is stored
// unless every step succeeds.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (ProcessResult, error) {
	req, err := s.normalize(req)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("process: %w", err)
	}
	log := s.log.With("path", req.Path, "owner", req.Owner, "source", req.Source)

	blake3Hash, err := b3.HashFile(req.Path)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("process: %w: %w", transcript.ErrInvalidInput, err)
	}

	existing, err := s.r.GetNoteByHash(ctx, req.Owner, blake3Hash)
	switch {
	case err == nil:
		log.Info("audio already processed", "note_id", existing.ID)
		return ProcessResult{Note: existing, Existing: true}, nil
	case !errors.Is(err, ErrNotFound):
		return ProcessResult{}, fmt.Errorf("process: %w", err)
	}

	start := time.Now()
	segments, err := s.asr[req.Source].Transcribe(ctx, req.Path, TranscribeOptions{Language: s.opts.Language})
	if err != nil {
		return ProcessResult{}, fmt.Errorf("process: transcribing: %w", transcript.Upstream(req.Source+" asr", err))
	}
	log.Debug("transcribed", "segments", len(segments), "words", transcript.WordCount(segments), "elapsed", time.Since(start))

	start = time.Now()
	turns, err := s.diarizer.Diarize(ctx, req.Path, s.opts.Speakers)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("process: diarizing: %w", transcript.Upstream("diarization", err))
	}
	log.Debug("diarized", "turns", len(turns), "elapsed", time.Since(start))

	res, err := s.assembler.Assemble(segments, turns)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("process: assembling: %w", err)
	}

	note := Note{
		ID:         uuid.NewString(),
		Owner:      req.Owner,
		Title:      req.Title,
		Body:       res.Text(),
		Blake3Hash: blake3Hash,
		Language:   s.opts.Language,
		Source:     req.Source,
		CreatedAt:  s.now().UTC(),
	}
	stored, created, err := s.r.CreateNote(ctx, note, storedUtterances(note.ID, res.Utterances))
	if err != nil {
		return ProcessResult{}, fmt.Errorf("process: %w", err)
	}
	if !created {
		log.Info("audio stored concurrently", "note_id", stored.ID)
		return ProcessResult{Note: stored, Existing: true}, nil
	}

	log.Info("note stored", "note_id", stored.ID, "utterances", len(res.Utterances))
	return ProcessResult{Note: stored, Utterances: res.Utterances}, nil
}

// StartProcess runs Process in the background. done, when set, receives the
// outcome. Use Wait to block until all started jobs finish.
func (s *Service) StartProcess(ctx context.Context, req ProcessRequest, done func(ProcessResult, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			if done != nil {
				done(ProcessResult{}, ctx.Err())
			}
			return
		}
		defer func() { <-s.slots }()

		jobCtx := ctx
		if s.opts.Timeout > 0 {
			var cancel context.CancelFunc
			jobCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
			defer cancel()
		}

		res, err := s.Process(jobCtx, req)
		if err != nil {
			s.log.Error("processing failed", "path", req.Path, "error", err)
		}
		if done != nil {
			done(res, err)
		}
	}()
}

func (s *Service) ListNotes(ctx context.Context, owner string) ([]Note, error) {
	return s.r.ListNotes(ctx, owner)
}

// GetNote returns a note together with its utterances.
func (s *Service) GetNote(ctx context.Context, id string) (Note, []StoredUtterance, error) {
	n, err := s.r.GetNote(ctx, id)
	if err != nil {
		return Note{}, nil, err
	}
	us, err := s.r.Utterances(ctx, id)
	if err != nil {
		return Note{}, nil, err
	}
	return n, us, nil
}

// DeleteNote removes a note and its utterances.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	if err := s.r.DeleteNote(ctx, id); err != nil {
		return err
	}
	s.log.Info("note deleted", "note_id", id)
	return nil
}

// BuildContext renders notes as the context block handed to the chat model.
func BuildContext(ns []Note) string {
	parts := make([]string, len(ns))
	for n, note := range ns {
		parts[n] = fmt.Sprintf("File: %s\nContent: %s", note.Title, note.Body)
	}
	return strings.Join(parts, "\n")
}

// Ask answers question using every note of owner as context.
func (s *Service) Ask(ctx context.Context, owner string, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("ask: %w: empty question", transcript.ErrInvalidInput)
	}
	ns, err := s.r.NoteContext(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("ask: %w", err)
	}
	if len(ns) == 0 {
		return NoNotesAnswer, nil
	}
	if s.chat == nil {
		return "", fmt.Errorf("ask: %w", ErrChatUnavailable)
	}

	prompt := fmt.Sprintf("Previous notes:\n%s\n\nQuestion: %s\nAnswer:", BuildContext(ns), question)
	answer, err := s.chat.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("ask: %w", transcript.Upstream("chat", err))
	}
	return answer, nil
}
