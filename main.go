package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"notetaker/config"
	"notetaker/diarize"
	"notetaker/notes"
	"notetaker/openai"
	"notetaker/whisperx"
)

const usage = `usage: notetaker <command> [flags]

commands:
  process [-owner o] [-title t] [-cloud] <file>...   transcribe recordings into notes
  list [-owner o]                                    list stored notes
  show <id>                                          print a note
  delete <id>                                        delete a note
  ask [-owner o] <question>                          ask about stored notes
  serve                                              run the HTTP server
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Loader{}.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

type app struct {
	cfg config.Config
	log *slog.Logger
	db  *sql.DB
	svc *notes.Service
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	db, err := initDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	transcribers := map[string]notes.Transcriber{
		notes.SourceLocal: whisperx.WhisperxTranscriber{
			Bin:    cfg.WhisperxBin,
			Model:  cfg.WhisperModel,
			Logger: logger,
		},
	}
	var chat notes.Chatter
	if cfg.OpenAIKey != "" {
		oc := openai.NewClient(openai.Config{
			BaseURL:         cfg.OpenAIBaseURL,
			APIKey:          cfg.OpenAIKey,
			TranscribeModel: cfg.OpenAITranscribeModel,
			ChatModel:       cfg.OpenAIChatModel,
			Logger:          logger,
		})
		transcribers[notes.SourceCloud] = oc
		chat = oc
	}

	var diarizer notes.Diarizer = diarize.Noop{}
	if cfg.DiarizerURL != "" {
		diarizer = diarize.NewClient(diarize.Config{
			BaseURL: cfg.DiarizerURL,
			Token:   cfg.DiarizerToken,
			Logger:  logger,
		})
	} else {
		logger.Warn("no diarizer configured, speakers will be reported as unknown")
	}

	svc, err := notes.NewService(notes.Deps{
		Repo:         notes.NewSQLiteRepo(db),
		Transcribers: transcribers,
		Diarizer:     diarizer,
		Chat:         chat,
		Logger:       logger,
	}, notes.Options{
		Language:  cfg.Language,
		Speakers:  cfg.Speakers,
		Precision: cfg.Precision,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &app{cfg: cfg, log: logger, db: db, svc: svc}, nil
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, cmd string, args []string, out io.Writer) error {
	var handler func(context.Context, *app, []string, io.Writer) error
	switch cmd {
	case "process":
		handler = runProcess
	case "list":
		handler = runList
	case "show":
		handler = runShow
	case "delete":
		handler = runDelete
	case "ask":
		handler = runAsk
	case "serve":
		handler = func(ctx context.Context, a *app, _ []string, _ io.Writer) error {
			return runServer(ctx, a.cfg.ListenAddr, a.svc, a.log)
		}
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.db.Close()
	defer a.svc.Wait()
	return handler(ctx, a, args, out)
}

func runProcess(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	owner := fs.String("owner", "", "note owner")
	title := fs.String("title", "", "note title (single file only)")
	cloud := fs.Bool("cloud", a.cfg.ASRBackend == "cloud", "transcribe with the cloud ASR")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		return errors.New("process: at least one audio file is required")
	}
	if *title != "" && len(files) > 1 {
		return errors.New("process: -title needs exactly one file")
	}

	source := notes.SourceLocal
	if *cloud {
		source = notes.SourceCloud
	}

	var (
		mu     sync.Mutex
		failed int
	)
	for _, file := range files {
		req := notes.ProcessRequest{Owner: *owner, Title: *title, Path: file, Source: source}
		a.svc.StartProcess(ctx, req, func(res notes.ProcessResult, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				fmt.Fprintf(out, "== %s: %v\n\n", file, err)
				return
			}
			printNote(out, res.Note, res.Existing)
		})
	}
	a.svc.Wait()

	if failed > 0 {
		return fmt.Errorf("process: %d of %d files failed", failed, len(files))
	}
	return nil
}

func printNote(out io.Writer, n notes.Note, existing bool) {
	header := fmt.Sprintf("== %s (%s)", n.Title, n.ID)
	if existing {
		header += " [already processed]"
	}
	fmt.Fprintln(out, header)
	if n.Body != "" {
		fmt.Fprintln(out, n.Body)
	}
	fmt.Fprintln(out)
}

func runList(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	owner := fs.String("owner", "", "note owner")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ns, err := a.svc.ListNotes(ctx, *owner)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tTITLE")
	for _, n := range ns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.CreatedAt.Local().Format(time.DateTime), n.Source, n.Title)
	}
	return tw.Flush()
}

func runShow(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("show: exactly one note id is required")
	}
	n, _, err := a.svc.GetNote(ctx, args[0])
	if err != nil {
		return err
	}
	printNote(out, n, false)
	return nil
}

func runDelete(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("delete: exactly one note id is required")
	}
	if err := a.svc.DeleteNote(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", args[0])
	return nil
}

func runAsk(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	owner := fs.String("owner", "", "note owner")
	if err := fs.Parse(args); err != nil {
		return err
	}

	answer, err := a.svc.Ask(ctx, *owner, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, answer)
	return nil
}
