package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"jobradar/internal/config"
	"jobradar/internal/feed"
	"jobradar/internal/lemma"
	"jobradar/internal/match"
	"jobradar/internal/model"
	"jobradar/internal/parse"
	"jobradar/internal/report"
	"jobradar/internal/scanner"
	"jobradar/internal/storage"
)

func main() {
	csvPath := flag.String("csv", "", "write scan results as CSV to the given file")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd := args[0]; cmd {
	case "scan":
		err = runScan(ctx, cfg, store, log, *csvPath)
	case "ban":
		err = setBan(ctx, store, args[1:], true)
	case "unban":
		err = setBan(ctx, store, args[1:], false)
	case "banned":
		err = listBanned(ctx, store)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: jobradar [-csv file] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  scan            Scan configured sources for relevant job postings")
	fmt.Fprintln(os.Stderr, "  ban <link>      Exclude a message link from future reports")
	fmt.Fprintln(os.Stderr, "  unban <link>    Re-include a previously banned message link")
	fmt.Fprintln(os.Stderr, "  banned          List currently banned message links")
}

func runScan(ctx context.Context, cfg *config.Config, store storage.Storage, log *slog.Logger, csvPath string) error {
	sources := parse.Sources(cfg.Profile.Sources)
	if len(sources) == 0 {
		return fmt.Errorf("no sources configured in %s", cfg.ProfilePath)
	}

	scanCfg := scanner.Config{
		Sources: sources,
		Profile: match.Profile{
			TitleTerms:    parse.Terms(cfg.Profile.TitleKeywords),
			ProfileTerms:  parse.Terms(cfg.Profile.ProfileKeywords),
			IndustryTerms: parse.Terms(cfg.Profile.IndustryKeywords),
			Exclusions:    parse.Terms(cfg.Profile.Exclusions),
			Threshold:     cfg.Profile.Threshold,
		},
		Depth: time.Duration(cfg.Profile.ScanDepthDays) * 24 * time.Hour,
		Sort:  model.SortOrder(cfg.Profile.Sort),
	}

	var rep *model.Report
	var scanErr error

	switch cfg.Credentials() {
	case config.CredentialsComplete:
		tg := feed.NewTelegram(feed.TelegramConfig{
			APIID:       cfg.TelegramAPIID,
			APIHash:     cfg.TelegramAPIHash,
			Phone:       cfg.TelegramPhone,
			SessionPath: cfg.SessionPath,
			Code:        promptLine("Telegram login code: "),
			Password:    promptLine("Telegram 2FA password (empty if none): "),
		}, log)
		scanErr = tg.Connect(ctx, func(ctx context.Context) error {
			var err error
			rep, err = scanSession(ctx, tg, store, log, scanCfg)
			return err
		})
		if rep == nil && scanErr == nil {
			scanErr = fmt.Errorf("telegram connection ended before scan")
		}
	case config.CredentialsPartial:
		return fmt.Errorf("telegram credentials are incomplete: set all of TELEGRAM_API_ID, TELEGRAM_API_HASH, TELEGRAM_PHONE")
	default:
		log.Info("no telegram credentials, running demo scan")
		rep, scanErr = scanSession(ctx, feed.NewDemo(sources), store, log, scanCfg)
	}

	if rep != nil {
		if err := printReport(rep, csvPath); err != nil {
			return err
		}
	}
	return scanErr
}

func scanSession(ctx context.Context, f feed.Feed, store storage.Storage, log *slog.Logger, cfg scanner.Config) (*model.Report, error) {
	sc := scanner.New(f, store, lemma.Russian{}, log)
	sc.OnProgress(func(p scanner.Progress) {
		eta := "unknown"
		if p.ETAKnown {
			eta = p.ETA.Round(time.Second).String()
		}
		fmt.Fprintf(os.Stderr, "\rsources %d/%d  messages %d  matches %d  eta %s    ",
			p.SourcesDone, p.TotalSources, p.ScannedMessages, p.MatchCount, eta)
	})
	rep, err := sc.Run(ctx, cfg)
	fmt.Fprintln(os.Stderr)
	return rep, err
}

func printReport(rep *model.Report, csvPath string) error {
	fmt.Print(report.FormatSummary(rep))
	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := report.WriteCSV(f, rep.Records); err != nil {
			return err
		}
		fmt.Printf("\nResults written to %s\n", csvPath)
		return nil
	}
	for _, rec := range rep.Records {
		fmt.Println()
		fmt.Print(report.FormatRecord(rec))
	}
	return nil
}

func setBan(ctx context.Context, store storage.Storage, args []string, banned bool) error {
	if len(args) == 0 {
		return fmt.Errorf("message link is required")
	}
	for _, link := range args {
		if err := store.SetBanned(ctx, link, banned); err != nil {
			return err
		}
	}
	return nil
}

func listBanned(ctx context.Context, store storage.Storage) error {
	links, err := store.ListBanned(ctx)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		fmt.Println("No banned message links.")
		return nil
	}
	for _, link := range links {
		fmt.Println(link)
	}
	return nil
}

func promptLine(prompt string) func(ctx context.Context) (string, error) {
	return func(_ context.Context) (string, error) {
		fmt.Fprint(os.Stderr, prompt)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
