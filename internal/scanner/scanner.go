// Package scanner drives one scan session: it resolves the configured
// sources, pages through their message history, evaluates every message
// with the matcher and assembles the result set while publishing
// progress snapshots.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"jobradar/internal/feed"
	"jobradar/internal/lemma"
	"jobradar/internal/match"
	"jobradar/internal/model"
	"jobradar/internal/storage"
)

// progressEvery is how many scanned messages pass between periodic
// progress snapshots; matches and source boundaries publish immediately.
const progressEvery = 20

// ErrAlreadyRunning is returned when a scan is started while another
// session is still RUNNING.
var ErrAlreadyRunning = errors.New("scan already running")

// Config is the immutable configuration snapshot of one scan session.
type Config struct {
	Sources []string
	Profile match.Profile

	// Depth limits how far back messages are read. Zero scans whatever
	// window the feed offers.
	Depth time.Duration

	// Sort orders the final result set by message date.
	// Defaults to newest first.
	Sort model.SortOrder
}

// Progress is a point-in-time snapshot of a running session. It is
// written only by the scan worker and read by the consumer, either
// through the callback or by polling Progress().
type Progress struct {
	State           model.SessionState
	CurrentSource   string
	SourcesDone     int
	TotalSources    int
	ScannedMessages int
	MatchCount      int
	Elapsed         time.Duration

	// ETA is the estimated remaining time, derived from elapsed time
	// over the fraction of sources completed. Unknown until at least
	// one source completes.
	ETA      time.Duration
	ETAKnown bool
}

// ProgressFunc receives progress snapshots during a scan.
type ProgressFunc func(Progress)

// Scanner runs scan sessions over a message feed. At most one session
// is RUNNING at a time.
type Scanner struct {
	feed  feed.Feed
	store storage.Storage
	norm  lemma.Normalizer
	log   *slog.Logger

	onProgress ProgressFunc

	mu     sync.Mutex
	state  model.SessionState
	cancel context.CancelFunc

	progress atomic.Value // Progress
}

// New creates a Scanner in the IDLE state.
func New(f feed.Feed, store storage.Storage, norm lemma.Normalizer, log *slog.Logger) *Scanner {
	s := &Scanner{
		feed:  f,
		store: store,
		norm:  norm,
		log:   log,
		state: model.StateIdle,
	}
	s.progress.Store(Progress{State: model.StateIdle})
	return s
}

// OnProgress registers a callback invoked with every progress snapshot.
// Must be set before Run.
func (s *Scanner) OnProgress(fn ProgressFunc) {
	s.onProgress = fn
}

// State returns the current session state.
func (s *Scanner) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the latest published snapshot.
func (s *Scanner) Progress() Progress {
	return s.progress.Load().(Progress)
}

// Stop requests cooperative cancellation of the running session. The
// session finishes the message in flight, transitions to CANCELED and
// keeps the results produced so far. Stopping an idle scanner is a no-op.
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Reset returns a terminal-state scanner to IDLE so a new session can
// start. A RUNNING session cannot be reset.
func (s *Scanner) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == model.StateRunning {
		return fmt.Errorf("cannot reset a running scan")
	}
	s.state = model.StateIdle
	s.progress.Store(Progress{State: model.StateIdle})
	return nil
}

// Run executes one scan session and blocks until it reaches a terminal
// state. The scanner must be IDLE: a terminal-state scanner needs Reset
// before it can start again. The report is returned for every terminal
// state: on CANCELED and FAILED it carries the records and warnings
// accumulated so far. The returned error is non-nil only for FAILED
// sessions.
func (s *Scanner) Run(ctx context.Context, cfg Config) (*model.Report, error) {
	s.mu.Lock()
	switch s.state {
	case model.StateIdle:
	case model.StateRunning:
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("scan session is %s, reset it before scanning again", s.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.state = model.StateRunning
	s.cancel = cancel
	s.mu.Unlock()

	sess := &session{
		scanner: s,
		cfg:     cfg,
		matcher: match.New(cfg.Profile, s.norm),
		started: time.Now(),
		total:   len(cfg.Sources),
	}
	if cfg.Depth > 0 {
		sess.cutoff = sess.started.Add(-cfg.Depth)
	}

	state := sess.run(ctx)

	report := sess.finalize(state)

	s.mu.Lock()
	s.state = state
	s.cancel = nil
	s.mu.Unlock()
	sess.publish(state, "")

	if state == model.StateFailed {
		return report, fmt.Errorf("scan failed: %w", sess.fatal)
	}
	return report, nil
}

// session holds the mutable state of one RUNNING scan. It is owned
// exclusively by the scan worker goroutine.
type session struct {
	scanner *Scanner
	cfg     Config
	matcher *match.Matcher
	started time.Time
	cutoff  time.Time

	total    int
	done     int
	resolved int
	scanned  int
	records  []model.MatchRecord
	warnings []model.Warning
	fatal    error
}

func (s *session) run(ctx context.Context) model.SessionState {
	log := s.scanner.log

	for _, raw := range s.cfg.Sources {
		if ctx.Err() != nil {
			return model.StateCanceled
		}
		s.publish(model.StateRunning, raw)

		src, err := s.scanner.feed.Resolve(ctx, raw)
		if err != nil {
			if errors.Is(err, feed.ErrUnavailable) {
				s.fatal = err
				return model.StateFailed
			}
			if errors.Is(err, context.Canceled) {
				return model.StateCanceled
			}
			log.Warn("source skipped", "source", raw, "error", err)
			s.warnings = append(s.warnings, model.Warning{Source: raw, Reason: err.Error()})
			s.done++
			continue
		}

		s.resolved++
		log.Info("scanning source", "source", src.Name)
		err = s.scanner.feed.Messages(ctx, src, s.cutoff, func(msg model.Message) error {
			// Cancellation is checked between messages, never mid-message.
			if err := ctx.Err(); err != nil {
				return err
			}
			s.scanMessage(ctx, msg)
			return nil
		})

		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return model.StateCanceled
		case errors.Is(err, feed.ErrUnavailable):
			s.fatal = err
			return model.StateFailed
		default:
			// Access or transport trouble on one source does not sink
			// the rest of the scan.
			log.Warn("source read failed", "source", raw, "error", err)
			s.warnings = append(s.warnings, model.Warning{Source: raw, Reason: err.Error()})
		}

		s.done++
		s.publish(model.StateRunning, raw)
	}

	return model.StateCompleted
}

func (s *session) scanMessage(ctx context.Context, msg model.Message) {
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	s.scanned++

	res := s.matcher.Evaluate(msg.Text)
	if res.Excluded {
		s.scanner.log.Debug("message excluded",
			"source", msg.Source, "link", msg.Link,
			"by", strings.Join(res.ExclusionTerms, ", "))
	}
	if res.Relevant {
		banned, err := s.scanner.store.IsBanned(ctx, msg.Link)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.scanner.log.Warn("ban lookup failed", "link", msg.Link, "error", err)
		}
		s.records = append(s.records, model.MatchRecord{
			Message: msg,
			Match:   res,
			Banned:  banned,
		})
		s.scanner.log.Info("match found",
			"source", msg.Source, "link", msg.Link, "score", res.Score)
		s.publish(model.StateRunning, msg.Source)
		return
	}

	if s.scanned%progressEvery == 0 {
		s.publish(model.StateRunning, msg.Source)
	}
}

// finalize dedupes, orders and ban-joins the accumulated result set.
// Runs for every terminal state so partial results stay usable.
func (s *session) finalize(state model.SessionState) *model.Report {
	records := dedupeRecords(s.records)
	sortRecords(records, s.cfg.Sort)

	// Re-join the current ban state once at the end, so toggles issued
	// mid-scan land in the final set without rewriting rows mid-render.
	// The session context may already be canceled here.
	joinCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := range records {
		banned, err := s.scanner.store.IsBanned(joinCtx, records[i].Message.Link)
		if err != nil {
			s.scanner.log.Warn("ban join failed", "link", records[i].Message.Link, "error", err)
			continue
		}
		records[i].Banned = banned
	}

	// ScannedSources counts sources that actually resolved; skipped ones
	// show up as warnings, not as scanned.
	return &model.Report{
		State:           state,
		ScannedSources:  s.resolved,
		TotalSources:    s.total,
		ScannedMessages: s.scanned,
		Records:         records,
		Warnings:        s.warnings,
	}
}

func (s *session) publish(state model.SessionState, current string) {
	elapsed := time.Since(s.started)
	p := Progress{
		State:           state,
		CurrentSource:   current,
		SourcesDone:     s.done,
		TotalSources:    s.total,
		ScannedMessages: s.scanned,
		MatchCount:      len(s.records),
		Elapsed:         elapsed,
	}
	if s.done > 0 && s.total > 0 && s.done < s.total {
		estimated := time.Duration(float64(elapsed) * float64(s.total) / float64(s.done))
		p.ETA = estimated - elapsed
		p.ETAKnown = true
	}

	s.scanner.progress.Store(p)
	if s.scanner.onProgress != nil {
		s.scanner.onProgress(p)
	}
}

// dedupeRecords drops duplicate matches, first seen wins. Identity is
// the message link; messages without a link fall back to
// source/date/text.
func dedupeRecords(records []model.MatchRecord) []model.MatchRecord {
	out := make([]model.MatchRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		key := recordKey(rec)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

func recordKey(rec model.MatchRecord) string {
	if link := strings.ToLower(strings.TrimSpace(rec.Message.Link)); link != "" {
		return "link:" + link
	}
	return fmt.Sprintf("text:%s|%s|%s",
		strings.ToLower(rec.Message.Source),
		rec.Message.PublishedAt.Format(time.RFC3339),
		strings.ToLower(strings.TrimSpace(rec.Message.Text)))
}

func sortRecords(records []model.MatchRecord, order model.SortOrder) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Message.PublishedAt, records[j].Message.PublishedAt
		if order == model.SortOldestFirst {
			return a.Before(b)
		}
		return a.After(b)
	})
}
