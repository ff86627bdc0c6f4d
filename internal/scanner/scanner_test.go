package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"jobradar/internal/feed"
	"jobradar/internal/lemma"
	"jobradar/internal/match"
	"jobradar/internal/model"
	"jobradar/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func jobProfile(threshold int) match.Profile {
	return match.Profile{
		TitleTerms:    []string{"директор"},
		ProfileTerms:  []string{"развитие"},
		IndustryTerms: []string{"финтех"},
		Threshold:     threshold,
	}
}

func msg(id int64, source, text string, age time.Duration) model.Message {
	return model.Message{
		ID:          id,
		Link:        fmt.Sprintf("https://t.me/%s/%d", source, id),
		Text:        text,
		PublishedAt: time.Now().Add(-age),
		Source:      source,
	}
}

func jobsMessages(source string) []model.Message {
	return []model.Message{
		msg(101, source, "Ищем директора по развитию в финтех проект. Нужен опыт B2B продаж.", 3*time.Minute),
		msg(102, source, "В команду нужен senior backend разработчик на Python и FastAPI.", 2*time.Minute),
		msg(103, source, "Ищем менеджера аккаунтов в e-commerce. Офис Москва.", time.Minute),
	}
}

func TestScanCompleted(t *testing.T) {
	f := &feed.Static{History: map[string][]model.Message{"jobs": jobsMessages("jobs")}}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())

	rep, err := sc.Run(context.Background(), Config{
		Sources: []string{"jobs"},
		Profile: jobProfile(3),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if rep.State != model.StateCompleted {
		t.Errorf("state = %s, want %s", rep.State, model.StateCompleted)
	}
	if rep.ScannedSources != 1 || rep.TotalSources != 1 {
		t.Errorf("sources = %d/%d, want 1/1", rep.ScannedSources, rep.TotalSources)
	}
	if rep.ScannedMessages != 3 {
		t.Errorf("scanned messages = %d, want 3", rep.ScannedMessages)
	}
	if len(rep.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", rep.Warnings)
	}
	if len(rep.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(rep.Records))
	}

	rec := rep.Records[0]
	if rec.Message.Link != "https://t.me/jobs/101" {
		t.Errorf("record link = %s", rec.Message.Link)
	}
	if rec.Banned {
		t.Error("record unexpectedly banned")
	}
	want := model.MatchResult{
		Relevant:      true,
		Score:         3,
		TitleTerms:    []string{"директор"},
		ProfileTerms:  []string{"развитие"},
		IndustryTerms: []string{"финтех"},
	}
	if diff := cmp.Diff(want, rec.Match); diff != "" {
		t.Errorf("match result mismatch (-want +got):\n%s", diff)
	}

	if got := sc.State(); got != model.StateCompleted {
		t.Errorf("scanner state = %s, want %s", got, model.StateCompleted)
	}
}

func TestInaccessibleSourceWarns(t *testing.T) {
	f := &feed.Static{
		History: map[string][]model.Message{"good": jobsMessages("good")},
		Denied:  map[string]bool{"locked": true},
	}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())

	rep, err := sc.Run(context.Background(), Config{
		Sources: []string{"good", "locked"},
		Profile: jobProfile(1),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if rep.State != model.StateCompleted {
		t.Errorf("state = %s, want %s", rep.State, model.StateCompleted)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0].Source != "locked" {
		t.Fatalf("warnings = %v, want one for source locked", rep.Warnings)
	}
	// The skipped source is reported as a warning, not as scanned.
	if rep.ScannedSources != 1 || rep.TotalSources != 2 {
		t.Errorf("sources = %d/%d, want 1/2", rep.ScannedSources, rep.TotalSources)
	}
	for _, rec := range rep.Records {
		if rec.Message.Source != "good" {
			t.Errorf("record from unexpected source %s", rec.Message.Source)
		}
	}
	if len(rep.Records) == 0 {
		t.Error("expected records from the accessible source")
	}
}

func TestTransportErrorWarns(t *testing.T) {
	f := &feed.Static{
		History: map[string][]model.Message{
			"good":  jobsMessages("good"),
			"flaky": jobsMessages("flaky"),
		},
		Errs: map[string]error{"flaky": errors.New("connection reset")},
	}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())

	rep, err := sc.Run(context.Background(), Config{
		Sources: []string{"flaky", "good"},
		Profile: jobProfile(1),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if rep.State != model.StateCompleted {
		t.Errorf("state = %s, want %s", rep.State, model.StateCompleted)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0].Source != "flaky" {
		t.Fatalf("warnings = %v, want one for source flaky", rep.Warnings)
	}
	if len(rep.Records) == 0 {
		t.Error("expected records from the healthy source")
	}
}

func TestFeedUnavailableFails(t *testing.T) {
	f := &feed.Static{
		History: map[string][]model.Message{
			"good": jobsMessages("good"),
			"dead": jobsMessages("dead"),
		},
		Errs: map[string]error{"dead": fmt.Errorf("auth lost: %w", feed.ErrUnavailable)},
	}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())

	rep, err := sc.Run(context.Background(), Config{
		Sources: []string{"good", "dead"},
		Profile: jobProfile(1),
	})
	if err == nil {
		t.Fatal("expected error for unavailable feed")
	}
	if rep == nil {
		t.Fatal("failed session must still return partial results")
	}
	if rep.State != model.StateFailed {
		t.Errorf("state = %s, want %s", rep.State, model.StateFailed)
	}
	if len(rep.Records) == 0 {
		t.Error("partial results from the first source were discarded")
	}
}

func TestCancellationKeepsPartialResults(t *testing.T) {
	f := &feed.Static{History: map[string][]model.Message{
		"a": jobsMessages("a"),
		"b": jobsMessages("b"),
		"c": jobsMessages("c"),
	}}
	store := newTestStore(t)
	sc := New(f, store, lemma.Russian{}, discardLogger())
	sc.OnProgress(func(p Progress) {
		if p.SourcesDone >= 1 {
			sc.Stop()
		}
	})

	rep, err := sc.Run(context.Background(), Config{
		Sources: []string{"a", "b", "c"},
		Profile: jobProfile(1),
	})
	if err != nil {
		t.Fatalf("cancellation must not be an error: %v", err)
	}

	if rep.State != model.StateCanceled {
		t.Errorf("state = %s, want %s", rep.State, model.StateCanceled)
	}
	if rep.ScannedSources >= rep.TotalSources {
		t.Errorf("expected an unfinished scan, got %d/%d sources", rep.ScannedSources, rep.TotalSources)
	}
	if len(rep.Records) == 0 {
		t.Error("partial results were discarded on cancel")
	}
}

func TestBanJoin(t *testing.T) {
	f := &feed.Static{History: map[string][]model.Message{"jobs": jobsMessages("jobs")}}
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetBanned(ctx, "https://t.me/jobs/101", true); err != nil {
		t.Fatalf("ban: %v", err)
	}

	sc := New(f, store, lemma.Russian{}, discardLogger())
	rep, err := sc.Run(ctx, Config{Sources: []string{"jobs"}, Profile: jobProfile(3)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(rep.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(rep.Records))
	}
	if !rep.Records[0].Banned {
		t.Error("ban state not joined onto the record")
	}
}

func TestBanRejoinOnRescan(t *testing.T) {
	f := &feed.Static{History: map[string][]model.Message{"jobs": jobsMessages("jobs")}}
	store := newTestStore(t)
	ctx := context.Background()
	cfg := Config{Sources: []string{"jobs"}, Profile: jobProfile(3)}

	sc := New(f, store, lemma.Russian{}, discardLogger())
	rep, err := sc.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if rep.Records[0].Banned {
		t.Fatal("record banned before any toggle")
	}

	if err := store.SetBanned(ctx, rep.Records[0].Message.Link, true); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if err := sc.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	rep, err = sc.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !rep.Records[0].Banned {
		t.Error("re-scan did not reapply the ban registry state")
	}
}

func TestSortOrder(t *testing.T) {
	messages := []model.Message{
		msg(1, "jobs", "Нужен директор.", 3*time.Hour),
		msg(2, "jobs", "Ищем директора срочно.", time.Hour),
		msg(3, "jobs", "Директор в команду.", 2*time.Hour),
	}
	f := &feed.Static{History: map[string][]model.Message{"jobs": messages}}

	tests := []struct {
		name  string
		order model.SortOrder
		want  []int64
	}{
		{name: "default newest first", order: "", want: []int64{2, 3, 1}},
		{name: "oldest first", order: model.SortOldestFirst, want: []int64{1, 3, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())
			rep, err := sc.Run(context.Background(), Config{
				Sources: []string{"jobs"},
				Profile: jobProfile(1),
				Sort:    tt.order,
			})
			if err != nil {
				t.Fatalf("run: %v", err)
			}

			var got []int64
			for _, rec := range rep.Records {
				got = append(got, rec.Message.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("record order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDedupeByLink(t *testing.T) {
	duplicate := msg(7378, "jobs", "Ищем директора по продукту.", time.Hour)
	f := &feed.Static{History: map[string][]model.Message{
		"jobs":   {duplicate},
		"mirror": {duplicate},
	}}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())

	rep, err := sc.Run(context.Background(), Config{
		Sources: []string{"jobs", "mirror"},
		Profile: jobProfile(1),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Records) != 1 {
		t.Errorf("records = %d, want 1 after link dedupe", len(rep.Records))
	}
}

func TestDepthCutoff(t *testing.T) {
	messages := []model.Message{
		msg(1, "jobs", "Ищем директора, свежая вакансия.", time.Hour),
		msg(2, "jobs", "Нужен директор, старая вакансия.", 40*24*time.Hour),
	}
	f := &feed.Static{History: map[string][]model.Message{"jobs": messages}}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())

	rep, err := sc.Run(context.Background(), Config{
		Sources: []string{"jobs"},
		Profile: jobProfile(1),
		Depth:   14 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Records) != 1 || rep.Records[0].Message.ID != 1 {
		t.Errorf("expected only the fresh message, got %v", rep.Records)
	}
}

func TestEmptyProfileNeverMatches(t *testing.T) {
	f := &feed.Static{History: map[string][]model.Message{"jobs": jobsMessages("jobs")}}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())

	rep, err := sc.Run(context.Background(), Config{
		Sources: []string{"jobs"},
		Profile: match.Profile{Threshold: 1},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rep.Records) != 0 {
		t.Errorf("empty keyword blocks matched %d messages", len(rep.Records))
	}
	if rep.State != model.StateCompleted {
		t.Errorf("state = %s, want %s", rep.State, model.StateCompleted)
	}
}

func TestProgressSnapshots(t *testing.T) {
	f := &feed.Static{History: map[string][]model.Message{
		"a": jobsMessages("a"),
		"b": jobsMessages("b"),
	}}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())

	var snapshots []Progress
	sc.OnProgress(func(p Progress) { snapshots = append(snapshots, p) })

	if _, err := sc.Run(context.Background(), Config{
		Sources: []string{"a", "b"},
		Profile: jobProfile(1),
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(snapshots) == 0 {
		t.Fatal("no progress snapshots published")
	}

	prevMatches := 0
	for _, p := range snapshots {
		if p.MatchCount < prevMatches {
			t.Fatalf("live match count decreased: %d -> %d", prevMatches, p.MatchCount)
		}
		prevMatches = p.MatchCount

		// ETA stays unknown until at least one source completes.
		if p.SourcesDone == 0 && p.ETAKnown {
			t.Error("ETA known before any source completed")
		}
	}

	last := snapshots[len(snapshots)-1]
	if last.State != model.StateCompleted {
		t.Errorf("final snapshot state = %s, want %s", last.State, model.StateCompleted)
	}
	if got := sc.Progress(); got.State != model.StateCompleted {
		t.Errorf("polled snapshot state = %s, want %s", got.State, model.StateCompleted)
	}
}

func TestRunRequiresResetAfterCompletion(t *testing.T) {
	f := &feed.Static{History: map[string][]model.Message{"jobs": jobsMessages("jobs")}}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())
	cfg := Config{Sources: []string{"jobs"}, Profile: jobProfile(1)}

	if _, err := sc.Run(context.Background(), cfg); err != nil {
		t.Fatalf("first run: %v", err)
	}

	if _, err := sc.Run(context.Background(), cfg); err == nil {
		t.Fatal("second run without reset must be rejected")
	}

	if err := sc.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := sc.Run(context.Background(), cfg); err != nil {
		t.Fatalf("run after reset: %v", err)
	}
}

type blockingFeed struct {
	release chan struct{}
}

func (b *blockingFeed) Resolve(_ context.Context, raw string) (feed.Source, error) {
	return feed.Source{Raw: raw, Name: raw}, nil
}

func (b *blockingFeed) Messages(ctx context.Context, _ feed.Source, _ time.Time, _ func(model.Message) error) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSecondScanRejectedWhileRunning(t *testing.T) {
	f := &blockingFeed{release: make(chan struct{})}
	sc := New(f, newTestStore(t), lemma.Russian{}, discardLogger())
	cfg := Config{Sources: []string{"jobs"}, Profile: jobProfile(1)}

	done := make(chan error, 1)
	go func() {
		_, err := sc.Run(context.Background(), cfg)
		done <- err
	}()

	deadline := time.After(5 * time.Second)
	for sc.State() != model.StateRunning {
		select {
		case <-deadline:
			t.Fatal("scan never reached RUNNING")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := sc.Run(context.Background(), cfg); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("concurrent run error = %v, want ErrAlreadyRunning", err)
	}

	close(f.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if sc.State() != model.StateCompleted {
		t.Errorf("state = %s, want %s", sc.State(), model.StateCompleted)
	}
}
