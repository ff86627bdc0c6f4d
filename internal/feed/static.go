package feed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"jobradar/internal/model"
)

// Static is an in-memory feed. It backs the demo scan when no Telegram
// credentials are configured and serves as the feed double in tests.
type Static struct {
	// History holds the per-source messages, keyed by raw source.
	History map[string][]model.Message
	// Denied marks sources that resolve as inaccessible.
	Denied map[string]bool
	// ResolveErrs injects a resolution error per source.
	ResolveErrs map[string]error
	// Errs injects an enumeration error per source.
	Errs map[string]error
}

// Resolve implements Feed.
func (s *Static) Resolve(_ context.Context, raw string) (Source, error) {
	if err := s.ResolveErrs[raw]; err != nil {
		return Source{}, err
	}
	if s.Denied[raw] {
		return Source{}, fmt.Errorf("%w: %s", ErrAccessDenied, raw)
	}
	if _, ok := s.History[raw]; !ok {
		return Source{}, fmt.Errorf("%w: unknown source %s", ErrAccessDenied, raw)
	}
	return Source{Raw: raw, Name: raw}, nil
}

// Messages implements Feed, replaying stored messages newest first.
func (s *Static) Messages(ctx context.Context, src Source, cutoff time.Time, fn func(model.Message) error) error {
	if err := s.Errs[src.Raw]; err != nil {
		return err
	}

	msgs := append([]model.Message(nil), s.History[src.Raw]...)
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].PublishedAt.After(msgs[j].PublishedAt)
	})

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !cutoff.IsZero() && msg.PublishedAt.Before(cutoff) {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

// NewDemo builds a Static feed with canned job-channel traffic for the
// given sources, used when the scan runs without Telegram credentials.
func NewDemo(sources []string) *Static {
	now := time.Now()
	msgs := make(map[string][]model.Message, len(sources))
	for i, src := range sources {
		base := demoLinkBase(src)
		msgs[src] = []model.Message{
			{
				ID:          101,
				Link:        base + "/101",
				Text:        "Ищем директора по развитию в финтех проект. Нужен опыт B2B продаж.",
				PublishedAt: now.Add(-time.Duration(i+1) * 3 * time.Minute),
				Source:      src,
			},
			{
				ID:          102,
				Link:        base + "/102",
				Text:        "В команду нужен senior backend разработчик на Python и FastAPI.",
				PublishedAt: now.Add(-time.Duration(i+1) * 2 * time.Minute),
				Source:      src,
			},
			{
				ID:          103,
				Link:        base + "/103",
				Text:        "Ищем менеджера аккаунтов в e-commerce. Офис Москва.",
				PublishedAt: now.Add(-time.Duration(i+1) * time.Minute),
				Source:      src,
			},
		}
	}
	return &Static{History: msgs}
}

func demoLinkBase(src string) string {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return strings.TrimRight(src, "/")
	}
	return "https://t.me/" + strings.TrimRight(strings.TrimPrefix(src, "@"), "/")
}
