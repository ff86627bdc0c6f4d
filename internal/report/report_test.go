package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"jobradar/internal/model"
)

func sampleRecord() model.MatchRecord {
	return model.MatchRecord{
		Message: model.Message{
			ID:          101,
			Link:        "https://t.me/jobs/101",
			Text:        "Ищем директора по развитию в финтех проект.",
			PublishedAt: time.Date(2026, 2, 13, 9, 30, 0, 0, time.UTC),
			Source:      "@jobs",
		},
		Match: model.MatchResult{
			Relevant:      true,
			Score:         3,
			TitleTerms:    []string{"директор"},
			ProfileTerms:  []string{"развитие"},
			IndustryTerms: []string{"финтех"},
		},
	}
}

func TestRow(t *testing.T) {
	rec := sampleRecord()

	want := []string{
		"",
		"2026-02-13 09:30",
		"Ищем директора по развитию в финтех проект.",
		"https://t.me/jobs/101",
		"@jobs",
		"title: директор; profile: развитие; industry: финтех",
	}
	if diff := cmp.Diff(want, Row(rec)); diff != "" {
		t.Errorf("Row mismatch (-want +got):\n%s", diff)
	}

	rec.Banned = true
	if got := Row(rec)[0]; got != "x" {
		t.Errorf("ban cell = %q, want %q", got, "x")
	}
}

func TestMatchedWords(t *testing.T) {
	tests := []struct {
		name string
		res  model.MatchResult
		want string
	}{
		{
			name: "all blocks in fixed order",
			res: model.MatchResult{
				TitleTerms:    []string{"директор", "руководитель"},
				ProfileTerms:  []string{"развитие"},
				IndustryTerms: []string{"финтех"},
			},
			want: "title: директор, руководитель; profile: развитие; industry: финтех",
		},
		{
			name: "single block",
			res:  model.MatchResult{ProfileTerms: []string{"развитие"}},
			want: "profile: развитие",
		},
		{name: "no terms", res: model.MatchResult{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchedWords(tt.res); got != tt.want {
				t.Errorf("MatchedWords = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, []model.MatchRecord{sampleRecord()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header plus one record", len(rows))
	}
	if diff := cmp.Diff(Columns, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	for _, col := range rows[0] {
		if strings.EqualFold(col, "score") {
			t.Error("score must not appear as a result column")
		}
	}
	if rows[1][3] != "https://t.me/jobs/101" {
		t.Errorf("link cell = %q", rows[1][3])
	}
}

func TestFormatSummary(t *testing.T) {
	rep := &model.Report{
		State:           model.StateCompleted,
		ScannedSources:  2,
		TotalSources:    3,
		ScannedMessages: 40,
		Records:         []model.MatchRecord{sampleRecord()},
		Warnings:        []model.Warning{{Source: "@locked", Reason: "access denied"}},
	}

	got := FormatSummary(rep)
	for _, part := range []string{"completed", "2/3 sources", "40 messages", "1 matches", "@locked", "access denied"} {
		if !strings.Contains(got, part) {
			t.Errorf("summary missing %q:\n%s", part, got)
		}
	}
}

func TestFormatRecord(t *testing.T) {
	rec := sampleRecord()
	rec.Banned = true

	got := FormatRecord(rec)
	if !strings.HasPrefix(got, "[banned] ") {
		t.Errorf("banned marker missing:\n%s", got)
	}
	for _, part := range []string{"2026-02-13 09:30", "@jobs", rec.Message.Link, "matched: title: директор"} {
		if !strings.Contains(got, part) {
			t.Errorf("record output missing %q:\n%s", part, got)
		}
	}
}

func TestFormatRecordTruncatesLongText(t *testing.T) {
	rec := sampleRecord()
	// The prefix shifts the 200-byte mark onto the second byte of a
	// two-byte Cyrillic rune: a byte-indexed cut would split it.
	rec.Message.Text = "ab" + strings.Repeat("вакансия директора ", 20)

	got := FormatRecord(rec)
	if !strings.Contains(got, "...") {
		t.Errorf("long text not truncated:\n%s", got)
	}
	if strings.Contains(got, rec.Message.Text) {
		t.Error("full text leaked into truncated output")
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated output is not valid UTF-8: %q", got)
	}
}
