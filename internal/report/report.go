// Package report renders finalized scan results in a stable column
// order: Ban, Date, Message, Link, Channel, Matched words.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"jobradar/internal/model"
)

const dateLayout = "2006-01-02 15:04"

// Columns is the fixed result column order. The per-record score is
// intentionally absent: it is display metadata, not a column.
var Columns = []string{"Ban", "Date", "Message", "Link", "Channel", "Matched words"}

// Row renders one match record into the stable column order.
func Row(rec model.MatchRecord) []string {
	ban := ""
	if rec.Banned {
		ban = "x"
	}
	return []string{
		ban,
		rec.Message.PublishedAt.Format(dateLayout),
		rec.Message.Text,
		rec.Message.Link,
		rec.Message.Source,
		MatchedWords(rec.Match),
	}
}

// MatchedWords flattens the per-block matched terms into one cell,
// keeping the block order title, profile, industry.
func MatchedWords(res model.MatchResult) string {
	var parts []string
	for _, block := range []struct {
		label string
		terms []string
	}{
		{string(model.BlockTitle), res.TitleTerms},
		{string(model.BlockProfile), res.ProfileTerms},
		{string(model.BlockIndustry), res.IndustryTerms},
	} {
		if len(block.terms) > 0 {
			parts = append(parts, block.label+": "+strings.Join(block.terms, ", "))
		}
	}
	return strings.Join(parts, "; ")
}

// WriteCSV writes the header row and all records to w.
func WriteCSV(w io.Writer, records []model.MatchRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatSummary renders a human-readable session summary with warnings.
func FormatSummary(rep *model.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scan %s: %d/%d sources, %d messages scanned, %d matches\n",
		rep.State, rep.ScannedSources, rep.TotalSources, rep.ScannedMessages, len(rep.Records))
	if len(rep.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "  %s: %s\n", w.Source, w.Reason)
		}
	}
	return b.String()
}

// FormatRecord renders one record for terminal output.
func FormatRecord(rec model.MatchRecord) string {
	var b strings.Builder
	if rec.Banned {
		b.WriteString("[banned] ")
	}
	fmt.Fprintf(&b, "%s  %s\n", rec.Message.PublishedAt.Format(dateLayout), rec.Message.Source)
	text := rec.Message.Text
	if len(text) > 200 {
		// Cut on a rune boundary so multi-byte text stays valid UTF-8.
		cut := 200
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	b.WriteString(text)
	b.WriteString("\n")
	if rec.Message.Link != "" {
		b.WriteString(rec.Message.Link)
		b.WriteString("\n")
	}
	if words := MatchedWords(rec.Match); words != "" {
		fmt.Fprintf(&b, "matched: %s\n", words)
	}
	return b.String()
}
