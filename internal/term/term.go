// Package term renders the CLI's console output: colored one-liners and
// tabwriter-aligned tables. Table cells stay uncolored; ANSI escapes would
// skew tabwriter's column widths.
package term

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

// Printer writes formatted output to a single destination.
type Printer struct {
	out io.Writer
}

// NewPrinter returns a Printer writing to out, or os.Stdout when nil.
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out}
}

// Printf writes a plain line.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Successf writes a green line.
func (p *Printer) Successf(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(p.out, format+"\n", args...)
}

// Warnf writes a yellow line.
func (p *Printer) Warnf(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(p.out, format+"\n", args...)
}

// Errorf writes a red line.
func (p *Printer) Errorf(format string, args ...any) {
	color.New(color.FgRed).Fprintf(p.out, format+"\n", args...)
}

// Headerf writes a cyan section header.
func (p *Printer) Headerf(format string, args ...any) {
	color.New(color.FgCyan).Fprintf(p.out, format+"\n", args...)
}

// Table writes an aligned table with a dashed underline row.
func (p *Printer) Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  %s\n", strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintf(w, "  %s\n", strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintf(w, "  %s\n", strings.Join(row, "\t"))
	}
	w.Flush()
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate shortens s to maxLen runes of output, ellipsis included.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// FormatTime renders a timestamp for table cells; zero times render as a
// dash.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 02 15:04")
}
