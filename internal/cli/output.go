package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// ColorMode represents color output mode
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// ParseColorMode parses the --color flag.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode %q: must be auto, always, or never", s)
	}
}

// ResolveColors decides whether to colorize. In auto mode NO_COLOR, a
// dumb terminal or a non-terminal stdout turn colors off, and otherwise
// the output.colors setting decides.
func ResolveColors(mode ColorMode, configColors bool) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return false
		}
		if os.Getenv("TERM") == "dumb" {
			return false
		}
		return configColors && !color.NoColor
	}
}

// Printer writes command output.
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

func NewPrinter(out, err io.Writer, useColors bool) *Printer {
	return &Printer{out: out, err: err, useColors: useColors}
}

func (p *Printer) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.useColors {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (p *Printer) Info(format string, args ...any) {
	p.paint(color.FgCyan).Fprintf(p.out, format+"\n", args...)
}

// Result prints a successful calculation.
func (p *Printer) Result(format string, args ...any) {
	if p.useColors {
		p.paint(color.FgGreen, color.Bold).Fprintf(p.out, format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) Warning(format string, args ...any) {
	if p.useColors {
		p.paint(color.FgYellow).Fprintf(p.err, "⚠ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.err, "[WARN] "+format+"\n", args...)
}

func (p *Printer) Error(format string, args ...any) {
	if p.useColors {
		p.paint(color.FgRed).Fprintf(p.err, "✗ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.err, "[ERROR] "+format+"\n", args...)
}

// Header prints a section header
func (p *Printer) Header(title string) {
	if p.useColors {
		p.paint(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
		p.paint(color.FgWhite).Fprintf(p.out, "%s\n", repeatChar('─', len(title)))
		return
	}
	fmt.Fprintf(p.out, "\n%s\n%s\n", title, repeatChar('-', len(title)))
}

// Bold returns text in bold
func (p *Printer) Bold(text string) string {
	return p.paint(color.Bold).Sprint(text)
}

// Dim returns dimmed text
func (p *Printer) Dim(text string) string {
	return p.paint(color.Faint).Sprint(text)
}

// Failed returns text marked as a failure.
func (p *Printer) Failed(text string) string {
	return p.paint(color.FgRed).Sprint(text)
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table returns a borderless table writing to the printer's output.
func (p *Printer) Table(headers []string) *Table {
	table := tablewriter.NewTable(p.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoWrap: tw.WrapNone,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{
					ShowHeader: tw.Off,
				},
			},
		}),
	)

	return &Table{table: table, header: headers}
}

// Table buffers rows until Render.
type Table struct {
	table  *tablewriter.Table
	header []string
	rows   [][]string
}

func (t *Table) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

func (t *Table) Render() error {
	t.table.Header(t.header)
	if err := t.table.Bulk(t.rows); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}
	if err := t.table.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}
	return nil
}

func repeatChar(char rune, count int) string {
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
