//go:build test

package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TextAssertOptions controls how transcripts are normalized before comparison.
type TextAssertOptions struct {
	TrimSpace        bool `default:"true"`
	IgnoreEmptyLines bool `default:"true"`
	EnableColors     bool `default:"false"`
}

// TextAsserter compares multi-line text such as status transcripts and
// reports mismatches as a unified diff.
type TextAsserter struct {
	t       testing.TB
	options TextAssertOptions
}

// NewTextAsserter creates a TextAsserter with default options.
func NewTextAsserter(t testing.TB) *TextAsserter {
	opts := TextAssertOptions{}
	defaults.SetDefaults(&opts)
	return &TextAsserter{t: t, options: opts}
}

// WithColors toggles ANSI coloring of the diff.
func (ta *TextAsserter) WithColors(enable bool) *TextAsserter {
	ta.options.EnableColors = enable
	return ta
}

// Assert fails the test when actual differs from expected.
func (ta *TextAsserter) Assert(actual, expected string) bool {
	ta.t.Helper()
	diff := ta.Diff(actual, expected)
	if diff != "" {
		ta.t.Errorf("Text assertion failed - unified diff:\n%s", diff)
		return false
	}
	return true
}

// AssertLines compares lines against the expected lines.
func (ta *TextAsserter) AssertLines(actual []string, expected ...string) bool {
	ta.t.Helper()
	return ta.Assert(strings.Join(actual, "\n"), strings.Join(expected, "\n"))
}

// Diff returns the unified diff of the normalized texts, or "" when equal.
func (ta *TextAsserter) Diff(actual, expected string) string {
	a := ta.normalize(actual)
	e := ta.normalize(expected)
	if a == e {
		return ""
	}

	edits := myers.ComputeEdits("", e+"\n", a+"\n")
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e+"\n", edits))
	if !ta.options.EnableColors {
		return unified
	}
	return colorize(unified)
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.options.TrimSpace {
		text = strings.TrimSpace(text)
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if ta.options.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func colorize(diff string) string {
	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}
