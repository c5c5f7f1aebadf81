//go:build test

package testutils

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/racelink/internal/statuslog"
)

// TestHelper bundles the logger and status stream shared by a test.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Log    *statuslog.Log
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Log:    statuslog.New(256, logger),
	}
}

// Lines drains the status stream and returns the texts.
func (h *TestHelper) Lines() []string {
	return LineTexts(h.Log.Drain())
}

// Transcript drains the status stream and joins the texts with newlines.
func (h *TestHelper) Transcript() string {
	return strings.Join(h.Lines(), "\n")
}

// WaitForLine drains the status stream until a line containing substr shows
// up or timeout expires. Drained lines are returned either way.
func (h *TestHelper) WaitForLine(substr string, timeout time.Duration) ([]string, bool) {
	var seen []string
	deadline := time.Now().Add(timeout)
	for {
		for _, text := range h.Lines() {
			seen = append(seen, text)
			if strings.Contains(text, substr) {
				return seen, true
			}
		}
		if time.Now().After(deadline) {
			return seen, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// LineTexts extracts the texts of status lines.
func LineTexts(lines []statuslog.Line) []string {
	texts := make([]string, 0, len(lines))
	for _, l := range lines {
		texts = append(texts, l.Text)
	}
	return texts
}
