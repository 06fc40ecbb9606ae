package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexastock/internal/service"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("PRICE_PROVIDER", "static")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReportRequiresPortfolioID(t *testing.T) {
	_, err := runCommand(t, "report")
	assert.Error(t, err)
}

func TestReportRejectsBadAsOf(t *testing.T) {
	_, err := runCommand(t, "report", "p1", "--as-of", "last tuesday")
	assert.ErrorContains(t, err, "RFC3339")
}

func TestReportUnknownPortfolio(t *testing.T) {
	_, err := runCommand(t, "report", "missing")
	assert.ErrorContains(t, err, "missing")
}

func TestReplayUnknownPortfolio(t *testing.T) {
	_, err := runCommand(t, "replay", "missing", "--repair")
	assert.Error(t, err)
}

func TestPrintReplay(t *testing.T) {
	var out bytes.Buffer
	printReplay(&out, &service.ReplayResult{
		PortfolioID:     "p1",
		JournalEntries:  4,
		CheckedAt:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Inconsistencies: []string{"cash: persisted 10, replayed 12"},
		Repaired:        true,
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "portfolio:  p1", lines[0])
	assert.Equal(t, "  - cash: persisted 10, replayed 12", lines[4])
	assert.Equal(t, "snapshot repaired from journal", lines[5])
}
