package cmd

import (
	"testing"

	"github.com/iksnae/cursor-history/internal/history"
	"github.com/stretchr/testify/assert"
)

func TestStats(t *testing.T) {
	env := newTestEnv(t)

	var stats history.Stats
	env.runJSON(t, &stats, "stats")
	assert.Equal(t, 0, stats.TotalSessions)
	assert.Equal(t, 2, stats.SourceSessions)
	assert.Equal(t, 2, stats.Unsynced)
	assert.Equal(t, map[string]int{"cursor": 2}, stats.SourceCounts)

	env.mustRun(t, "sync")
	env.runJSON(t, &stats, "stats")
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.WithProject)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 0, stats.Unsynced)
	assert.False(t, stats.Sampled)

	out := env.mustRun(t, "stats")
	assert.Contains(t, out, "Indexed sessions")
	assert.Contains(t, out, "In source cursor")
}

func TestSync_JSON(t *testing.T) {
	env := newTestEnv(t)

	var result map[string]int
	env.runJSON(t, &result, "sync", "-n", "1")
	assert.Equal(t, 1, result["added"])

	env.runJSON(t, &result, "sync")
	assert.Equal(t, 1, result["added"])
}
