package audit_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/audit"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := audit.NewWriter(dir, "resolutions")

	start := time.Now().UTC()
	a := activity.New(activity.EatAtTavern, "marco", start, start.Add(30*time.Minute))
	a.Details = activity.MealDetails{ResourceType: "bread", Price: 1000, Operator: "osteria"}

	require.NoError(t, w.Record(audit.Entry{At: start, Outcome: activity.StatusProcessed, Activity: a}))
	require.NoError(t, w.Record(audit.Entry{At: start, Outcome: activity.StatusFailed, Activity: a, Error: "no funds"}))
	require.NoError(t, w.Close())

	files, err := filepath.Glob(filepath.Join(dir, "resolutions-*.jsonl.zst"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var entries []audit.Entry
	for _, f := range files {
		got, err := audit.ReadFile(f)
		require.NoError(t, err)
		entries = append(entries, got...)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "no funds", entries[1].Error)
	meal, ok := entries[0].Activity.Details.(activity.MealDetails)
	require.True(t, ok)
	assert.Equal(t, "bread", meal.ResourceType)
}
