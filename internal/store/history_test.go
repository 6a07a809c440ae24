package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cycle(id string, outcome domain.CycleOutcome, started time.Time) domain.CycleResult {
	return domain.CycleResult{
		ID:         id,
		VolumeUUID: "1234-ABCD",
		DevNode:    "/dev/sdb1",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Outcome:    outcome,
		Copied:     2,
	}
}

func TestHistoryStore_RoundTripMostRecentFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := OpenHistory(path)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(cycle("one", domain.OutcomeSynced, base)))
	require.NoError(t, s.Record(cycle("two", domain.OutcomeTransferFailed, base.Add(time.Hour))))
	require.NoError(t, s.Record(cycle("three", domain.OutcomeNoop, base.Add(2*time.Hour))))
	require.NoError(t, s.Close())

	// A second handle, as the -history flag uses, sees the same data
	s, err = OpenHistory(path)
	require.NoError(t, err)
	defer s.Close()

	all, err := s.Recent(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "three", all[0].ID)
	assert.Equal(t, "two", all[1].ID)
	assert.Equal(t, "one", all[2].ID)

	assert.Equal(t, domain.OutcomeTransferFailed, all[1].Outcome)
	assert.Equal(t, 90*time.Second, all[2].Duration())
	assert.True(t, all[2].StartedAt.Equal(base))

	latest, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "three", latest[0].ID)
}

func TestHistoryStore_MemoryOnly(t *testing.T) {
	s, err := OpenHistory("")
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(cycle("a", domain.OutcomeSynced, base)))
	require.NoError(t, s.Record(cycle("b", domain.OutcomeSynced, base)))

	out, err := s.Recent(1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
	assert.NoError(t, s.Close())
}

func TestHistoryStore_EmptyDB(t *testing.T) {
	s, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer s.Close()

	out, err := s.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHistoryStore_ConcurrentHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	writer, err := OpenHistory(path)
	require.NoError(t, err)
	reader, err := OpenHistory(path)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, writer.Record(cycle("x", domain.OutcomeSynced, base)))

	out, err := reader.Recent(1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0].ID)
}
