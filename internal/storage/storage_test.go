package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hakim/autopent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListRuns(t *testing.T) {
	s := newTestStore(t)

	older := models.NewRunMeta("example.com")
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := models.NewRunMeta("example.com")
	other := models.NewRunMeta("other.org")

	for _, m := range []*models.RunMeta{older, newer, other} {
		require.NoError(t, s.SaveRun(m))
	}
	// saving again must not duplicate the index entry
	require.NoError(t, s.SaveRun(newer))

	runs, err := s.ListRuns("example.com")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	latest, err := s.GetLatestRun("example.com")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	none, err := s.GetLatestRun("nobody.net")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGetRunMissing(t *testing.T) {
	s := newTestStore(t)

	meta, err := s.GetRun("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestUpdateRunStatus(t *testing.T) {
	s := newTestStore(t)
	meta := models.NewRunMeta("example.com")
	require.NoError(t, s.SaveRun(meta))

	require.NoError(t, s.UpdateRunStatus(meta.ID, models.StatusRunning))
	got, err := s.GetRun(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, s.UpdateRunStatus(meta.ID, models.StatusAborted))
	got, err = s.GetRun(meta.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAborted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	assert.NoError(t, s.UpdateRunStatus("missing", models.StatusComplete))
}

func TestSaveResult(t *testing.T) {
	s := newTestStore(t)
	result := &models.AssessmentResult{
		RunID:   "run-1",
		State:   models.StateDone,
		Matches: []models.VulnerabilityMatch{{Signature: "SMBv1", Exploit: "exploit/windows/smb/ms17_010_eternalblue"}},
		Exploit: &models.ExploitOutcome{Attempted: true, Message: "exploitation framework not configured"},
	}

	require.NoError(t, s.SaveResult(result))
	got, err := s.GetResult("run-1")
	require.NoError(t, err)
	assert.Equal(t, result.Matches, got.Matches)
	assert.Equal(t, models.StateDone, got.State)

	missing, err := s.GetResult("run-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	dir, err := CreateRunDir(base, "https://Shop.example.com:8443", started)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "https_Shop.example.com_8443_20260304_050607"), dir)
	assert.DirExists(t, ReportsDir(dir))
	assert.DirExists(t, RawDir(dir))

	require.NoError(t, WriteRawJSON(dir, "matches.json", []string{"a"}))
	data, err := os.ReadFile(filepath.Join(RawDir(dir), "matches.json"))
	require.NoError(t, err)
	var got []string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []string{"a"}, got)
}
