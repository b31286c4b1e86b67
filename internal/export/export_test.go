package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/errors"
)

func localSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Export.Enabled = true
	s.Export.Type = "local"
	s.Export.Path = t.TempDir()
	return s
}

func TestDisabledExporterIsANoOp(t *testing.T) {
	e, err := NewExporter(&conf.Settings{})
	require.NoError(t, err)

	assert.False(t, e.Enabled())
	assert.Empty(t, e.Target())
	assert.NoError(t, e.ExportModel(t.Context(), &datastore.ModelRecord{Tag: "T"}))
	assert.NoError(t, e.ExportRun(t.Context(), &datastore.RunRecord{RunID: "r"}))
}

func TestNewExporterRejectsUnknownType(t *testing.T) {
	s := localSettings(t)
	s.Export.Type = "carrier-pigeon"

	_, err := NewExporter(s)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfiguration))
}

func TestExportModelWritesArtifact(t *testing.T) {
	s := localSettings(t)
	e, err := NewExporter(s)
	require.NoError(t, err)
	require.True(t, e.Enabled())
	assert.Equal(t, "local", e.Target())

	rec := &datastore.ModelRecord{
		Tag:      "SUPPLY_AIR_TEMP",
		Kind:     "seasonal-regression",
		Version:  3,
		Artifact: []byte(`{"period":144}`),
	}
	require.NoError(t, e.ExportModel(t.Context(), rec))

	data, err := os.ReadFile(filepath.Join(s.Export.Path, "SUPPLY_AIR_TEMP_v3_seasonal-regression.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"period":144}`, string(data))
}

func TestExportRunWritesReadableSummary(t *testing.T) {
	s := localSettings(t)
	e, err := NewExporter(s)
	require.NoError(t, err)

	started := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)
	require.NoError(t, e.ExportRun(t.Context(), &datastore.RunRecord{
		RunID:      "2f0a1b",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Attempted:  7,
		Promoted:   2,
	}))

	data, err := os.ReadFile(filepath.Join(s.Export.Path, "run_2f0a1b.json"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2f0a1b", decoded["RunID"])
	assert.EqualValues(t, 7, decoded["Attempted"])
}

func TestLocalStoreLeavesNoTempFiles(t *testing.T) {
	s := localSettings(t)
	e, err := NewExporter(s)
	require.NoError(t, err)

	require.NoError(t, e.ExportModel(t.Context(), &datastore.ModelRecord{
		Tag: "T", Kind: "seasonal-regression", Version: 1, Artifact: []byte("{}"),
	}))

	entries, err := os.ReadDir(s.Export.Path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ".tmp")
}

func TestLocalStoreRespectsCancelledContext(t *testing.T) {
	target, err := newLocalTarget(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err = target.Store(ctx, "x.json", []byte("{}"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSanitizeNameFlattensUnsafeRunes(t *testing.T) {
	assert.Equal(t, "SUPPLY_AIR_TEMP", sanitizeName("SUPPLY_AIR_TEMP"))
	assert.Equal(t, "a_b_c.json", sanitizeName("a/b c.json"))
	assert.Equal(t, ".._etc_passwd", sanitizeName("../etc/passwd"),
		"separators are flattened so nothing escapes the export directory")
}

func TestFTPTargetRequiresHost(t *testing.T) {
	s := localSettings(t)
	s.Export.Type = "ftp"

	_, err := NewExporter(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}

func TestSFTPTargetRequiresCredentials(t *testing.T) {
	s := localSettings(t)
	s.Export.Type = "sftp"
	s.Export.SFTP.Host = "files.example.com"

	_, err := NewExporter(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key file or password")
}

func TestFTPDefaultsPort(t *testing.T) {
	s := localSettings(t)
	s.Export.FTP.Host = "ftp.example.com"

	target, err := newFTPTarget(&s.Export)
	require.NoError(t, err)
	assert.Equal(t, 21, target.port)
}

func TestSFTPDefaultsPort(t *testing.T) {
	s := localSettings(t)
	s.Export.SFTP.Host = "files.example.com"
	s.Export.SFTP.Password = "secret"

	target, err := newSFTPTarget(&s.Export)
	require.NoError(t, err)
	assert.Equal(t, 22, target.port)
}
