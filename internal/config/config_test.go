package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plantest/internal/capability"
	"github.com/roach88/plantest/internal/parallelism"
	"github.com/roach88/plantest/internal/store"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, 5*time.Minute, cfg.SuiteTimeout.Duration)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load("testdata/plantest.yaml")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "specs"), cfg.SpecDir)
	assert.Equal(t, filepath.Join("testdata", "suites.cue"), cfg.Manifest)
	assert.Equal(t, "functional", cfg.Database)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.SuiteTimeout.Duration)
	assert.Equal(t, []string{"impala-plan", "--json"}, cfg.Planner.Command)
	assert.Equal(t, []string{"JAVA_HOME=/usr/lib/jvm/default"}, cfg.Planner.Env)
	assert.Equal(t, "/var/lib/plantest/history.db", cfg.History)
	require.Len(t, cfg.Catalog, 2)
	assert.Len(t, cfg.Catalog[0].Tables, 2)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_TOML(t *testing.T) {
	cfg, err := Load("testdata/plantest.toml")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "specs"), cfg.SpecDir)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.SuiteTimeout.Duration)
	assert.Equal(t, ":memory:", cfg.History)
	assert.Equal(t, "default", cfg.Database, "unset keys keep their defaults")
	assert.Equal(t, []string{"impala-plan"}, cfg.Planner.Command)
	require.Len(t, cfg.Catalog, 1)
	assert.Equal(t, Table{Name: "lineitem", Format: "text"}, cfg.Catalog[0].Tables[0])
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "c.yaml", "workerz: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workerz")

	_, err = Load(writeConfig(t, "c.toml", "workerz = 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workerz")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unsupported extension", "c.json", "{}", "unsupported config format"},
		{"zero workers", "c.yaml", "workers: 0\n", "workers must be at least 1"},
		{"bad duration", "c.yaml", "suite_timeout: soon\n", "invalid duration"},
		{"bad log level", "c.yaml", "log_level: loud\n", "log_level"},
		{"bad table format", "c.yaml", "catalog:\n  - name: db\n    tables: [{name: t, format: orc}]\n", "unknown table format"},
		{"unnamed database", "c.yaml", "catalog:\n  - comment: x\n", "name is required"},
		{"duplicate database", "c.toml", "[[catalog]]\nname = \"a\"\n[[catalog]]\nname = \"a\"\n", "duplicate database"},
		{"malformed toml", "c.toml", "workers = \n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestProbe_ConfigOverridesEnvironment(t *testing.T) {
	t.Setenv("KUDU_IS_SUPPORTED", "true")
	t.Setenv("S3_IS_SUPPORTED", "true")

	cfg, err := Load("testdata/plantest.yaml")
	require.NoError(t, err)
	probe := cfg.Probe()

	assert.False(t, probe.IsSupported(capability.Kudu))
	assert.True(t, probe.IsSupported(capability.HBase))
	assert.True(t, probe.IsSupported(capability.S3))
}

func TestSeedCatalog(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	cfg, err := Load("testdata/plantest.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.SeedCatalog(ctx, st))

	tables, err := st.Tables(ctx, "functional_parquet")
	require.NoError(t, err)
	assert.Equal(t, []string{"alltypes", "alltypesagg"}, tables)

	format, err := st.TableFormat(ctx, "functional", "alltypes")
	require.NoError(t, err)
	assert.Equal(t, parallelism.FormatText, format)

	// Seeding twice is harmless.
	require.NoError(t, cfg.SeedCatalog(ctx, st))
}
