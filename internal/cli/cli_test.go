package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, cmd *cobra.Command, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	code := Execute(context.Background(), cmd)
	return code, stdout.String(), stderr.String()
}

func writeData(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_DSN", "")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "wxdata", cmd.Use)

	for _, name := range []string{"ingest", "aggregate", "migrate", "serve"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, flag := range []string{"db", "driver", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestIngestCommandFlags(t *testing.T) {
	cmd := NewIngestCommand()
	for _, flag := range []string{"data-dir", "workers", "aggregate", "file-timeout", "job-timeout", "station-strategy", "migrate"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFatal, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitPartial, GetExitCode(NewExitError(ExitPartial, "partial")))

	wrapped := WrapExitError(ExitFatal, "ingestion failed", context.DeadlineExceeded)
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.Equal(t, "ingestion failed: context deadline exceeded", wrapped.Error())
}

func TestJobs_EndToEnd(t *testing.T) {
	quietEnv(t)
	dbPath := filepath.Join(t.TempDir(), "wx.db")
	dataDir := t.TempDir()
	writeData(t, dataDir, "USC00250001.txt", "20230101\t100\t50\t10\n20230102\t-9999\t40\t20\n")

	code, out, stderr := run(t, NewMigrateCommand(), "--db", dbPath)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, "schema applied (sqlite3)")

	code, out, stderr = run(t, NewIngestCommand(), "--db", dbPath, "--data-dir", dataDir, "--aggregate")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, "ingested=2 duplicates=0 skipped=0")
	assert.Contains(t, out, "statistics rows written: 1")

	code, out, stderr = run(t, NewIngestCommand(), "--db", dbPath, "--data-dir", dataDir)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, "ingested=0 duplicates=2")

	code, out, stderr = run(t, NewAggregateCommand(), "--db", dbPath)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, "statistics rows written: 1")
}

func TestIngest_RejectedLinesExitPartial(t *testing.T) {
	quietEnv(t)
	dbPath := filepath.Join(t.TempDir(), "wx.db")
	dataDir := t.TempDir()
	writeData(t, dataDir, "USC00110072.txt", "20230101\t100\t50\t10\ngarbage\n")

	code, out, _ := run(t, NewRootCommand(), "ingest", "--migrate", "--db", dbPath, "--data-dir", dataDir)
	assert.Equal(t, ExitPartial, code)
	assert.Contains(t, out, "ingested=1 duplicates=0 skipped=1")
}

func TestIngest_FatalErrors(t *testing.T) {
	quietEnv(t)

	t.Run("missing data directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "wx.db")
		code, _, stderr := run(t, NewIngestCommand(), "--migrate", "--db", dbPath, "--data-dir", filepath.Join(t.TempDir(), "nope"))
		assert.Equal(t, ExitFatal, code)
		assert.Contains(t, stderr, "ingestion failed")
	})

	t.Run("schema not applied", func(t *testing.T) {
		dataDir := t.TempDir()
		writeData(t, dataDir, "USC00110072.txt", "20230101\t100\t50\t10\n")
		code, _, _ := run(t, NewIngestCommand(), "--db", filepath.Join(t.TempDir(), "wx.db"), "--data-dir", dataDir)
		assert.Equal(t, ExitFatal, code)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		code, _, stderr := run(t, NewIngestCommand(), "--driver", "mysql", "--data-dir", t.TempDir())
		assert.Equal(t, ExitFatal, code)
		assert.Contains(t, stderr, "invalid configuration")
	})
}
