package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/certwatch/internal/notifier"
	"github.com/mr-karan/certwatch/pkg/logger"
	"github.com/mr-karan/certwatch/pkg/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body = "[sqlite]\npath = \"" + filepath.ToSlash(filepath.Join(dir, "certwatch.db")) + "\"\n" + body
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestInitializeWiresPipeline(t *testing.T) {
	path := writeConfig(t, "[notifications]\nenabled = false\n")

	a, err := New(Options{ConfigPath: path, Version: "test", Logger: logger.Discard()})
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	assert.Nil(t, a.Scheduler)
	require.NotNil(t, a.Dispatcher)

	// Empty inventory: the run succeeds with nothing to do.
	report, err := a.Dispatcher.Run(context.Background(), models.TriggeredByAdmin)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
	assert.False(t, report.Degraded())
}

func TestInitializeWithLeaseStartsScheduler(t *testing.T) {
	path := writeConfig(t, "[notifications]\nenabled = true\ninterval = \"1h\"\n[notifications.lease]\nenabled = true\n")

	a, err := New(Options{ConfigPath: path, Logger: logger.Discard()})
	require.NoError(t, err)

	require.NoError(t, a.Initialize(context.Background()))
	require.NotNil(t, a.Scheduler)

	opts := a.schedulerOptions()
	assert.NotNil(t, opts.Lease)
	assert.Equal(t, notifier.DefaultLeaseName, opts.LeaseName)
	assert.NotEmpty(t, opts.InstanceID)
	assert.Equal(t, 36*time.Hour, opts.LeaseTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "[notifications]\nthresholds = []\n")

	_, err := New(Options{ConfigPath: path, Logger: logger.Discard()})
	assert.Error(t, err)
}
