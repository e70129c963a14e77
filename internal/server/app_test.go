package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobcore/internal/config"
	"github.com/JakeFAU/jobcore/internal/jobs"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{
		Server:    config.ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Scheduler: config.SchedulerConfig{Workers: 1, QueueDepth: 4},
		UI:        config.UIConfig{DefaultMessage: "Show result"},
		Progress: config.ProgressConfig{
			BufferSize:     16,
			MaxBatchEvents: 4,
			MaxBatchWait:   10 * time.Millisecond,
			SinkTimeout:    time.Second,
			StoreSink:      true,
		},
		Logging:   config.LoggingConfig{Level: "error"},
		Store:     config.StoreConfig{Backend: "sqlite"},
		SQLite:    config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "runs.db")},
		Publisher: config.PublisherConfig{Backend: "memory", Topic: "done"},
	}
	cfg.Resolve.BaseDir = t.TempDir()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuild_ServesOperations(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/operations", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	for _, name := range []string{"math.sum", "math.div", "text.lines", "demo.count"} {
		require.Contains(t, rec.Body.String(), name)
	}
}

func TestBuild_AppliesOperationOverrides(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.UI.Operations = map[string]jobs.Metadata{"math.sum": {SilentAfter: time.Minute, Message: "Open sum"}}
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/operations", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Open sum")
}

func TestBuild_RejectsBadLogLevel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Logging.Level = "loud"
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "logger init failed"))
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.Port = 0
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
