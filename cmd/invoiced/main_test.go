package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/invoiced/internal/config"
	"github.com/fyrsmithlabs/invoiced/internal/telemetry"
)

func TestMainIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	t.Setenv("INVOICED_SERVER_PORT", "8094")
	t.Setenv("INVOICED_SERVER_HOST", "127.0.0.1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, "")
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://127.0.0.1:8094/health")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 50*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metrics, err := http.Get("http://127.0.0.1:8094/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

func TestRunInvalidConfig(t *testing.T) {
	t.Setenv("INVOICED_STORE_DRIVER", "postgres")

	err := run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitLogger(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.NewDefaultConfig())
	require.NoError(t, err)

	t.Run("defaults", func(t *testing.T) {
		logger, err := initLogger(config.Default().Logging, tel)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := initLogger(config.LoggingConfig{Level: "loud"}, tel)
		assert.Error(t, err)
	})

	t.Run("otel ignored when telemetry disabled", func(t *testing.T) {
		logger, err := initLogger(config.LoggingConfig{Level: "debug", Format: "console", OTEL: true}, tel)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Nil(t, tel.LoggerProvider())
	})
}
