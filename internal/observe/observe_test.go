package observe

import (
	"context"
	"net/http"
	"testing"

	"github.com/storefront/storefront-sync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func TestConfigure_Disabled(t *testing.T) {
	shutdown, err := Configure(context.Background(), config.ObserveConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}

func TestConfigure_UnsupportedType(t *testing.T) {
	_, err := Configure(context.Background(), config.ObserveConfig{
		Enabled:     true,
		Type:        "carrier-pigeon",
		SDKLogLevel: "info",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported telemetry type")
}

func TestConfigure_Stdout(t *testing.T) {
	shutdown, err := Configure(context.Background(), config.ObserveConfig{
		Enabled:                   true,
		MetricsEnabled:            true,
		Type:                      "stdout",
		ServiceName:               "test",
		SDKLogLevel:               "not-a-level",
		TraceBatchTimeoutSeconds:  1,
		MetricReadIntervalSeconds: 60,
	})
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
}

func TestHTTPTransport(t *testing.T) {
	base := http.DefaultTransport

	t.Run("disabled returns wrapped transport", func(t *testing.T) {
		rt := HTTPTransport(base, config.ObserveConfig{Enabled: false, HTTPTransportEnabled: true})
		assert.Same(t, base, rt)
	})

	t.Run("transport instrumentation disabled", func(t *testing.T) {
		rt := HTTPTransport(base, config.ObserveConfig{Enabled: true, HTTPTransportEnabled: false})
		assert.Same(t, base, rt)
	})

	t.Run("enabled wraps transport", func(t *testing.T) {
		rt := HTTPTransport(base, config.ObserveConfig{
			Enabled:                    true,
			HTTPTransportEnabled:       true,
			HTTPConnectionTraceEnabled: true,
		})
		assert.IsType(t, &otelhttp.Transport{}, rt)
	})
}
