package device

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/INLOpen/zonefs/config"
)

func TestMetricsServer_MetricsRouteRegisteredWhenEnabled(t *testing.T) {
	s := NewMetricsServer(config.DebugConfig{MetricsEnabled: true}, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

func TestMetricsServer_MetricsRouteAbsentWhenDisabled(t *testing.T) {
	s := NewMetricsServer(config.DebugConfig{MetricsEnabled: false}, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestMetricsServer_PprofAlwaysRegistered(t *testing.T) {
	s := NewMetricsServer(config.DebugConfig{}, nil)

	req := httptest.NewRequest("GET", "/debug/pprof/", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

func TestMetricsServer_StartStopIsClean(t *testing.T) {
	s := NewMetricsServer(config.DebugConfig{ListenAddress: "127.0.0.1:0"}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	time.Sleep(20 * time.Millisecond)

	s.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestMetricsServer_StopBeforeStartIsNoop(t *testing.T) {
	s := NewMetricsServer(config.DebugConfig{}, nil)
	s.Stop()
}
