package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stiffinWanjohi/relayproxy/internal/config"
	"github.com/stiffinWanjohi/relayproxy/internal/observability"
)

type sink struct {
	mu     sync.Mutex
	bodies []string
	server *httptest.Server
}

func newSink(t *testing.T) *sink {
	t.Helper()
	s := &sink{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, string(body))
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *sink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

func testConfig(destination string) *config.Config {
	cfg := config.Default()
	cfg.Relay.DestinationURL = destination
	cfg.Relay.RetryDelay = 10 * time.Millisecond
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Admin.Addr = "127.0.0.1:0"
	cfg.Observability.MetricsProvider = "noop"
	cfg.Observability.TracingProvider = "noop"
	return cfg
}

func initServices(t *testing.T, cfg *config.Config) *Services {
	t.Helper()
	svc, err := Init(context.Background(), cfg, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func TestInit_NoopProviders(t *testing.T) {
	svc, err := Init(context.Background(), testConfig("http://127.0.0.1:1/"), "test")
	require.NoError(t, err)

	assert.Nil(t, svc.Redis)
	assert.Nil(t, svc.MetricsHandler)
	assert.NotNil(t, svc.Metrics)
	assert.NotNil(t, svc.Tracer)
	assert.Equal(t, "test", svc.Version)
	assert.NoError(t, svc.Close(context.Background()))
}

func TestInit_PrometheusExposesHandler(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/")
	cfg.Observability.MetricsProvider = "prometheus"

	svc := initServices(t, cfg)
	require.NotNil(t, svc.MetricsHandler)

	svc.Metrics.SubmissionAccepted(context.Background(), 3)

	rec := httptest.NewRecorder()
	svc.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "submissions_accepted_total")
}

func TestInit_UnknownProvider(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/")
	cfg.Observability.MetricsProvider = "statsd"

	_, err := Init(context.Background(), cfg, "test")
	assert.ErrorIs(t, err, observability.ErrUnknownProvider)
}

func TestInit_ConnectsRedisWhenRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig("http://127.0.0.1:1/")
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.IngestRateLimit = 5

	svc := initServices(t, cfg)
	assert.NotNil(t, svc.Redis)
}

func TestConnectRedis_BareAddress(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig("http://127.0.0.1:1/")
	cfg.Redis.URL = mr.Addr()

	client, err := ConnectRedis(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()
}

func TestConnectRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig("http://127.0.0.1:1/")
	cfg.Redis.URL = "redis://" + addr

	_, err := ConnectRedis(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewRelay_InvalidRequeuePolicy(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/")
	svc := initServices(t, cfg)
	cfg.Relay.RequeuePolicy = "sideways"

	_, err := NewRelay(svc)
	assert.Error(t, err)
}

func TestRelay_ListenWithoutAdmin(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/")
	cfg.Admin.Addr = ""
	relay, err := NewRelay(initServices(t, cfg))
	require.NoError(t, err)

	ingestLn, adminLn, err := relay.Listen()
	require.NoError(t, err)
	defer ingestLn.Close()

	assert.Nil(t, adminLn)
	assert.True(t, strings.HasPrefix(ingestLn.Addr().String(), "127.0.0.1:"))
}

func TestRun_ListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig("http://127.0.0.1:1/")
	cfg.Server.Addr = busy.Addr().String()

	err = Run(context.Background(), initServices(t, cfg))
	assert.Error(t, err)
}

func TestRelay_ServeForwardsAndStops(t *testing.T) {
	dst := newSink(t)
	cfg := testConfig(dst.server.URL)
	relay, err := NewRelay(initServices(t, cfg))
	require.NoError(t, err)

	ingestLn, adminLn, err := relay.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Serve(ctx, ingestLn, adminLn) }()

	ingestURL := "http://" + ingestLn.Addr().String() + "/"
	for _, body := range []string{"one", "two", "three"} {
		resp, err := http.Post(ingestURL, "text/plain", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	require.Eventually(t, func() bool {
		return len(dst.received()) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, dst.received())

	resp, err := http.Get("http://" + adminLn.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.False(t, relay.Forwarder.Running())
}

func TestRelay_ServeRetriesUntilDestinationRecovers(t *testing.T) {
	var (
		mu       sync.Mutex
		failures = 2
		got      []string
	)
	dst := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		got = append(got, string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer dst.Close()

	cfg := testConfig(dst.URL)
	cfg.Admin.Addr = ""
	relay, err := NewRelay(initServices(t, cfg))
	require.NoError(t, err)

	ingestLn, adminLn, err := relay.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Serve(ctx, ingestLn, adminLn) }()

	resp, err := http.Post("http://"+ingestLn.Addr().String()+"/", "application/json", strings.NewReader(`{"k":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return relay.Forwarder.Stats().Delivered == 1
	}, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{`{"k":1}`}, got)
	mu.Unlock()

	stats := relay.Forwarder.Stats()
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, int64(2), stats.FailedAttempts)

	cancel()
	require.NoError(t, <-done)
}
