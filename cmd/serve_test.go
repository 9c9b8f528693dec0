package cmd

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/mri-check/internal/classifier"
	"github.com/example/mri-check/internal/config"
	"github.com/example/mri-check/internal/session"
	"github.com/example/mri-check/internal/usecase"
)

func TestGracefulServerDrainsInFlightRequest(t *testing.T) {
	logger := zap.NewNop()

	requestStarted := make(chan struct{})
	releaseRequest := make(chan struct{})
	defer func() {
		select {
		case <-releaseRequest:
		default:
			close(releaseRequest)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-requestStarted:
		default:
			close(requestStarted)
		}
		<-releaseRequest
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: mux}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		gs := &gracefulServer{server: server, listener: listener, shutdownTimeout: 2 * time.Second, logger: logger}
		done <- gs.run(signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := client.Post("http://"+addr+"/api/upload", "application/octet-stream", strings.NewReader("x"))
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not start in time")
	}

	signalCh <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	close(releaseRequest)

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func TestGracefulServerReturnsServeError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, listener.Close())

	gs := &gracefulServer{server: &http.Server{}, listener: listener, shutdownTimeout: time.Second, logger: zap.NewNop()}
	assert.Error(t, gs.run(make(chan os.Signal)))
}

func TestOpenSessionStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	sessions, closeStore, err := openSessionStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	state := session.New()
	id := "scan.png#abc"
	state.UploadIdentity = &id
	require.NoError(t, sessions.Save(context.Background(), "sess-1", state))

	loaded, err := sessions.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.UploadIdentity)
	assert.Equal(t, id, *loaded.UploadIdentity)
}

func TestOpenSessionStoreRedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	_, _, err := openSessionStore(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestModelBackendHTTPClassifies(t *testing.T) {
	tfServing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"model_version_status":[{"state":"AVAILABLE"}]}`))
		case strings.HasSuffix(r.URL.Path, ":predict"):
			_, _ = w.Write([]byte(`{"predictions":[[0.1,0.7,0.1,0.1]]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer tfServing.Close()

	cfg := testConfig(t)
	cfg.ClassifierAddr = tfServing.URL
	require.NoError(t, os.WriteFile(cfg.ModelPath, []byte("weights"), 0o600))

	backend := newModelBackend(cfg, zap.NewNop())
	defer backend.Close()

	prediction, err := classifier.New(backend.lazy(), zap.NewNop()).Predict(context.Background(), testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "Meningioma Tumor", prediction.Label)
	assert.InDelta(t, 70.0, prediction.Confidence, 0.001)

	var out bytes.Buffer
	printPrediction(&out, prediction)
	assert.Contains(t, out.String(), "Meningioma Tumor")
	assert.Contains(t, out.String(), "70.00%")
}

func TestModelBackendMissingArtifactIsRetried(t *testing.T) {
	tfServing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer tfServing.Close()

	cfg := testConfig(t)
	cfg.ClassifierAddr = tfServing.URL
	cfg.ModelURL = ""
	cfg.ModelFileID = ""

	lazy := newModelBackend(cfg, zap.NewNop()).lazy()

	_, err := lazy.Get(context.Background())
	require.ErrorIs(t, err, session.ErrArtifactUnavailable)
	assert.False(t, lazy.Ready())

	require.NoError(t, os.WriteFile(cfg.ModelPath, []byte("weights"), 0o600))
	_, err = lazy.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, lazy.Ready())
}

func TestNewRouterServesHealthAndSession(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	sessions, closeStore, err := openSessionStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	engine := session.NewEngine(nil, nil)
	router := newRouter(cfg, usecase.NewSessionUseCase(sessions, engine, zap.NewNop()), zap.NewNop())

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"email_status":"idle"`)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Port:                "0",
		ModelPath:           filepath.Join(t.TempDir(), "brain_tumor_classification.keras"),
		ClassifierBackend:   config.BackendHTTP,
		ClassifierModelName: "brain",
		ClassifierTimeout:   2 * time.Second,
		SessionStore:        config.StoreRedis,
		SessionSecret:       "test-secret",
		SessionTTL:          time.Hour,
		MaxUploadMB:         1,
		SMTP:                config.SMTP{Host: "localhost", Port: 587},
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
