package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AegisDefend/aegis-installer/internal/selector"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.Config{Level: "error", Format: "text", FilePath: os.DevNull}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestFetch_DownloadsToStagingPath(t *testing.T) {
	body := []byte("installer payload")
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New("testkey", "ApiToken", dir, time.Minute, 0)

	artifact, err := f.Fetch(context.Background(), selector.Result{
		FileName: "agent_x86_64.deb",
		Link:     srv.URL + "/agent_x86_64.deb",
	})
	require.NoError(t, err)

	assert.Equal(t, "ApiToken testkey", gotAuth)
	assert.Equal(t, filepath.Join(dir, "agent_x86_64.deb"), artifact.Path)
	assert.Equal(t, int64(len(body)), artifact.Size)

	got, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	require.NoError(t, artifact.Remove())
	_, err = os.Stat(artifact.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestFetch_OverwritesExistingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("new payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "agent.rpm")
	require.NoError(t, os.WriteFile(dest, []byte("stale payload from a previous run"), 0644))

	f := New("testkey", "ApiToken", dir, time.Minute, 0)
	artifact, err := f.Fetch(context.Background(), selector.Result{FileName: "agent.rpm", Link: srv.URL})
	require.NoError(t, err)

	got, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "new payload", string(got))
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New("testkey", "ApiToken", t.TempDir(), time.Minute, 3)
	_, err := f.Fetch(context.Background(), selector.Result{FileName: "agent.deb", Link: srv.URL})

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := New("testkey", "ApiToken", t.TempDir(), time.Minute, 5)
	artifact, err := f.Fetch(context.Background(), selector.Result{FileName: "agent.deb", Link: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int64(len("payload")), artifact.Size)
}

func TestFetch_RetriesAreBounded(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New("testkey", "ApiToken", t.TempDir(), time.Minute, 2)
	_, err := f.Fetch(context.Background(), selector.Result{FileName: "agent.deb", Link: srv.URL})

	require.Error(t, err)
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetch_IncompleteTransferFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New("testkey", "ApiToken", dir, time.Minute, 0)
	_, err := f.Fetch(context.Background(), selector.Result{FileName: "agent.deb", Link: srv.URL})

	require.Error(t, err)
	// Neither the destination nor a partial file is left behind.
	_, statErr := os.Stat(filepath.Join(dir, "agent.deb"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "agent.deb.partial"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSanitizeFileName(t *testing.T) {
	name, err := sanitizeFileName("agent_x86_64.deb")
	require.NoError(t, err)
	assert.Equal(t, "agent_x86_64.deb", name)

	name, err = sanitizeFileName("../../tmp/agent.deb")
	require.NoError(t, err)
	assert.Equal(t, "agent.deb", name)

	_, err = sanitizeFileName("")
	assert.Error(t, err)

	_, err = sanitizeFileName("..")
	assert.Error(t, err)
}
