package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/config"
	"github.com/chris40461/scam-or-safe/internal/retry"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	c, err := NewClient(config.ImageConfig{
		ServiceURL:    srv.URL,
		SavePath:      dir,
		PublicBaseURL: "/api/v1/images/",
		Timeout:       5 * time.Second,
		Ratio:         "16:9",
		RetryCount:    2,
	}, zap.NewNop())
	require.NoError(t, err)
	return c.WithRetryPolicy(retry.New("image-test", 2, 0, nil)), dir
}

func TestGenerate_SavesFileAndReturnsURL(t *testing.T) {
	var got apiRequest
	c, dir := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	})

	url, err := c.Generate(context.Background(), Request{Prompt: "Korean webtoon style illustration: a phone", NodeID: "node_001", ScenarioID: "scenario_abcd1234"})
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/images/scenario_abcd1234/node_001.png", url)
	assert.Equal(t, "16:9", got.Ratio)
	assert.Equal(t, SeedFor("scenario_abcd1234"), got.Seed)

	data, err := os.ReadFile(filepath.Join(dir, "scenario_abcd1234", "node_001.png"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(pngBytes)
	})

	_, err := c.Generate(context.Background(), Request{Prompt: "p", NodeID: "node_002", ScenarioID: "scenario_1"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGenerate_SafetyBlockIsNotRetried(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status 451": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnavailableForLegalReasons)
		},
		"body mentions SAFETY": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"SAFETY filter triggered"}`, http.StatusBadRequest)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				handler(w, r)
			})

			_, err := c.Generate(context.Background(), Request{Prompt: "p", NodeID: "node_003", ScenarioID: "scenario_1"})
			assert.ErrorIs(t, err, ErrSafetyBlocked)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestGenerate_ExhaustedRetries(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Generate(context.Background(), Request{Prompt: "p", NodeID: "node_004", ScenarioID: "scenario_1"})
	assert.ErrorIs(t, err, ErrImageGenerationFailed)
}

func TestGenerate_RejectsPathTraversal(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("service must not be called")
	})

	_, err := c.Generate(context.Background(), Request{Prompt: "p", NodeID: "../../etc/passwd", ScenarioID: "scenario_1"})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestQuotaDelay(t *testing.T) {
	assert.Equal(t, 4*time.Second, quotaDelay(&statusError{code: http.StatusTooManyRequests}, 2*time.Second))
	assert.Equal(t, 2*time.Second, quotaDelay(&statusError{code: http.StatusBadGateway}, 2*time.Second))
	assert.Equal(t, 2*time.Second, quotaDelay(errors.New("x"), 2*time.Second))
}

func TestSeedFor(t *testing.T) {
	a := SeedFor("scenario_abcd1234")
	assert.Equal(t, a, SeedFor("scenario_abcd1234"))
	assert.GreaterOrEqual(t, a, int64(1))
	assert.Less(t, a, int64(2147483647))
	assert.NotEqual(t, a, SeedFor("scenario_ffff0000"))
}
