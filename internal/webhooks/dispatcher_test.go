package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterroute/internal/config"
)

func newTestDispatcher(t *testing.T, maxAttempts int) *Dispatcher {
	t.Helper()
	log, _ := test.NewNullLogger()
	d := NewDispatcher(config.Webhook{Secret: "secret", MaxAttempts: maxAttempts, Timeout: time.Second}, log)
	d.Backoff = func(int) time.Duration { return time.Millisecond }
	return d
}

func TestDispatcherSignsAndDelivers(t *testing.T) {
	type got struct {
		sig, typ string
		body     []byte
	}
	ch := make(chan got, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		ch <- got{sig: r.Header.Get(HeaderSignature), typ: r.Header.Get(HeaderEventType), body: b}
		w.WriteHeader(204)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, 3)
	d.Start(context.Background(), 1)
	require.NoError(t, d.Notify("t1", srv.URL, "solve.completed", map[string]any{"solveId": "s1"}))

	select {
	case g := <-ch:
		assert.Equal(t, "solve.completed", g.typ)
		assert.True(t, VerifyHMAC("secret", g.body, g.sig))
		assert.False(t, VerifyHMAC("other", g.body, g.sig))
		var env map[string]any
		require.NoError(t, json.Unmarshal(g.body, &env))
		assert.Equal(t, "t1", env["tenantId"])
		assert.Equal(t, map[string]any{"solveId": "s1"}, env["data"])
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery")
	}
	d.Close()
}

func TestDispatcherRetriesThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(500)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, 3)
	d.Start(context.Background(), 1)
	require.NoError(t, d.Notify("t1", srv.URL, "solve.failed", nil))
	d.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatcherRecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, 5)
	d.Start(context.Background(), 2)
	require.NoError(t, d.Notify("t1", srv.URL, "solve.completed", nil))
	d.Close()
	assert.Equal(t, int32(2), calls.Load())
}

func TestEnqueueAfterClose(t *testing.T) {
	d := newTestDispatcher(t, 1)
	d.Close()
	require.ErrorIs(t, d.Notify("t1", "http://127.0.0.1:1", "solve.completed", nil), ErrClosed)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(-1))
	assert.Equal(t, 4*time.Second, nextBackoff(2))
	assert.Equal(t, 1024*time.Second, nextBackoff(50))
}
