package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	port, err := strconv.Atoi(srv.URL[len("http://127.0.0.1:"):])
	require.NoError(t, err)
	return port
}

func TestProbeOkOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New()
	res := p.Probe(context.Background(), testPort(t, srv))
	require.True(t, res.Ok)
}

func TestProbeNotOkOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New()
	res := p.Probe(context.Background(), testPort(t, srv))
	require.False(t, res.Ok)
}

func TestProbeNotOkOnConnectionRefused(t *testing.T) {
	p := New()
	res := p.Probe(context.Background(), 1) // nothing listens on port 1
	require.False(t, res.Ok)
}

func TestRunInvokesCallbackOnEachCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	port := testPort(t, srv)

	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result, 4)
	cfgFunc := func() (int, time.Duration) { return port, 10 * time.Millisecond }
	go p.Run(ctx, cfgFunc, func(r Result) {
		select {
		case results <- r:
		default:
		}
	})

	select {
	case r := <-results:
		require.True(t, r.Ok)
	case <-time.After(time.Second):
		t.Fatal("no probe result received")
	}
	cancel()
}

func TestRunPicksUpPortChangeNextCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	port := testPort(t, srv)

	var currentPort int32 // wrong port first, correct port after first cycle
	currentPort = 1

	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan Result, 8)
	cfgFunc := func() (int, time.Duration) {
		usedPort := int(currentPort)
		currentPort = int32(port)
		return usedPort, 5 * time.Millisecond
	}
	go p.Run(ctx, cfgFunc, func(r Result) { results <- r })

	first := <-results
	require.False(t, first.Ok)

	second := <-results
	require.True(t, second.Ok)
}
