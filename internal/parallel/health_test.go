package parallel

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthMonitorAgainstLiveCluster exercises HealthMonitor against a
// real Cluster's HTTP transport, the combination cmd/hpuworker wires at
// startup: CheckOnce must succeed once every peer's /health endpoint is
// actually reachable.
func TestHealthMonitorAgainstLiveCluster(t *testing.T) {
	const size = 3
	clusters, stop := startCluster(t, size)
	defer stop()

	peerAddrs := clusters[0].addrs[1:]
	mon := NewHealthMonitor(peerAddrs, 50*time.Millisecond)
	require.NoError(t, mon.CheckOnce(context.Background()))

	for _, s := range mon.Status() {
		assert.True(t, s.Healthy)
		assert.Equal(t, 0, s.ConsecutiveFails)
	}
}

// TestCheckOnceRequiresMaxFailuresConsecutiveFailures guards against
// reporting a peer unreachable after a single failed probe: only after
// maxFailures consecutive failed checks should CheckOnce return
// ErrPeerUnreachable.
func TestCheckOnceRequiresMaxFailuresConsecutiveFailures(t *testing.T) {
	addr := deadAddr(t)
	mon := NewHealthMonitor([]string{addr}, time.Second)
	require.Equal(t, 3, mon.maxFailures)

	for i := 0; i < mon.maxFailures-1; i++ {
		err := mon.CheckOnce(context.Background())
		require.NoError(t, err, "check %d should not yet report unreachable", i+1)
	}

	err := mon.CheckOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}

// TestRunInvokesOnUnreachableOnceAfterThreshold runs the background
// ticker against a server that starts healthy and then starts failing,
// and checks the callback fires exactly once, only once
// ConsecutiveFails has crossed the threshold -- not on the first failed
// probe.
func TestRunInvokesOnUnreachableOnceAfterThreshold(t *testing.T) {
	var failing int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&failing) != 0 {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mon := NewHealthMonitor([]string{srv.URL}, 20*time.Millisecond)

	var mu sync.Mutex
	calls := 0
	mon.OnUnreachable(func(rank int) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	require.True(t, mon.Status()[0].Healthy)

	atomic.StoreInt32(&failing, 1)
	time.Sleep(200 * time.Millisecond)
	cancel()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.False(t, mon.Status()[0].Healthy)
}

// deadAddr returns a base URL with no listener behind it, so requests
// fail fast with a connection error rather than a timeout.
func deadAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())
	return fmt.Sprintf("http://127.0.0.1:%d", addr.Port)
}
