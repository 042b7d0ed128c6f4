package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/sectun/internal/testutil/testlog"
)

func TestMetricsInstancesAreIndependent(t *testing.T) {
	testlog.Start(t)
	a := NewMetrics(false)
	b := NewMetrics(false)

	a.SessionOpened()
	a.SessionOpened()
	a.SessionClosed(ReasonIdle)

	require.Equal(t, 1.0, testutil.ToFloat64(a.activeSessions))
	require.Equal(t, 2.0, testutil.ToFloat64(a.sessionsOpened))
	require.Equal(t, 1.0, testutil.ToFloat64(a.sessionsClosed.WithLabelValues(ReasonIdle)))
	require.Equal(t, 0.0, testutil.ToFloat64(b.sessionsOpened))
}

func TestMetricsRecordersAreNilSafe(t *testing.T) {
	testlog.Start(t)
	var m *Metrics
	m.SessionOpened()
	m.SessionClosed(ReasonStopped)
	m.SessionRejected(ReasonDuplicate)
	m.HandshakeFailed()
	m.AcceptError()
	m.KeepAlive(SideServer, DirectionIn)
	m.Payload(SideClient, DirectionOut, 10)
	m.CipherFailure(SideServer)
	m.ObserveHandler(time.Millisecond)
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	testlog.Start(t)
	m := NewMetrics(false)
	m.Payload(SideServer, DirectionIn, 42)
	m.CipherFailure(SideServer)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, `sectun_payload_bytes_total{direction="in",side="server"} 42`), text)
	require.True(t, strings.Contains(text, `sectun_cipher_failures_total{side="server"} 1`), text)
}
