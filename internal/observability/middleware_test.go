package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/sectun/internal/testutil/testlog"
)

func TestRequestMiddlewareRecordsRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	m := NewMetrics(false)

	r := gin.New()
	r.Use(RequestLogger(logger), m.RequestMetrics())
	r.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/sessions/a", "/sessions/b", "/nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/sessions/:id", "404")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))
	require.Contains(t, buf.String(), `"path":"/sessions/:id"`)
	require.Contains(t, buf.String(), `"level":"warn"`)

	var nilMetrics *Metrics
	nilMetrics.RecordHTTPRequest("GET", "/", 200, 0)
}
