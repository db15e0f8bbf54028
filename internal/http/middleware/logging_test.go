package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(Logger())
	r.Use(Recovery())
	return r
}

func TestRequestIDGenerated(t *testing.T) {
	r := newTestRouter()
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("no request id generated")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	r := newTestRouter()
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "rid-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "rid-123" {
		t.Fatalf("request id = %q, want the caller's", got)
	}
}

func TestRecoveryReturnsJSON500(t *testing.T) {
	r := newTestRouter()
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "rid-500")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "internal server error") || !strings.Contains(body, "rid-500") {
		t.Fatalf("body = %s", body)
	}
}

func TestMetricsCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/counted", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testCounterValue(t, "/counted")
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/counted", nil))
	}
	after := testCounterValue(t, "/counted")

	if after-before != 3 {
		t.Fatalf("counter delta = %v, want 3", after-before)
	}
}

// testCounterValue reads the current value of http_requests_total for a
// GET 200 on the given route.
func testCounterValue(t *testing.T, path string) float64 {
	t.Helper()
	var m dto.Metric
	if err := httpReqs.WithLabelValues(http.MethodGet, path, "200").Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
