package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	ConnectedUsers.Set(2)
	EventsTotal.WithLabelValues("join_session").Inc()
	ErrorsTotal.WithLabelValues("forbidden").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"bankchat_connected_users 2",
		`bankchat_events_total{event="join_session"}`,
		`bankchat_errors_total{kind="forbidden"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected metrics output to contain %q", want)
		}
	}
}
