package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorServesMigrationCounts(t *testing.T) {
	collector := NewCollector()
	collector.RecordMigration("teacher", "student")
	collector.RecordMigration("teacher", "student")
	collector.RecordMigrationFailure("not_found")
	collector.ObserveMigrationDuration(150 * time.Millisecond)
	collector.RecordLogin("ok")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recorder := httptest.NewRecorder()
	collector.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	body := recorder.Body.String()

	for _, want := range []string{
		`aqylal_role_migrations_total{from="teacher",to="student"} 2`,
		`aqylal_role_migration_failures_total{reason="not_found"} 1`,
		`aqylal_logins_total{outcome="ok"} 1`,
		"aqylal_role_migration_duration_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
