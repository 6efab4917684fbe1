package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		db         HealthChecker
		configured bool
		wantStatus int
		want       healthResponse
	}{
		{
			name:       "履歴無効・モックモード",
			wantStatus: http.StatusOK,
			want:       healthResponse{Status: "ok", Directory: "mock", History: "disabled"},
		},
		{
			name:       "DB正常",
			db:         mockPinger{},
			configured: true,
			wantStatus: http.StatusOK,
			want:       healthResponse{Status: "ok", Directory: "configured", History: "ok"},
		},
		{
			name:       "DB到達不能",
			db:         mockPinger{err: errBoom},
			wantStatus: http.StatusServiceUnavailable,
			want:       healthResponse{Status: "unavailable", Directory: "mock", History: "unreachable"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.db, tt.configured)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if diff := cmp.Diff(tt.want, decodeBody[healthResponse](t, w)); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
