package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid pid", ErrInvalidPID, http.StatusBadRequest},
		{"wrapped invalid pid", fmt.Errorf("resolve: %w", ErrInvalidPID), http.StatusBadRequest},
		{"source unavailable", ErrSourceUnavailable, http.StatusServiceUnavailable},
		{"store unavailable", ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
		{"app error wins", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidPID, http.StatusBadRequest, "pid %d", -3)
	if !Is(err, ErrInvalidPID) {
		t.Fatalf("expected AppError to unwrap to ErrInvalidPID")
	}
	if got, want := err.Error(), "invalid pid: pid -3"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
