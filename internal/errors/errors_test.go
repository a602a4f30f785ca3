package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"missing key matches sentinel", MissingKey("a"), ErrMissingKey, true},
		{"wrapped missing key matches", fmt.Errorf("delete: %w", MissingKey("a")), ErrMissingKey, true},
		{"not found is distinct from missing", KeyNotFound("a"), ErrMissingKey, false},
		{"destination unavailable", DestinationUnavailable("42", "no such channel"), ErrDestinationUnavailable, true},
		{"storage wraps cause", Storage("write file", stderrors.New("disk full")), ErrStorage, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stderrors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorStatusCode(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{MissingKey("a"), http.StatusNotFound},
		{KeyNotFound("a"), http.StatusNotFound},
		{NotAnObject([]string{"a", "b"}), http.StatusConflict},
		{BadRequest("bad"), http.StatusBadRequest},
		{RateLimited("backup"), http.StatusTooManyRequests},
		{DestinationUnavailable("1", "gone"), http.StatusBadGateway},
		{Internal("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code()), func(t *testing.T) {
			if got := tt.err.StatusCode(); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := Storage("write data.json", cause)
	if got, want := err.Error(), "failed to write data.json: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable")
	}
	if got := NotAnObject([]string{"utils", "log_channel"}).Details()["path"]; got != "utils.log_channel" {
		t.Errorf("path detail = %v", got)
	}
}
