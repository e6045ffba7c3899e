package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validation("file", "file must be a CSV"), ErrValidation},
		{"not found", NotFound("run", "abc"), ErrNotFound},
		{"conflict", Conflict("run", "abc", "run already active"), ErrConflict},
		{"timeout", Timeout("feature_processing", "feature engineering timed out, please retry"), ErrTimeout},
		{"terminal", Terminal("prediction", "schema mismatch"), ErrTerminal},
		{"internal", Internal("churn.train", errors.New("boom")), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			for _, other := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrTimeout, ErrTerminal, ErrInternal} {
				if other != tt.sentinel && errors.Is(tt.err, other) {
					t.Errorf("error also matches %v", other)
				}
			}
		})
	}
}

func TestTerminal_MessageVerbatim(t *testing.T) {
	t.Parallel()

	err := Terminal("prediction", "schema mismatch")
	if err.Error() != "schema mismatch" {
		t.Errorf("message = %q, want backend text verbatim", err.Error())
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	if e.Stage != "prediction" {
		t.Errorf("stage = %q, want prediction", e.Stage)
	}
}

func TestInternal_WrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := Internal("churn.status", cause)

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	if e.Cause != cause {
		t.Error("cause not retained")
	}
	if want := fmt.Sprintf("churn.status: %v", cause); err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{Validation("f", "bad"), http.StatusBadRequest},
		{NotFound("run", "x"), http.StatusNotFound},
		{Conflict("run", "x", "busy"), http.StatusConflict},
		{Timeout("feature_processing", "timed out"), http.StatusGatewayTimeout},
		{Terminal("training", "failed"), http.StatusBadGateway},
		{Internal("op", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
