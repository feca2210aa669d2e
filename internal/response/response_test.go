package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindBadOperation, http.StatusBadRequest},
		{KindIllegalArgument, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbiddenOperation, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindMethodNotAllowed, http.StatusMethodNotAllowed},
		{KindContentTooLarge, http.StatusRequestEntityTooLarge},
		{KindUnsupportedMediaType, http.StatusUnsupportedMediaType},
		{KindUnprocessableEntity, http.StatusUnprocessableEntity},
		{KindTooManyRequests, http.StatusTooManyRequests},
		{KindInternalError, http.StatusInternalServerError},
		{Kind("SomethingNew"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.kind); got != tt.status {
			t.Fatalf("StatusOf(%s) = %d, want %d", tt.kind, got, tt.status)
		}
	}
}

func TestAsErrorWrapsUnknownErrors(t *testing.T) {
	t.Parallel()
	e := AsError(errors.New("db exploded: password=hunter2"))
	if e.Kind != KindInternalError {
		t.Fatalf("kind = %v", e.Kind)
	}
	if e.Message != "internal error" {
		t.Fatalf("unknown error detail leaked: %q", e.Message)
	}
}

func TestAsErrorUnwrapsTypedErrors(t *testing.T) {
	t.Parallel()
	orig := NotFound("unknown topic id: x")
	wrapped := fmt.Errorf("dispatch: %w", orig)
	if got := AsError(wrapped); got != orig {
		t.Fatalf("AsError did not unwrap: %+v", got)
	}
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("KindOf = %v", KindOf(wrapped))
	}
}

func TestErrorJSONShape(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(Forbidden("invalid token"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"error":"ForbiddenOperation","message":"invalid token"}`
	if string(b) != want {
		t.Fatalf("json = %s, want %s", b, want)
	}
}
