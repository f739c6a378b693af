package apierror

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

func TestFromErrorCanonical(t *testing.T) {
	apiErr, status := FromError(NewNotFound("session not found"), "req_1")
	if status != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", status)
	}
	if apiErr.RequestID != "req_1" {
		t.Fatalf("request id not stamped: %+v", apiErr)
	}
}

func TestFromErrorDecodeError(t *testing.T) {
	err := error(&types.DecodeError{Param: "sessionId", Message: "sessionId is required"})
	apiErr, status := FromError(err, "req_2")
	if status != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", status)
	}
	if apiErr.Param != "sessionId" {
		t.Fatalf("param=%q", apiErr.Param)
	}
}

func TestFromErrorOpaqueInternal(t *testing.T) {
	apiErr, status := FromError(errors.New("pg: connection refused on 10.0.0.3"), "req_3")
	if status != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", status)
	}
	if apiErr.Message != "internal error" {
		t.Fatalf("internal details leaked: %q", apiErr.Message)
	}
}

func TestFromErrorContext(t *testing.T) {
	_, status := FromError(context.DeadlineExceeded, "")
	if status != http.StatusGatewayTimeout {
		t.Fatalf("status=%d, want 504", status)
	}
}

func TestStatusFromType(t *testing.T) {
	for typ, want := range map[ErrorType]int{
		ErrInvalidRequest: 400,
		ErrAuthentication: 401,
		ErrPermission:     403,
		ErrNotFound:       404,
		ErrRateLimit:      429,
		ErrAPI:            500,
	} {
		if got := StatusFromType(typ); got != want {
			t.Fatalf("StatusFromType(%s)=%d, want %d", typ, got, want)
		}
	}
}
