package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid argument", err: E(CodeInvalidArgument, "op", "bad", nil), want: http.StatusBadRequest},
		{name: "unauthorized", err: E(CodeUnauthorized, "op", "nope", nil), want: http.StatusUnauthorized},
		{name: "locked", err: E(CodeLocked, "op", "locked", nil), want: http.StatusLocked},
		{name: "forbidden", err: E(CodeForbidden, "op", "closed", nil), want: http.StatusForbidden},
		{name: "not found", err: E(CodeNotFound, "op", "missing", nil), want: http.StatusNotFound},
		{name: "conflict", err: E(CodeConflict, "op", "dup", nil), want: http.StatusConflict},
		{name: "unavailable", err: E(CodeUnavailable, "op", "down", nil), want: http.StatusServiceUnavailable},
		{name: "timeout", err: E(CodeTimeout, "op", "slow", nil), want: http.StatusGatewayTimeout},
		{name: "internal", err: E(CodeInternal, "op", "boom", nil), want: http.StatusInternalServerError},
		{name: "wrapped app error", err: fmt.Errorf("outer: %w", E(CodeLocked, "op", "locked", nil)), want: http.StatusLocked},
		{name: "bare not found sentinel", err: ErrNotFound, want: http.StatusNotFound},
		{name: "plain error", err: errors.New("x"), want: http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := HTTPStatus(test.err); got != test.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, test.want)
			}
		})
	}
}

func TestAppError_UnwrapAndDetails(t *testing.T) {
	err := E(CodeUnavailable, "Repo.Get", "storage down", ErrNotFound)
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected wrapped sentinel to be reachable via errors.Is")
	}
	if !IsCode(err, CodeUnavailable) {
		t.Fatal("IsCode() = false, want true")
	}
	if got := err.Error(); got != "Repo.Get: storage down: not found" {
		t.Errorf("Error() = %q", got)
	}

	withDetails := ED(CodeForbidden, "op", "closed", map[string]int{"minutes_to_start": 3})
	var ae *AppError
	if !errors.As(withDetails, &ae) || ae.Details == nil {
		t.Fatal("expected details to be attached")
	}
	if CodeOf(withDetails) != CodeForbidden {
		t.Errorf("CodeOf() = %s", CodeOf(withDetails))
	}
	if CodeOf(errors.New("x")) != CodeInternal {
		t.Error("CodeOf(plain) should be INTERNAL")
	}
}

func TestNewAccessToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		tok, err := NewAccessToken()
		if err != nil {
			t.Fatalf("NewAccessToken() error = %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil {
			t.Fatalf("token is not raw url base64: %v", err)
		}
		if len(raw)*8 < 128 {
			t.Fatalf("token entropy = %d bits, want >= 128", len(raw)*8)
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken(""); got != "" {
		t.Errorf("MaskToken(\"\") = %q", got)
	}
	if got := MaskToken("abc"); got != "***" {
		t.Errorf("MaskToken(short) = %q", got)
	}
	got := MaskToken("abcdefghijklmnop")
	if !strings.HasPrefix(got, "abcdef") || strings.Contains(got, "ghij") {
		t.Errorf("MaskToken(long) = %q", got)
	}
}
