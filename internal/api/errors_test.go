package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hallgate/access-core/internal/token"
)

func TestWriteCredentialError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"expired", token.ErrCredentialExpired, http.StatusUnauthorized, ErrCodeTokenExpired},
		{"revoked", token.ErrCredentialRevoked, http.StatusUnauthorized, ErrCodeTokenRevoked},
		{"stale", token.ErrCredentialStale, http.StatusUnauthorized, ErrCodeTokenStale},
		{"inactive", token.ErrAccountInactive, http.StatusUnauthorized, ErrCodeAccountInactive},
		{"malformed", token.ErrCredentialMalformed, http.StatusUnauthorized, ErrCodeTokenMalformed},
		{"wrapped malformed", fmt.Errorf("parsing: %w", token.ErrCredentialMalformed), http.StatusUnauthorized, ErrCodeTokenMalformed},
		// A record-store failure is not a credential defect: the caller
		// should retry against a healthy service, not re-authenticate.
		{"store failure", fmt.Errorf("loading identity: %w", errors.New("disk I/O error")), http.StatusServiceUnavailable, ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeCredentialError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var apiErr Error
			decodeJSON(t, rec, &apiErr)
			if apiErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", apiErr.Code, tt.wantCode)
			}
		})
	}
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, "ok"},
		{"expired", token.ErrCredentialExpired, "expired"},
		{"revoked", token.ErrCredentialRevoked, "revoked"},
		{"stale", token.ErrCredentialStale, "stale"},
		{"inactive", token.ErrAccountInactive, "inactive"},
		{"malformed", token.ErrCredentialMalformed, "malformed"},
		{"store failure", errors.New("disk I/O error"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outcomeFor(tt.err); got != tt.want {
				t.Errorf("outcomeFor() = %q, want %q", got, tt.want)
			}
		})
	}
}
