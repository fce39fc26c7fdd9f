package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwag-labs/tailwag/internal/auth"
	"github.com/tailwag-labs/tailwag/internal/license"
)

func TestClient_FetchGrant(t *testing.T) {
	tenantID := uuid.New()

	tests := []struct {
		name      string
		status    int
		body      any
		wantToken string
		wantErr   error
	}{
		{"ok", http.StatusOK, map[string]string{"token": "TWAG-1.abc.def"}, "TWAG-1.abc.def", nil},
		{"unknown tenant", http.StatusNotFound, map[string]string{"error": "tenant not found"}, "", license.ErrTenantNotFound},
		{"no active plan", http.StatusConflict, map[string]string{"error": "tenant has no active plan"}, "", license.ErrNoActivePlan},
		{"hub error", http.StatusInternalServerError, map[string]string{"error": "boom"}, "", license.ErrIssuerUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/licenses/issue", r.URL.Path)

				var req map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, tenantID.String(), req["tenant_id"])

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			token, err := NewClient(srv.URL).FetchGrant(context.Background(), tenantID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestClient_FetchGrant_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL).FetchGrant(context.Background(), uuid.New())
	assert.ErrorIs(t, err, license.ErrIssuerUnreachable)
}

func TestClient_FetchKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/licenses/keys", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{
				{"key_id": "abcd1234abcd1234", "public_key": "cHVibGljLWtleQ=="},
			},
		})
	}))
	defer srv.Close()

	keys, err := NewClient(srv.URL).FetchKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "abcd1234abcd1234", keys[0].KeyID)
	assert.Equal(t, "cHVibGljLWtleQ==", keys[0].PublicKey)
}

func TestClient_Authenticate(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()

	tests := []struct {
		name    string
		status  int
		body    any
		wantErr error
	}{
		{
			"granted", http.StatusOK,
			map[string]any{"granted": true, "user_id": userID.String(), "tenant_id": tenantID.String(), "email": "vet@clinic.example"},
			nil,
		},
		{"rejected", http.StatusUnauthorized, map[string]string{"error": "invalid email or password"}, auth.ErrBadCredentials},
		{"hub error", http.StatusBadGateway, map[string]string{"error": "upstream"}, auth.ErrPrimaryUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/auth/login", r.URL.Path)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			identity, err := NewClient(srv.URL).Authenticate(context.Background(), "vet@clinic.example", "pw")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, identity.UserID)
			assert.Equal(t, tenantID, identity.TenantID)
			assert.Equal(t, "vet@clinic.example", identity.Email)
		})
	}
}

func TestClient_Authenticate_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL).Authenticate(context.Background(), "vet@clinic.example", "pw")
	assert.ErrorIs(t, err, auth.ErrPrimaryUnavailable)
}
