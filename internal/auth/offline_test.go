package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memOfflineStore struct {
	records map[string]*OfflineRecord
}

func newMemOfflineStore() *memOfflineStore {
	return &memOfflineStore{records: make(map[string]*OfflineRecord)}
}

func (s *memOfflineStore) GetOfflineAuth(_ context.Context, email string) (*OfflineRecord, error) {
	record, ok := s.records[email]
	if !ok {
		return nil, ErrNoOfflineRecord
	}
	return record, nil
}

func (s *memOfflineStore) PutOfflineAuth(_ context.Context, record *OfflineRecord) error {
	s.records[record.Email] = record
	return nil
}

func TestOfflineAuthCache_RefreshAndVerify(t *testing.T) {
	store := newMemOfflineStore()
	cache := NewOfflineAuthCache(store, zerolog.Nop())
	ctx := context.Background()

	userID := uuid.New()
	tenantID := uuid.New()

	err := cache.Refresh(ctx, userID, "vet@clinic.example", "correct horse", tenantID)
	require.NoError(t, err)

	record, err := cache.Verify(ctx, "vet@clinic.example", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, userID, record.UserID)
	assert.Equal(t, tenantID, record.TenantID)

	// The stored verifier is a hash, never the plaintext.
	stored := store.records["vet@clinic.example"]
	assert.NotContains(t, stored.Verifier, "correct horse")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Verifier), []byte("correct horse")))
}

func TestOfflineAuthCache_Verify_Rejections(t *testing.T) {
	store := newMemOfflineStore()
	cache := NewOfflineAuthCache(store, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx, uuid.New(), "known@clinic.example", "right", uuid.New()))

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "known@clinic.example", "wrong"},
		{"unknown user", "nobody@clinic.example", "right"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := cache.Verify(ctx, tt.email, tt.password)
			assert.Nil(t, record)
			// Unknown users and wrong passwords are indistinguishable.
			assert.ErrorIs(t, err, ErrBadCredentials)
		})
	}
}

func TestOfflineAuthCache_RefreshReplacesVerifier(t *testing.T) {
	store := newMemOfflineStore()
	cache := NewOfflineAuthCache(store, zerolog.Nop())
	ctx := context.Background()

	userID := uuid.New()
	tenantID := uuid.New()

	require.NoError(t, cache.Refresh(ctx, userID, "vet@clinic.example", "old password", tenantID))
	require.NoError(t, cache.Refresh(ctx, userID, "vet@clinic.example", "new password", tenantID))

	_, err := cache.Verify(ctx, "vet@clinic.example", "old password")
	assert.ErrorIs(t, err, ErrBadCredentials)

	record, err := cache.Verify(ctx, "vet@clinic.example", "new password")
	require.NoError(t, err)
	assert.Equal(t, userID, record.UserID)
}

func TestHashPassword_EmbedsCost(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)

	// Verification reads parameters from the hash itself, so a record hashed
	// at a lower cost keeps verifying.
	lowCost, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(string(lowCost), "secret"))
}
