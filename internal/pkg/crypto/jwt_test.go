package crypto

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestManager() *JWTManager {
	return NewJWTManager(JWTConfig{
		Secret:        "test-secret-test-secret-test-sec",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "adsync-test",
	})
}

func TestTokenRoundTripCarriesIdentity(t *testing.T) {
	m := newTestManager()
	userID := uuid.New()
	wsID := uuid.New()

	pair, err := m.GenerateTokenPair(userID, "ops@acme.test", wsID)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	claims, err := m.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != userID || claims.WorkspaceID != wsID {
		t.Errorf("claims identity = %s/%s, want %s/%s", claims.UserID, claims.WorkspaceID, userID, wsID)
	}
	if claims.Email != "ops@acme.test" {
		t.Errorf("email = %q", claims.Email)
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("type = %q, want %q", claims.Type, TokenTypeAccess)
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	m := newTestManager()
	pair, err := m.GenerateTokenPair(uuid.New(), "ops@acme.test", uuid.New())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	other := NewJWTManager(JWTConfig{
		Secret:        "another-secret-another-secret-xx",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "adsync-test",
	})
	if _, err := other.ValidateToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsForeignIssuer(t *testing.T) {
	m := newTestManager()
	pair, err := m.GenerateTokenPair(uuid.New(), "ops@acme.test", uuid.New())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	other := NewJWTManager(JWTConfig{
		Secret:        "test-secret-test-secret-test-sec",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "someone-else",
	})
	if _, err := other.ValidateToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	m := newTestManager()
	pair, err := m.GenerateTokenPair(uuid.New(), "ops@acme.test", uuid.New())
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	if _, err := m.RefreshTokens(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if _, err := m.RefreshTokens(pair.RefreshToken); err != nil {
		t.Fatalf("refresh with refresh token: %v", err)
	}
}
