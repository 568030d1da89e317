package crypto

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

type JWTManager struct {
	config JWTConfig
}

// Claims carries the identity the API works with: the user and the single
// workspace every account is bound to at registration.
type Claims struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Type        string    `json:"type"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func NewJWTManager(config JWTConfig) *JWTManager {
	return &JWTManager{config: config}
}

// GenerateTokenPair issues an access/refresh pair for one user. ExpiresAt
// reflects the access token; the refresh token outlives it.
func (m *JWTManager) GenerateTokenPair(userID uuid.UUID, email string, workspaceID uuid.UUID) (*TokenPair, error) {
	accessExp := time.Now().Add(m.config.AccessExpiry)

	accessToken, err := m.sign(userID, email, workspaceID, TokenTypeAccess, accessExp)
	if err != nil {
		return nil, err
	}
	refreshToken, err := m.sign(userID, email, workspaceID, TokenTypeRefresh, time.Now().Add(m.config.RefreshExpiry))
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
	}, nil
}

func (m *JWTManager) sign(userID uuid.UUID, email string, workspaceID uuid.UUID, tokenType string, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID:      userID,
		Email:       email,
		WorkspaceID: workspaceID,
		Type:        tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    m.config.Issuer,
			Subject:   userID.String(),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.config.Secret))
}

func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			return []byte(m.config.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshTokens rotates a valid refresh token into a fresh pair. Access
// tokens are never accepted here.
func (m *JWTManager) RefreshTokens(refreshToken string) (*TokenPair, error) {
	claims, err := m.ValidateToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	return m.GenerateTokenPair(claims.UserID, claims.Email, claims.WorkspaceID)
}
