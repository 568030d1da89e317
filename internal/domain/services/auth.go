package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/adsync-ai/adsync/internal/domain/models"
	"github.com/adsync-ai/adsync/internal/domain/repositories"
	"github.com/adsync-ai/adsync/internal/pkg/crypto"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already exists")
	ErrUserSuspended      = errors.New("account is suspended")
	ErrInvalidToken       = errors.New("invalid token")
)

type AuthService struct {
	db         *gorm.DB
	users      *repositories.UserRepository
	jwtManager *crypto.JWTManager
}

func NewAuthService(db *gorm.DB, jwtManager *crypto.JWTManager) *AuthService {
	return &AuthService{
		db:         db,
		users:      repositories.NewUserRepository(db),
		jwtManager: jwtManager,
	}
}

type RegisterInput struct {
	Email         string
	Password      string
	WorkspaceName string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	User      *models.User
	TokenPair *crypto.TokenPair
}

// Register creates a workspace and its first user in one transaction,
// then returns auth tokens scoped to the new workspace.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	exists, err := s.users.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email existence: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	passwordHash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        input.Email,
		PasswordHash: passwordHash,
		Status:       models.UserStatusActive,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		workspace := &models.Workspace{
			Name: input.WorkspaceName,
			Slug: slugify(input.WorkspaceName),
		}
		if err := tx.Create(workspace).Error; err != nil {
			if repositories.IsDuplicateKey(err) {
				workspace.ID = uuid.Nil
				workspace.Slug = fmt.Sprintf("%s-%s", workspace.Slug, crypto.GenerateRandomToken(4))
				if err := tx.Create(workspace).Error; err != nil {
					return fmt.Errorf("failed to create workspace: %w", err)
				}
			} else {
				return fmt.Errorf("failed to create workspace: %w", err)
			}
		}
		user.WorkspaceID = workspace.ID
		if err := tx.Create(user).Error; err != nil {
			if repositories.IsDuplicateKey(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tokenPair, err := s.jwtManager.GenerateTokenPair(user.ID, user.Email, user.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("workspace_id", user.WorkspaceID.String()).
		Msg("User registered")

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// Login authenticates a user and returns auth tokens.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user.Status != models.UserStatusActive {
		return nil, ErrUserSuspended
	}

	if !crypto.CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to update last login")
	}

	tokenPair, err := s.jwtManager.GenerateTokenPair(user.ID, user.Email, user.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*crypto.TokenPair, error) {
	pair, err := s.jwtManager.RefreshTokens(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return pair, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = fmt.Sprintf("workspace-%d", time.Now().UnixNano())
	}
	return slug
}
