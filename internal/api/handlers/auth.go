package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/adsync-ai/adsync/internal/api/dto"
	"github.com/adsync-ai/adsync/internal/domain/services"
	"github.com/adsync-ai/adsync/internal/pkg/validator"
)

type AuthHandler struct {
	authSvc *services.AuthService
}

func NewAuthHandler(authSvc *services.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.ErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	result, err := h.authSvc.Register(r.Context(), services.RegisterInput{
		Email:         req.Email,
		Password:      req.Password,
		WorkspaceName: req.WorkspaceName,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailExists) {
			dto.Conflict(w, "email already exists")
			return
		}
		dto.InternalError(w, "failed to register user")
		return
	}

	dto.Created(w, dto.AuthResponse{
		User:         dto.NewUserResponse(result.User),
		AccessToken:  result.TokenPair.AccessToken,
		RefreshToken: result.TokenPair.RefreshToken,
		ExpiresAt:    result.TokenPair.ExpiresAt.Unix(),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.ErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	result, err := h.authSvc.Login(r.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			dto.Unauthorized(w, "invalid email or password")
		case errors.Is(err, services.ErrUserSuspended):
			dto.Forbidden(w, "account is suspended")
		default:
			dto.InternalError(w, "login failed")
		}
		return
	}

	dto.OK(w, dto.AuthResponse{
		User:         dto.NewUserResponse(result.User),
		AccessToken:  result.TokenPair.AccessToken,
		RefreshToken: result.TokenPair.RefreshToken,
		ExpiresAt:    result.TokenPair.ExpiresAt.Unix(),
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.ErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := h.authSvc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		dto.Unauthorized(w, "invalid refresh token")
		return
	}

	dto.OK(w, dto.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.Unix(),
	})
}
