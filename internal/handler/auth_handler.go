package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/apperror"
	"github.com/pratik-me/e-shop/internal/model"
	"github.com/pratik-me/e-shop/internal/service"
	"github.com/pratik-me/e-shop/internal/token"
	"github.com/pratik-me/e-shop/internal/util"
)

// Cookie names differ per account kind so a storefront session and a seller
// dashboard session can coexist in one browser.
const (
	userAccessCookie    = "access_token"
	userRefreshCookie   = "refresh_token"
	sellerAccessCookie  = "seller-access-token"
	sellerRefreshCookie = "seller-refresh-token"
)

type claimsContextKey struct{}

// AuthHandler exposes the registration, login, and recovery flows over HTTP.
type AuthHandler struct {
	auth   *service.AuthService
	tokens *token.Issuer
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, tokens *token.Issuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		tokens: tokens,
		logger: logger,
	}
}

// Response is the JSON envelope shared by all endpoints.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	User    interface{} `json:"user,omitempty"`
	Seller  interface{} `json:"seller,omitempty"`
}

type registrationRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	OTP         string `json:"otp"`
	PhoneNumber string `json:"phone_number"`
	Country     string `json:"country"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

// RegisterRoutes mounts the per-kind flows plus the shared refresh endpoint.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	for _, kind := range []model.AccountKind{model.KindUser, model.KindSeller} {
		kind := kind
		router.Route("/"+string(kind), func(r chi.Router) {
			r.Post("/register", h.register(kind))
			r.Post("/verify", h.verifyRegistration(kind))
			r.Post("/login", h.login(kind))
			r.Post("/forgot-password", h.forgotPassword(kind))
			r.Post("/verify-forgot-password", h.verifyForgotPassword(kind))
			r.Post("/reset-password", h.resetPassword(kind))

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth(kind))
				r.Get("/me", h.me(kind))
			})
		})
	}

	router.Post("/refresh-token", h.refreshToken)
}

func (h *AuthHandler) register(kind model.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperror.Validation("Invalid request body."))
			return
		}

		if err := h.auth.Register(r.Context(), registrationInput(kind, req)); err != nil {
			h.respondError(w, err)
			return
		}

		h.respondJSON(w, http.StatusOK, Response{
			Success: true,
			Message: "OTP sent to email. Please verify your account.",
		})
	}
}

func (h *AuthHandler) verifyRegistration(kind model.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperror.Validation("Invalid request body."))
			return
		}

		account, err := h.auth.VerifyRegistration(r.Context(), registrationInput(kind, req), req.OTP)
		if err != nil {
			h.respondError(w, err)
			return
		}

		resp := Response{Success: true}
		if kind == model.KindSeller {
			resp.Message = "Seller registered successfully."
			resp.Seller = account.Public()
		} else {
			resp.Message = "User registered successfully."
			resp.User = account.Public()
		}
		h.respondJSON(w, http.StatusCreated, resp)
	}
}

func (h *AuthHandler) login(kind model.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperror.Validation("Invalid request body."))
			return
		}

		account, pair, err := h.auth.Login(r.Context(), kind, req.Email, req.Password)
		if err != nil {
			h.respondError(w, err)
			return
		}

		setCookie(w, accessCookieName(kind), pair.AccessToken)
		setCookie(w, refreshCookieName(kind), pair.RefreshToken)

		resp := Response{Success: true, Message: "Login successful"}
		if kind == model.KindSeller {
			resp.Seller = account.Public()
		} else {
			resp.User = account.Public()
		}
		h.respondJSON(w, http.StatusOK, resp)
	}
}

// refreshToken serves both kinds: the account kind comes from the token
// claims, not the route.
func (h *AuthHandler) refreshToken(w http.ResponseWriter, r *http.Request) {
	raw := refreshTokenFromRequest(r)
	if raw == "" {
		h.respondError(w, apperror.Auth("Unauthorized! No refresh token found."))
		return
	}

	accessToken, account, err := h.auth.Refresh(r.Context(), raw)
	if err != nil {
		h.respondError(w, err)
		return
	}

	setCookie(w, accessCookieName(account.Kind), accessToken)
	h.respondJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "Access token refreshed successfully.",
	})
}

func (h *AuthHandler) me(kind model.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(claimsContextKey{}).(*token.Claims)
		if !ok {
			h.respondError(w, apperror.Auth("Unauthorized! Token missing."))
			return
		}

		account, err := h.auth.GetAccount(r.Context(), kind, claims.AccountID)
		if err != nil {
			h.respondError(w, err)
			return
		}

		resp := Response{Success: true}
		if kind == model.KindSeller {
			resp.Seller = account.Public()
		} else {
			resp.User = account.Public()
		}
		h.respondJSON(w, http.StatusOK, resp)
	}
}

func (h *AuthHandler) forgotPassword(kind model.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperror.Validation("Invalid request body."))
			return
		}

		if err := h.auth.ForgotPassword(r.Context(), kind, req.Email); err != nil {
			h.respondError(w, err)
			return
		}

		h.respondJSON(w, http.StatusOK, Response{
			Success: true,
			Message: "OTP sent to email. Please verify your account.",
		})
	}
}

func (h *AuthHandler) verifyForgotPassword(kind model.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperror.Validation("Invalid request body."))
			return
		}

		if err := h.auth.VerifyForgotPassword(r.Context(), kind, req.Email, req.OTP); err != nil {
			h.respondError(w, err)
			return
		}

		h.respondJSON(w, http.StatusOK, Response{
			Success: true,
			Message: "OTP verified successfully. You can now reset your password.",
		})
	}
}

func (h *AuthHandler) resetPassword(kind model.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, apperror.Validation("Invalid request body."))
			return
		}

		if err := h.auth.ResetPassword(r.Context(), kind, req.Email, req.NewPassword); err != nil {
			h.respondError(w, err)
			return
		}

		h.respondJSON(w, http.StatusOK, Response{
			Success: true,
			Message: "Password reset successfully.",
		})
	}
}

// requireAuth verifies the access token and rejects tokens issued for the
// other account kind.
func (h *AuthHandler) requireAuth(kind model.AccountKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := accessTokenFromRequest(r, kind)
			if raw == "" {
				h.respondError(w, apperror.Auth("Unauthorized! Token missing."))
				return
			}

			claims, err := h.tokens.VerifyAccessToken(raw)
			if err != nil {
				h.respondError(w, err)
				return
			}
			if claims.Kind != kind {
				h.respondError(w, apperror.Forbidden("Forbidden! Wrong account type."))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (h *AuthHandler) respondJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		util.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *AuthHandler) respondError(w http.ResponseWriter, err error) {
	status := apperror.StatusCode(err)
	if status >= http.StatusInternalServerError {
		util.Error("Request failed", zap.Error(err))
	}
	h.respondJSON(w, status, Response{
		Success: false,
		Message: apperror.Message(err),
	})
}

func registrationInput(kind model.AccountKind, req registrationRequest) service.RegistrationInput {
	return service.RegistrationInput{
		Kind:        kind,
		Name:        util.SanitizeInput(req.Name),
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: util.SanitizeInput(req.PhoneNumber),
		Country:     util.SanitizeInput(req.Country),
	}
}

func accessCookieName(kind model.AccountKind) string {
	if kind == model.KindSeller {
		return sellerAccessCookie
	}
	return userAccessCookie
}

func refreshCookieName(kind model.AccountKind) string {
	if kind == model.KindSeller {
		return sellerRefreshCookie
	}
	return userRefreshCookie
}

func setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func accessTokenFromRequest(r *http.Request, kind model.AccountKind) string {
	if c, err := r.Cookie(accessCookieName(kind)); err == nil && c.Value != "" {
		return c.Value
	}
	return bearerToken(r)
}

func refreshTokenFromRequest(r *http.Request) string {
	for _, name := range []string{userRefreshCookie, sellerRefreshCookie} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
