// Package service sequences the registration, login, and password recovery
// flows for both account kinds. Both kinds share the same pipeline,
// parameterized on model.AccountKind.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/apperror"
	"github.com/pratik-me/e-shop/internal/audit"
	"github.com/pratik-me/e-shop/internal/credential"
	"github.com/pratik-me/e-shop/internal/model"
	"github.com/pratik-me/e-shop/internal/otp"
	"github.com/pratik-me/e-shop/internal/repository"
	"github.com/pratik-me/e-shop/internal/token"
	"github.com/pratik-me/e-shop/internal/util"
)

// AccountStore is the persistent account storage contract.
type AccountStore interface {
	FindByEmail(ctx context.Context, kind model.AccountKind, email string) (*model.Account, error)
	FindByID(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error)
	Create(ctx context.Context, account *model.Account) error
	UpdatePassword(ctx context.Context, account *model.Account, passwordHash string) error
}

// Email templates rendered by the notification consumer.
const (
	userActivationTemplate   = "user-activation-mail"
	sellerActivationTemplate = "seller-activation-mail"
	userForgotTemplate       = "forgot-password-user-mail"
	sellerForgotTemplate     = "forgot-password-seller-mail"
)

// TokenPair is the credential pair issued on login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegistrationInput carries the fields collected by the registration forms.
// PhoneNumber and Country are seller-only.
type RegistrationInput struct {
	Kind        model.AccountKind
	Name        string
	Email       string
	Password    string
	PhoneNumber string
	Country     string
}

type AuthService struct {
	accounts AccountStore
	policy   *otp.RatePolicy
	codes    *otp.Manager
	creds    *credential.Manager
	tokens   *token.Issuer
	recorder *audit.Recorder
}

func NewAuthService(
	accounts AccountStore,
	policy *otp.RatePolicy,
	codes *otp.Manager,
	creds *credential.Manager,
	tokens *token.Issuer,
	recorder *audit.Recorder,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		policy:   policy,
		codes:    codes,
		creds:    creds,
		tokens:   tokens,
		recorder: recorder,
	}
}

// Register starts a registration: it validates the input, refuses emails
// that already have an account of that kind, applies the send policy, and
// issues the activation OTP. No account is created yet.
func (s *AuthService) Register(ctx context.Context, in RegistrationInput) error {
	if err := validateRegistration(in); err != nil {
		return err
	}

	if err := s.requireNoAccount(ctx, in.Kind, in.Email); err != nil {
		return err
	}

	if err := s.policy.CheckSendEligibility(ctx, in.Email); err != nil {
		return err
	}
	if err := s.policy.RecordSendAttempt(ctx, in.Email); err != nil {
		return err
	}

	if err := s.codes.Issue(ctx, in.Name, in.Email, activationTemplate(in.Kind)); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.ActionOTPIssued, in.Kind, in.Email, "", "registration")
	return nil
}

// VerifyRegistration consumes the activation OTP and creates the account.
func (s *AuthService) VerifyRegistration(ctx context.Context, in RegistrationInput, code string) (*model.Account, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, apperror.Validation("Missing required fields.")
	}

	if err := s.requireNoAccount(ctx, in.Kind, in.Email); err != nil {
		return nil, err
	}

	if err := s.verifyCode(ctx, in.Kind, in.Email, code); err != nil {
		return nil, err
	}

	hash, err := s.creds.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Kind:         in.Kind,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		PhoneNumber:  in.PhoneNumber,
		Country:      in.Country,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, apperror.Database("Failed to create account.", err)
	}

	s.recorder.Record(ctx, audit.ActionRegistered, in.Kind, in.Email, account.ID, "")
	return account, nil
}

// Login authenticates an email/password pair and issues a token pair.
// A missing account and a wrong password produce the same error, so the
// response does not reveal whether the email is registered.
func (s *AuthService) Login(ctx context.Context, kind model.AccountKind, email, password string) (*model.Account, *TokenPair, error) {
	if email == "" || password == "" {
		return nil, nil, apperror.Validation("Email and password are required.")
	}

	account, err := s.accounts.FindByEmail(ctx, kind, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recorder.Record(ctx, audit.ActionLoginFailed, kind, email, "", "unknown email")
			return nil, nil, apperror.Auth("Invalid email or password.")
		}
		return nil, nil, apperror.Database("Failed to look up account.", err)
	}

	if !s.creds.Compare(password, account.PasswordHash) {
		s.recorder.Record(ctx, audit.ActionLoginFailed, kind, email, account.ID, "wrong password")
		return nil, nil, apperror.Auth("Invalid email or password.")
	}

	accessToken, err := s.tokens.IssueAccessToken(account.ID, account.Kind)
	if err != nil {
		return nil, nil, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(account.ID, account.Kind)
	if err != nil {
		return nil, nil, err
	}

	s.recorder.Record(ctx, audit.ActionLogin, kind, email, account.ID, "")
	util.Info("Login successful",
		zap.String("account_id", account.ID),
		zap.String("kind", string(kind)))

	return account, &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, *model.Account, error) {
	accessToken, account, err := s.tokens.Refresh(ctx, refreshToken, s.accounts)
	if err != nil {
		return "", nil, err
	}

	s.recorder.Record(ctx, audit.ActionTokenRefreshed, account.Kind, account.Email, account.ID, "")
	return accessToken, account, nil
}

// GetAccount loads the account behind a verified access token claim set.
func (s *AuthService) GetAccount(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.Auth("Unauthorized! Account not found.")
		}
		return nil, apperror.Database("Failed to look up account.", err)
	}
	return account, nil
}

// ForgotPassword issues a password recovery OTP. Unlike registration, the
// account must already exist.
func (s *AuthService) ForgotPassword(ctx context.Context, kind model.AccountKind, email string) error {
	if email == "" {
		return apperror.Validation("Email is required.")
	}

	account, err := s.accounts.FindByEmail(ctx, kind, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Validation(fmt.Sprintf("No %s account found with this email.", kind))
		}
		return apperror.Database("Failed to look up account.", err)
	}

	if err := s.policy.CheckSendEligibility(ctx, email); err != nil {
		return err
	}
	if err := s.policy.RecordSendAttempt(ctx, email); err != nil {
		return err
	}

	if err := s.codes.Issue(ctx, account.Name, email, forgotTemplate(kind)); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.ActionOTPIssued, kind, email, account.ID, "password recovery")
	return nil
}

// VerifyForgotPassword consumes the recovery OTP. The subsequent reset call
// is a separate request.
func (s *AuthService) VerifyForgotPassword(ctx context.Context, kind model.AccountKind, email, code string) error {
	if email == "" || code == "" {
		return apperror.Validation("Email and OTP are required.")
	}
	return s.verifyCode(ctx, kind, email, code)
}

// ResetPassword replaces the account password after OTP verification.
func (s *AuthService) ResetPassword(ctx context.Context, kind model.AccountKind, email, newPassword string) error {
	if email == "" || newPassword == "" {
		return apperror.Validation("Email and new password are required.")
	}

	account, err := s.accounts.FindByEmail(ctx, kind, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Validation(fmt.Sprintf("No %s account found with this email.", kind))
		}
		return apperror.Database("Failed to look up account.", err)
	}

	if err := s.creds.RejectIfUnchanged(account.PasswordHash, newPassword); err != nil {
		return err
	}

	hash, err := s.creds.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.accounts.UpdatePassword(ctx, account, hash); err != nil {
		return apperror.Database("Failed to update password.", err)
	}

	s.recorder.Record(ctx, audit.ActionPasswordReset, kind, email, account.ID, "")
	return nil
}

func (s *AuthService) verifyCode(ctx context.Context, kind model.AccountKind, email, code string) error {
	err := s.codes.Verify(ctx, email, code)
	if err != nil {
		switch {
		case apperror.IsKind(err, apperror.KindRateLimit):
			s.recorder.Record(ctx, audit.ActionAccountLocked, kind, email, "", "otp attempt limit")
		case apperror.IsKind(err, apperror.KindValidation):
			s.recorder.Record(ctx, audit.ActionOTPInvalid, kind, email, "", "")
		}
		return err
	}
	return nil
}

func (s *AuthService) requireNoAccount(ctx context.Context, kind model.AccountKind, email string) error {
	_, err := s.accounts.FindByEmail(ctx, kind, email)
	if err == nil {
		if kind == model.KindSeller {
			return apperror.Validation("Seller already exists with this email.")
		}
		return apperror.Validation("User already exists with this email.")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return apperror.Database("Failed to look up account.", err)
	}
	return nil
}

func validateRegistration(in RegistrationInput) error {
	if !in.Kind.Valid() {
		return apperror.Validation("Invalid account kind.")
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return apperror.Validation("Missing required fields.")
	}
	if in.Kind == model.KindSeller && (in.PhoneNumber == "" || in.Country == "") {
		return apperror.Validation("Missing required fields.")
	}
	if !util.IsValidEmail(in.Email) {
		return apperror.Validation("Invalid email format.")
	}
	return nil
}

func activationTemplate(kind model.AccountKind) string {
	if kind == model.KindSeller {
		return sellerActivationTemplate
	}
	return userActivationTemplate
}

func forgotTemplate(kind model.AccountKind) string {
	if kind == model.KindSeller {
		return sellerForgotTemplate
	}
	return userForgotTemplate
}
