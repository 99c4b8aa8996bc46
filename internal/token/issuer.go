// Package token issues and verifies the signed access/refresh token pair.
// Tokens are stateless bearer credentials: validity is entirely a function
// of signature and expiry, there is no server-side session table.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pratik-me/e-shop/internal/apperror"
	"github.com/pratik-me/e-shop/internal/model"
	"github.com/pratik-me/e-shop/internal/repository"
)

// Claims is the self-contained claim set carried by both token kinds.
type Claims struct {
	AccountID string            `json:"id"`
	Kind      model.AccountKind `json:"role"`
	jwt.RegisteredClaims
}

// AccountLookup resolves the account a refresh token refers to, selected by
// the kind claim.
type AccountLookup interface {
	FindByID(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error)
}

// Issuer signs access tokens and refresh tokens with two distinct secrets.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewIssuer(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if len(accessSecret) == 0 || len(refreshSecret) == 0 {
		return nil, fmt.Errorf("token secrets must not be empty")
	}
	return &Issuer{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// IssueAccessToken signs a short-lived access token for the account.
func (i *Issuer) IssueAccessToken(accountID string, kind model.AccountKind) (string, error) {
	return i.sign(accountID, kind, i.accessSecret, i.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for the account.
func (i *Issuer) IssueRefreshToken(accountID string, kind model.AccountKind) (string, error) {
	return i.sign(accountID, kind, i.refreshSecret, i.refreshTTL)
}

// VerifyAccessToken validates signature and expiry of an access token.
func (i *Issuer) VerifyAccessToken(raw string) (*Claims, error) {
	return i.verify(raw, i.accessSecret)
}

// VerifyRefreshToken validates signature and expiry of a refresh token.
func (i *Issuer) VerifyRefreshToken(raw string) (*Claims, error) {
	return i.verify(raw, i.refreshSecret)
}

// Refresh consumes a valid refresh token and returns a fresh access token
// for the same account. The refresh token itself is not rotated. A token
// that decodes to a non-existent account is fatal: no new token is issued.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string, lookup AccountLookup) (string, *model.Account, error) {
	claims, err := i.verify(refreshToken, i.refreshSecret)
	if err != nil {
		return "", nil, err
	}

	if claims.AccountID == "" || !claims.Kind.Valid() {
		return "", nil, apperror.Forbidden("Forbidden! Invalid refresh token.")
	}

	account, err := lookup.FindByID(ctx, claims.Kind, claims.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperror.Forbidden("Forbidden! Account not found.")
		}
		return "", nil, apperror.Database("Failed to look up account.", err)
	}

	accessToken, err := i.IssueAccessToken(account.ID, account.Kind)
	if err != nil {
		return "", nil, err
	}
	return accessToken, account, nil
}

func (i *Issuer) sign(accountID string, kind model.AccountKind, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: accountID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", apperror.Database("Failed to sign token.", err)
	}
	return signed, nil
}

func (i *Issuer) verify(raw string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apperror.Auth("Invalid or expired token.")
	}
	return claims, nil
}
