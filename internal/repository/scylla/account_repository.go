package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pratik-me/e-shop/internal/bucketing"
	"github.com/pratik-me/e-shop/internal/model"
	"github.com/pratik-me/e-shop/internal/repository"
	"github.com/pratik-me/e-shop/internal/util"
)

// AccountRepository persists accounts in two denormalized tables:
// accounts_by_email for the login path and accounts_by_id for token refresh.
// Both copies are written in a single logged batch.
type AccountRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewAccountRepository(client *ScyllaClient, buckets *bucketing.Manager) *AccountRepository {
	return &AccountRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *AccountRepository) FindByEmail(ctx context.Context, kind model.AccountKind, email string) (*model.Account, error) {
	bucket := r.buckets.AccountBucket(email)
	query := r.client.Prepared.GetAccountByEmail.
		Bind(bucket, email, string(kind)).
		WithContext(ctx)

	account, err := r.scanAccount(query)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get account by email",
			zap.String("email", email),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, kind model.AccountKind, id string) (*model.Account, error) {
	query := r.client.Prepared.GetAccountByID.
		Bind(id, string(kind)).
		WithContext(ctx)

	account, err := r.scanAccount(query)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to get account by id",
			zap.String("account_id", id),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.Bucket = r.buckets.AccountBucket(account.Email)

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateAccountByEmail.Statement(),
		account.Bucket, account.Email, string(account.Kind), account.ID,
		account.Name, account.PasswordHash, account.PhoneNumber,
		account.Country, account.ShopID, account.CreatedAt, account.UpdatedAt)

	batch.Query(r.client.Prepared.CreateAccountByID.Statement(),
		account.ID, string(account.Kind), account.Bucket, account.Email,
		account.Name, account.PasswordHash, account.PhoneNumber,
		account.Country, account.ShopID, account.CreatedAt, account.UpdatedAt)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create account",
			zap.String("email", account.Email),
			zap.String("kind", string(account.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to create account: %w", err)
	}

	util.Info("Account created",
		zap.String("account_id", account.ID),
		zap.String("kind", string(account.Kind)),
		zap.Int("bucket", account.Bucket))

	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, account *model.Account, passwordHash string) error {
	now := time.Now().UTC()
	bucket := r.buckets.AccountBucket(account.Email)

	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.UpdatePasswordByMail.Statement(),
		passwordHash, now, bucket, account.Email, string(account.Kind))

	batch.Query(r.client.Prepared.UpdatePasswordByID.Statement(),
		passwordHash, now, account.ID, string(account.Kind))

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to update account password",
			zap.String("account_id", account.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update account password: %w", err)
	}

	account.PasswordHash = passwordHash
	account.UpdatedAt = now

	util.Info("Account password updated",
		zap.String("account_id", account.ID),
		zap.String("kind", string(account.Kind)))

	return nil
}

func (r *AccountRepository) scanAccount(query *gocql.Query) (*model.Account, error) {
	account := &model.Account{}
	var kind string

	err := r.client.ScanWithRetry(query,
		&account.Bucket, &account.Email, &kind, &account.ID,
		&account.Name, &account.PasswordHash, &account.PhoneNumber,
		&account.Country, &account.ShopID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	account.Kind = model.AccountKind(kind)
	return account, nil
}
