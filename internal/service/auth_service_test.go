package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratik-me/e-shop/internal/apperror"
	"github.com/pratik-me/e-shop/internal/audit"
	"github.com/pratik-me/e-shop/internal/bucketing"
	"github.com/pratik-me/e-shop/internal/config"
	"github.com/pratik-me/e-shop/internal/credential"
	"github.com/pratik-me/e-shop/internal/model"
	"github.com/pratik-me/e-shop/internal/otp"
	"github.com/pratik-me/e-shop/internal/repository"
	redisrepo "github.com/pratik-me/e-shop/internal/repository/redis"
	"github.com/pratik-me/e-shop/internal/token"
)

type memoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	nextID   int
}

func newMemoryAccountStore() *memoryAccountStore {
	return &memoryAccountStore{accounts: make(map[string]*model.Account)}
}

func (s *memoryAccountStore) key(kind model.AccountKind, email string) string {
	return string(kind) + "/" + email
}

func (s *memoryAccountStore) FindByEmail(_ context.Context, kind model.AccountKind, email string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[s.key(kind, email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *memoryAccountStore) FindByID(_ context.Context, kind model.AccountKind, id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.ID == id && account.Kind == kind {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryAccountStore) Create(_ context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	account.ID = fmt.Sprintf("acc-%d", s.nextID)
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt
	copied := *account
	s.accounts[s.key(account.Kind, account.Email)] = &copied
	return nil
}

func (s *memoryAccountStore) UpdatePassword(_ context.Context, account *model.Account, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accounts[s.key(account.Kind, account.Email)]
	if !ok {
		return repository.ErrNotFound
	}
	stored.PasswordHash = passwordHash
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memoryAccountStore) delete(kind model.AccountKind, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, s.key(kind, email))
}

type captureNotifier struct {
	calls    int
	template string
	lastOTP  string
}

func (n *captureNotifier) Send(_ context.Context, _, _, template string, vars map[string]string) error {
	n.calls++
	n.template = template
	n.lastOTP = vars["otp"]
	return nil
}

type authFixture struct {
	svc      *AuthService
	mr       *miniredis.Miniredis
	notifier *captureNotifier
	store    *memoryAccountStore
	tokens   *token.Issuer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ephemeral := redisrepo.NewEphemeralStore(client)
	notifier := &captureNotifier{}
	accounts := newMemoryAccountStore()

	issuer, err := token.NewIssuer(
		[]byte("access-secret-for-tests"),
		[]byte("refresh-secret-for-tests"),
		15*time.Minute,
		7*24*time.Hour,
	)
	require.NoError(t, err)

	buckets := bucketing.NewManager(&config.Config{
		Bucketing: config.BucketingConfig{AccountBuckets: 64, EventBuckets: 16},
	})
	recorder := audit.NewRecorder(nil, nil, buckets, "auth_events", "auth-events")

	svc := NewAuthService(
		accounts,
		otp.NewRatePolicy(ephemeral),
		otp.NewManager(ephemeral, notifier),
		credential.NewManager(),
		issuer,
		recorder,
	)

	return &authFixture{svc: svc, mr: mr, notifier: notifier, store: accounts, tokens: issuer}
}

func userInput() RegistrationInput {
	return RegistrationInput{
		Kind:     model.KindUser,
		Name:     "Pratik",
		Email:    "buyer@example.com",
		Password: "s3cret-password",
	}
}

func sellerInput() RegistrationInput {
	return RegistrationInput{
		Kind:        model.KindSeller,
		Name:        "Asha",
		Email:       "shop@example.com",
		Password:    "s3cret-password",
		PhoneNumber: "+6591234567",
		Country:     "SG",
	}
}

// registerAndVerify drives the two-step registration to completion.
func (f *authFixture) registerAndVerify(t *testing.T, in RegistrationInput) *model.Account {
	t.Helper()

	require.NoError(t, f.svc.Register(context.Background(), in))
	account, err := f.svc.VerifyRegistration(context.Background(), in, f.notifier.lastOTP)
	require.NoError(t, err)
	return account
}

func TestRegisterSendsActivationOTP(t *testing.T) {
	f := newAuthFixture(t)

	require.NoError(t, f.svc.Register(context.Background(), userInput()))
	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, "user-activation-mail", f.notifier.template)
	assert.Len(t, f.notifier.lastOTP, 4)
}

func TestRegisterSellerUsesSellerTemplate(t *testing.T) {
	f := newAuthFixture(t)

	require.NoError(t, f.svc.Register(context.Background(), sellerInput()))
	assert.Equal(t, "seller-activation-mail", f.notifier.template)
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	missingName := userInput()
	missingName.Name = ""
	err := f.svc.Register(ctx, missingName)
	assert.Equal(t, "Missing required fields.", apperror.Message(err))

	badEmail := userInput()
	badEmail.Email = "not-an-email"
	err = f.svc.Register(ctx, badEmail)
	assert.Equal(t, "Invalid email format.", apperror.Message(err))

	sellerNoPhone := sellerInput()
	sellerNoPhone.PhoneNumber = ""
	err = f.svc.Register(ctx, sellerNoPhone)
	assert.Equal(t, "Missing required fields.", apperror.Message(err))

	// User registration does not require phone or country.
	assert.Equal(t, 0, f.notifier.calls)
	require.NoError(t, f.svc.Register(ctx, userInput()))
}

func TestRegisterExistingAccountHaltsBeforeSend(t *testing.T) {
	f := newAuthFixture(t)

	f.registerAndVerify(t, userInput())
	calls := f.notifier.calls

	// Cooldown from the first registration has passed.
	f.mr.FastForward(2 * time.Minute)

	err := f.svc.Register(context.Background(), userInput())
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	assert.Equal(t, "User already exists with this email.", apperror.Message(err))
	assert.Equal(t, calls, f.notifier.calls)
}

func TestRegisterSameEmailDifferentKindAllowed(t *testing.T) {
	f := newAuthFixture(t)

	f.registerAndVerify(t, userInput())
	f.mr.FastForward(2 * time.Minute)

	seller := sellerInput()
	seller.Email = "buyer@example.com"
	require.NoError(t, f.svc.Register(context.Background(), seller))
}

func TestRegisterCooldown(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, userInput()))

	err := f.svc.Register(ctx, userInput())
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindRateLimit))
	assert.Equal(t, "Please wait for 1 minute before requesting a new OTP", apperror.Message(err))

	f.mr.FastForward(61 * time.Second)
	require.NoError(t, f.svc.Register(ctx, userInput()))
}

func TestVerifyRegistrationCreatesAccount(t *testing.T) {
	f := newAuthFixture(t)

	account := f.registerAndVerify(t, userInput())
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, model.KindUser, account.Kind)
	assert.NotEqual(t, "s3cret-password", account.PasswordHash)

	// The stored hash verifies against the chosen password.
	assert.True(t, credential.NewManager().Compare("s3cret-password", account.PasswordHash))
}

func TestVerifyRegistrationWrongCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, userInput()))

	_, err := f.svc.VerifyRegistration(ctx, userInput(), "0000")
	require.Error(t, err)
	assert.Equal(t, "Invalid OTP. 10 attempts left.", apperror.Message(err))

	// The real code still works afterwards.
	account, err := f.svc.VerifyRegistration(ctx, userInput(), f.notifier.lastOTP)
	require.NoError(t, err)
	assert.NotNil(t, account)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	f := newAuthFixture(t)
	created := f.registerAndVerify(t, userInput())

	account, pair, err := f.svc.Login(context.Background(), model.KindUser, "buyer@example.com", "s3cret-password")
	require.NoError(t, err)
	assert.Equal(t, created.ID, account.ID)

	claims, err := f.tokens.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.AccountID)
	assert.Equal(t, model.KindUser, claims.Kind)

	claims, err = f.tokens.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.AccountID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.registerAndVerify(t, userInput())
	ctx := context.Background()

	_, _, unknownErr := f.svc.Login(ctx, model.KindUser, "ghost@example.com", "whatever")
	_, _, wrongErr := f.svc.Login(ctx, model.KindUser, "buyer@example.com", "wrong-password")

	assert.True(t, apperror.IsKind(unknownErr, apperror.KindAuth))
	assert.True(t, apperror.IsKind(wrongErr, apperror.KindAuth))
	assert.Equal(t, apperror.Message(unknownErr), apperror.Message(wrongErr))
	assert.Equal(t, "Invalid email or password.", apperror.Message(wrongErr))
}

func TestRefreshFlow(t *testing.T) {
	f := newAuthFixture(t)
	f.registerAndVerify(t, userInput())
	ctx := context.Background()

	_, pair, err := f.svc.Login(ctx, model.KindUser, "buyer@example.com", "s3cret-password")
	require.NoError(t, err)

	access, account, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", account.Email)

	claims, err := f.tokens.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.AccountID)
}

func TestRefreshDeletedAccountIsFatal(t *testing.T) {
	f := newAuthFixture(t)
	f.registerAndVerify(t, userInput())
	ctx := context.Background()

	_, pair, err := f.svc.Login(ctx, model.KindUser, "buyer@example.com", "s3cret-password")
	require.NoError(t, err)

	f.store.delete(model.KindUser, "buyer@example.com")

	access, _, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
	assert.Empty(t, access)
}

func TestForgotPasswordRequiresAccount(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.ForgotPassword(context.Background(), model.KindUser, "ghost@example.com")
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	assert.Equal(t, 0, f.notifier.calls)
}

func TestPasswordRecoveryFlow(t *testing.T) {
	f := newAuthFixture(t)
	f.registerAndVerify(t, userInput())
	ctx := context.Background()

	f.mr.FastForward(2 * time.Minute)

	require.NoError(t, f.svc.ForgotPassword(ctx, model.KindUser, "buyer@example.com"))
	assert.Equal(t, "forgot-password-user-mail", f.notifier.template)

	require.NoError(t, f.svc.VerifyForgotPassword(ctx, model.KindUser, "buyer@example.com", f.notifier.lastOTP))

	// Reusing the old password is rejected; the account is unchanged.
	err := f.svc.ResetPassword(ctx, model.KindUser, "buyer@example.com", "s3cret-password")
	require.Error(t, err)
	assert.Equal(t, "New password cannot be same as old password.", apperror.Message(err))

	require.NoError(t, f.svc.ResetPassword(ctx, model.KindUser, "buyer@example.com", "brand-new-password"))

	// Only the new password logs in now.
	_, _, err = f.svc.Login(ctx, model.KindUser, "buyer@example.com", "s3cret-password")
	require.Error(t, err)
	_, _, err = f.svc.Login(ctx, model.KindUser, "buyer@example.com", "brand-new-password")
	require.NoError(t, err)
}

func TestVerifyForgotPasswordConsumesCode(t *testing.T) {
	f := newAuthFixture(t)
	f.registerAndVerify(t, userInput())
	ctx := context.Background()

	f.mr.FastForward(2 * time.Minute)
	require.NoError(t, f.svc.ForgotPassword(ctx, model.KindUser, "buyer@example.com"))

	code := f.notifier.lastOTP
	require.NoError(t, f.svc.VerifyForgotPassword(ctx, model.KindUser, "buyer@example.com", code))

	err := f.svc.VerifyForgotPassword(ctx, model.KindUser, "buyer@example.com", code)
	require.Error(t, err)
	assert.Equal(t, "Invalid or expired OTP.", apperror.Message(err))
}
