package auth

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"veyra/internal/models"
	"veyra/internal/repositories"
	"veyra/internal/services/referral"
	"veyra/internal/services/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReferralCode = "VEY-ROOT"

// memStore is an in-memory Store covering only the user repository; the
// wallet and referral sides are faked at the service level.
type memStore struct {
	users  map[uint]*models.User
	nextID uint
}

func newMemStore() *memStore {
	return &memStore{users: make(map[uint]*models.User), nextID: 1}
}

func (m *memStore) Users() repositories.UserRepository               { return &memUsers{m} }
func (m *memStore) Wallets() repositories.WalletRepository           { return nil }
func (m *memStore) Assets() repositories.AssetRepository             { return nil }
func (m *memStore) Transactions() repositories.TransactionRepository { return nil }
func (m *memStore) Investments() repositories.InvestmentRepository   { return nil }
func (m *memStore) Referrals() repositories.ReferralRepository       { return nil }
func (m *memStore) ExecuteInTransaction(fn func(repositories.Store) error) error {
	return fn(m)
}

type memUsers struct{ m *memStore }

func (u *memUsers) Create(user *models.User) error {
	user.ID = u.m.nextID
	u.m.nextID++
	cp := *user
	u.m.users[user.ID] = &cp
	return nil
}

func (u *memUsers) GetByID(id uint) (*models.User, error) {
	user, ok := u.m.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (u *memUsers) GetByEmail(email string) (*models.User, error) {
	for _, user := range u.m.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (u *memUsers) Update(user *models.User) error {
	cp := *user
	u.m.users[user.ID] = &cp
	return nil
}

func (u *memUsers) IncrementTokenVersion(id uint) error {
	user, ok := u.m.users[id]
	if !ok {
		return repositories.ErrUserNotFound
	}
	user.TokenVersion++
	return nil
}

// fakeWallets records wallet creations and stubs the rest.
type fakeWallets struct {
	created []uint
}

func (f *fakeWallets) CreateWallet(_ repositories.Store, userID uint) (*models.Wallet, error) {
	f.created = append(f.created, userID)
	return &models.Wallet{UserID: userID}, nil
}

func (f *fakeWallets) GetWallet(uint) (*models.Wallet, error) { return nil, nil }
func (f *fakeWallets) Balance(context.Context, uint) (*wallet.BalanceSummary, error) {
	return nil, nil
}
func (f *fakeWallets) CreditDeposit(context.Context, repositories.Store, uint, uint, *big.Int) error {
	return nil
}
func (f *fakeWallets) DebitWithdrawal(context.Context, repositories.Store, uint, uint, *big.Int) error {
	return nil
}
func (f *fakeWallets) RecreditWithdrawal(context.Context, repositories.Store, uint, uint, *big.Int) error {
	return nil
}
func (f *fakeWallets) RequestWithdrawal(context.Context, uint, uint, string, *big.Int) (*models.Transaction, error) {
	return nil, nil
}
func (f *fakeWallets) CreateDepositIntent(context.Context, uint, uint) (*models.Transaction, error) {
	return nil, nil
}
func (f *fakeWallets) Transactions(uint, string, int, int) ([]models.Transaction, error) {
	return nil, nil
}
func (f *fakeWallets) SigningKey(*models.Wallet) (*ecdsa.PrivateKey, error) { return nil, nil }

// fakeReferrals accepts a single known code.
type fakeReferrals struct {
	registered []uint
}

func (f *fakeReferrals) Register(_ repositories.Store, userID uint, referrerCode string) (*models.ReferralEarnings, error) {
	if referrerCode != validReferralCode {
		return nil, referral.ErrInvalidReferralCode
	}
	f.registered = append(f.registered, userID)
	return &models.ReferralEarnings{UserID: userID}, nil
}

func (f *fakeReferrals) DistributeRewards(repositories.Store, uint, uint, *big.Int) error {
	return nil
}
func (f *fakeReferrals) OnInvestmentAdded(repositories.Store, uint, *big.Int, bool) error {
	return nil
}
func (f *fakeReferrals) OnInvestmentRemoved(repositories.Store, uint, *big.Int, bool) error {
	return nil
}
func (f *fakeReferrals) Summary(uint) (*referral.Summary, error) { return nil, nil }

func newAuthFixture(t *testing.T) (Service, *memStore, *fakeWallets, *fakeReferrals) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	store := newMemStore()
	wallets := &fakeWallets{}
	referrals := &fakeReferrals{}
	return NewService(store, wallets, referrals), store, wallets, referrals
}

func TestRegisterCreatesUserWalletAndReferral(t *testing.T) {
	svc, store, wallets, referrals := newAuthFixture(t)

	user, access, refresh, err := svc.Register("alice@example.com", "hunter2hunter2", validReferralCode)
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	assert.Equal(t, 1, user.TokenVersion)
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, []uint{user.ID}, wallets.created)
	assert.Equal(t, []uint{user.ID}, referrals.registered)

	stored, err := store.Users().GetByEmail("alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2hunter2", stored.Password)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc, _, wallets, _ := newAuthFixture(t)

	_, _, _, err := svc.Register("alice@example.com", "short", validReferralCode)
	assert.ErrorIs(t, err, ErrWeakPassword)
	assert.Empty(t, wallets.created)
}

func TestRegisterRequiresReferralCode(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	_, _, _, err := svc.Register("alice@example.com", "hunter2hunter2", "")
	assert.ErrorIs(t, err, referral.ErrInvalidReferralCode)

	_, _, _, err = svc.Register("alice@example.com", "hunter2hunter2", "BOGUS")
	assert.ErrorIs(t, err, referral.ErrInvalidReferralCode)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	_, _, _, err := svc.Register("alice@example.com", "hunter2hunter2", validReferralCode)
	require.NoError(t, err)

	_, _, _, err = svc.Register("alice@example.com", "anotherpassword", validReferralCode)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	registered, _, _, err := svc.Register("alice@example.com", "hunter2hunter2", validReferralCode)
	require.NoError(t, err)

	user, access, refresh, err := svc.Login("alice@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	_, _, _, err = svc.Login("alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, _, err = svc.Login("nobody@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshTokens(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	_, _, refresh, err := svc.Register("alice@example.com", "hunter2hunter2", validReferralCode)
	require.NoError(t, err)

	access2, refresh2, err := svc.RefreshTokens(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, access2)
	assert.NotEmpty(t, refresh2)

	_, _, err = svc.RefreshTokens("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	user, _, refresh, err := svc.Register("alice@example.com", "hunter2hunter2", validReferralCode)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(user.ID))

	// The stored token version moved past the one embedded in the token.
	_, _, err = svc.RefreshTokens(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	version, err := svc.GetUserTokenVersion(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}
