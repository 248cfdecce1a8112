package repositories

import "gorm.io/gorm"

// Store bundles all repositories over one *gorm.DB handle so that
// multi-step money movements can run inside a single database
// transaction via ExecuteInTransaction.
type Store interface {
	Users() UserRepository
	Wallets() WalletRepository
	Assets() AssetRepository
	Transactions() TransactionRepository
	Investments() InvestmentRepository
	Referrals() ReferralRepository

	// ExecuteInTransaction runs fn against a Store bound to one database
	// transaction. Any error aborts the whole unit.
	ExecuteInTransaction(fn func(Store) error) error
}

type store struct {
	db *gorm.DB
}

// NewStore creates a Store over the given database handle.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) Users() UserRepository               { return &userRepository{db: s.db} }
func (s *store) Wallets() WalletRepository           { return &walletRepository{db: s.db} }
func (s *store) Assets() AssetRepository             { return &assetRepository{db: s.db} }
func (s *store) Transactions() TransactionRepository { return &transactionRepository{db: s.db} }
func (s *store) Investments() InvestmentRepository   { return &investmentRepository{db: s.db} }
func (s *store) Referrals() ReferralRepository       { return &referralRepository{db: s.db} }

func (s *store) ExecuteInTransaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&store{db: tx})
	})
}
