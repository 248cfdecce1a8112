package repositories

import (
	"testing"
	"time"

	"veyra/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockTxRepo(t *testing.T) (TransactionRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	return NewTransactionRepository(db), mock
}

// The lease is a conditional UPDATE: it only fires when the lock column
// is empty or past the timeout, so of two concurrent acquirers exactly
// one sees an affected row.
func TestAcquireLockExactlyOneWinner(t *testing.T) {
	repo, mock := newMockTxRepo(t)

	leaseUpdate := `UPDATE "transactions" SET .+ WHERE id = \$\d+ AND \(locked_at IS NULL OR locked_at < \$\d+\)`
	mock.ExpectExec(leaseUpdate).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(leaseUpdate).WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.AcquireLock(42, "watcher-polygon-a", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.AcquireLock(42, "watcher-polygon-b", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClaimableExcludesLiveLeases(t *testing.T) {
	repo, mock := newMockTxRepo(t)

	// The expired-lease predicate must be part of the listing itself,
	// not only of the subsequent lock attempt.
	mock.ExpectQuery(`SELECT .+ FROM "transactions" WHERE \(locked_at IS NULL OR locked_at < \$\d+\) AND .*chain = \$\d+ AND tx_type = \$\d+.* ORDER BY created_at ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "chain", "tx_type"}))

	txs, err := repo.ListClaimable(LeaseQuery{
		Chain:  "polygon",
		TxType: models.TxTypeDeposit,
		Limit:  20,
	}, 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, txs)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanStaleLocksUsesCutoff(t *testing.T) {
	repo, mock := newMockTxRepo(t)

	mock.ExpectExec(`UPDATE "transactions" SET .+ WHERE locked_at < \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.CleanStaleLocks(5 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
