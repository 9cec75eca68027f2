package txstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/ledger/internal/model"
	"github.com/meridianfi/ledger/internal/testutil"
	"github.com/meridianfi/ledger/internal/txstore"
	ledgermigrations "github.com/meridianfi/ledger/migrations/ledger"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *txstore.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = txstore.New(ctx, tc.DSN, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.RunMigrations(ctx, ledgermigrations.FS); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func createTestUser(t *testing.T, prefix string) model.User {
	t.Helper()
	user, err := testDB.CreateUser(context.Background(), model.User{
		Username:     prefix + "-" + uuid.NewString()[:8],
		Email:        prefix + "-" + uuid.NewString()[:8] + "@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return user
}

func insertTestTransaction(t *testing.T, userID uuid.UUID, req model.CreateTransactionRequest) model.Transaction {
	t.Helper()
	ctx := context.Background()

	tx := model.NewTransaction(userID, req)
	sess, err := testDB.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Insert(ctx, tx))
	require.NoError(t, sess.Commit(ctx))
	return tx
}

func TestCreateAndGetUser(t *testing.T) {
	ctx := context.Background()

	user := createTestUser(t, "alice")
	assert.NotEqual(t, uuid.Nil, user.ID)

	got, err := testDB.GetUserByUsername(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Email, got.Email)

	byID, err := testDB.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, byID.Username)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	ctx := context.Background()

	user := createTestUser(t, "dup")
	_, err := testDB.CreateUser(ctx, model.User{
		Username:     user.Username,
		Email:        "other-" + uuid.NewString()[:8] + "@example.com",
		PasswordHash: "x",
	})
	require.Error(t, err)
	assert.True(t, txstore.IsUniqueViolation(err))
}

func TestGetUserNotFound(t *testing.T) {
	_, err := testDB.GetUserByUsername(context.Background(), "no-such-user")
	assert.ErrorIs(t, err, txstore.ErrNotFound)
}

func TestInsertCommitAndGetTransaction(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "txn")

	desc := "coffee"
	tx := insertTestTransaction(t, user.ID, model.CreateTransactionRequest{
		Amount:      decimal.RequireFromString("12.50"),
		Currency:    model.CurrencyUSD,
		Description: &desc,
		Metadata:    map[string]any{"merchant": "blue bottle"},
	})

	got, err := testDB.GetTransaction(ctx, tx.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12.50")), "got %s", got.Amount)
	assert.Equal(t, model.CurrencyUSD, got.Currency)
	assert.Equal(t, model.StatusPending, got.Status)
	require.NotNil(t, got.Description)
	assert.Equal(t, "coffee", *got.Description)
	assert.Equal(t, "blue bottle", got.Metadata["merchant"])
}

func TestRollbackDiscardsInsert(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "rb")

	tx := model.NewTransaction(user.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("99.99"),
		Currency: model.CurrencyEUR,
	})
	sess, err := testDB.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Insert(ctx, tx))
	require.NoError(t, sess.Rollback(ctx))

	_, err = testDB.GetTransaction(ctx, tx.ID, user.ID)
	assert.ErrorIs(t, err, txstore.ErrNotFound)
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "rbc")

	tx := model.NewTransaction(user.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("1.00"),
		Currency: model.CurrencyUSD,
	})
	sess, err := testDB.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Insert(ctx, tx))
	require.NoError(t, sess.Commit(ctx))
	require.NoError(t, sess.Rollback(ctx))
}

func TestGetTransactionWrongOwner(t *testing.T) {
	ctx := context.Background()
	owner := createTestUser(t, "owner")
	other := createTestUser(t, "other")

	tx := insertTestTransaction(t, owner.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("50.00"),
		Currency: model.CurrencyGBP,
	})

	_, err := testDB.GetTransaction(ctx, tx.ID, other.ID)
	assert.ErrorIs(t, err, txstore.ErrNotFound)
}

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "upd")

	tx := insertTestTransaction(t, user.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("10.00"),
		Currency: model.CurrencyUSD,
	})

	sess, err := testDB.Begin(ctx)
	require.NoError(t, err)
	locked, err := sess.GetForUpdate(ctx, tx.ID, user.ID)
	require.NoError(t, err)

	locked.Amount = decimal.RequireFromString("25.75")
	locked.Status = model.StatusCompleted
	require.NoError(t, sess.Update(ctx, locked))
	require.NoError(t, sess.Commit(ctx))

	got, err := testDB.GetTransaction(ctx, tx.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("25.75")))
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestGetForUpdateWrongOwner(t *testing.T) {
	ctx := context.Background()
	owner := createTestUser(t, "lockown")
	other := createTestUser(t, "lockoth")

	tx := insertTestTransaction(t, owner.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("5.00"),
		Currency: model.CurrencyUSD,
	})

	sess, err := testDB.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)

	_, err = sess.GetForUpdate(ctx, tx.ID, other.ID)
	assert.ErrorIs(t, err, txstore.ErrNotFound)
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "del")

	tx := insertTestTransaction(t, user.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("3.33"),
		Currency: model.CurrencyCAD,
	})

	sess, err := testDB.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Delete(ctx, tx.ID, user.ID))
	require.NoError(t, sess.Commit(ctx))

	_, err = testDB.GetTransaction(ctx, tx.ID, user.ID)
	assert.ErrorIs(t, err, txstore.ErrNotFound)

	sess2, err := testDB.Begin(ctx)
	require.NoError(t, err)
	defer sess2.Rollback(ctx)
	err = sess2.Delete(ctx, tx.ID, user.ID)
	assert.ErrorIs(t, err, txstore.ErrNotFound)
}

func TestListTransactionsFilterAndSort(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "list")

	amounts := []string{"10.00", "20.00", "30.00"}
	for _, a := range amounts {
		insertTestTransaction(t, user.ID, model.CreateTransactionRequest{
			Amount:   decimal.RequireFromString(a),
			Currency: model.CurrencyUSD,
		})
	}
	insertTestTransaction(t, user.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("40.00"),
		Currency: model.CurrencyEUR,
	})

	usd := model.CurrencyUSD
	items, total, err := testDB.ListTransactions(ctx, user.ID, model.TransactionFilter{
		Currency:  &usd,
		SortBy:    "amount",
		SortOrder: model.SortAsc,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, items, 3)
	assert.True(t, items[0].Amount.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, items[2].Amount.Equal(decimal.RequireFromString("30.00")))

	min := decimal.RequireFromString("15.00")
	items, total, err = testDB.ListTransactions(ctx, user.ID, model.TransactionFilter{
		MinAmount: &min,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, items, 3)

	// Default sort is created_at descending; last inserted comes first.
	items, _, err = testDB.ListTransactions(ctx, user.ID, model.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, items, 4)
}

func TestListTransactionsPagination(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "page")

	for i := 0; i < 5; i++ {
		insertTestTransaction(t, user.ID, model.CreateTransactionRequest{
			Amount:   decimal.New(int64(i+1), 0),
			Currency: model.CurrencyUSD,
		})
	}

	f := model.TransactionFilter{SortBy: "amount", SortOrder: model.SortAsc}
	f.Page = 2
	f.Limit = 2
	items, total, err := testDB.ListTransactions(ctx, user.ID, f)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, items, 2)
	assert.True(t, items[0].Amount.Equal(decimal.New(3, 0)))
}

func TestListTransactionsOnlyOwnRows(t *testing.T) {
	ctx := context.Background()
	a := createTestUser(t, "iso-a")
	b := createTestUser(t, "iso-b")

	insertTestTransaction(t, a.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("7.00"),
		Currency: model.CurrencyUSD,
	})

	items, total, err := testDB.ListTransactions(ctx, b.ID, model.TransactionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	assert.Empty(t, items)
}

func TestAmountCheckConstraint(t *testing.T) {
	ctx := context.Background()
	user := createTestUser(t, "chk")

	tx := model.NewTransaction(user.ID, model.CreateTransactionRequest{
		Amount:   decimal.RequireFromString("1.00"),
		Currency: model.CurrencyUSD,
	})
	tx.Amount = decimal.RequireFromString("-1.00")

	sess, err := testDB.Begin(ctx)
	require.NoError(t, err)
	defer sess.Rollback(ctx)
	err = sess.Insert(ctx, tx)
	require.Error(t, err)
}
