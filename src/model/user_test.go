package model

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func userRows(id int, username string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "password", "email", "auth_provider", "is_email_verified",
		"email_verification_token", "email_verification_token_expires_at",
		"password_reset_token", "password_reset_token_expires_at",
	}).AddRow(id, username, "hashed", username+"@example.com", "local", true,
		nil, nil, nil, nil)
}

func TestCreateUserDefaultsToLocalProvider(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectPrepare("INSERT INTO users").
		ExpectExec().
		WithArgs("alice", "hashed", "alice@example.com", "local", false,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))

	user := &User{Username: "alice", Password: "hashed", Email: "alice@example.com"}
	require.NoError(t, user.CreateUser(db))

	assert.Equal(t, 7, user.ID)
	assert.Equal(t, "local", user.AuthProvider)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByUsername(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM users WHERE username = ?").
		WithArgs("alice").
		WillReturnRows(userRows(7, "alice"))

	user, err := GetUserByUsername(db, "alice")
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM users WHERE username = ?").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := GetUserByUsername(db, "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}

func TestUserHasTransactions(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	hasData, err := UserHasTransactions(db, 7)
	require.NoError(t, err)
	assert.True(t, hasData)
}

func TestGetSessionByRefreshToken(t *testing.T) {
	db, mock := newMockDB(t)

	expiresAt := time.Now().Add(time.Hour)
	mock.ExpectQuery("WHERE refresh_token = ?").
		WithArgs("opaque-refresh", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "token", "refresh_token", "user_agent",
			"client_ip", "is_blocked", "expires_at", "created_at",
		}).AddRow(1, 7, "access-jwt", "opaque-refresh", "test-agent",
			"127.0.0.1", false, expiresAt, time.Now()))

	session, err := GetSessionByRefreshToken(db, "opaque-refresh")
	require.NoError(t, err)
	assert.Equal(t, 7, session.UserID)
	assert.Equal(t, "access-jwt", session.Token)
}

func TestGetSessionByRefreshTokenMiss(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("WHERE refresh_token = ?").
		WithArgs("revoked", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := GetSessionByRefreshToken(db, "revoked")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestGetMappingsByFunds(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM fund_ticker_map WHERE fund_name IN").
		WithArgs("Vanguard 500", "Voya Large Cap").
		WillReturnRows(sqlmock.NewRows([]string{
			"fund_name", "ticker_symbol", "conversion_ratio", "created_at", "last_checked_at",
		}).
			AddRow("Vanguard 500", "VOO", 1.0, time.Now(), nil).
			AddRow("Voya Large Cap", "VTI", 15.577, time.Now(), nil))

	mappings, err := GetMappingsByFunds(db, []string{"Vanguard 500", "Voya Large Cap"})
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "VOO", mappings["Vanguard 500"].TickerSymbol)
	assert.Equal(t, 15.577, mappings["Voya Large Cap"].ConversionRatio)
}

func TestGetMappingsByFundsDefaultsRatio(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM fund_ticker_map WHERE fund_name IN").
		WithArgs("Fidelity 500").
		WillReturnRows(sqlmock.NewRows([]string{
			"fund_name", "ticker_symbol", "conversion_ratio", "created_at", "last_checked_at",
		}).AddRow("Fidelity 500", "FXAIX", 0.0, time.Now(), nil))

	mappings, err := GetMappingsByFunds(db, []string{"Fidelity 500"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, mappings["Fidelity 500"].ConversionRatio)
}

func TestGetMappingsByFundsEmptyInput(t *testing.T) {
	db, _ := newMockDB(t)

	mappings, err := GetMappingsByFunds(db, nil)
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestUpsertMapping(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO fund_ticker_map").
		WithArgs("Voya Large Cap", "VTI", 15.577, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := UpsertMapping(db, FundTickerMap{
		FundName:        "Voya Large Cap",
		TickerSymbol:    "VTI",
		ConversionRatio: 15.577,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMappingDefaultsRatio(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO fund_ticker_map").
		WithArgs("Vanguard 500", "VOO", 1.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := UpsertMapping(db, FundTickerMap{FundName: "Vanguard 500", TickerSymbol: "VOO"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllMappings(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("FROM fund_ticker_map ORDER BY fund_name").
		WillReturnRows(sqlmock.NewRows([]string{
			"fund_name", "ticker_symbol", "conversion_ratio", "created_at", "last_checked_at",
		}).
			AddRow("Fidelity 500", "FXAIX", 0.0, time.Now(), nil).
			AddRow("Voya Large Cap", "VTI", 15.577, time.Now(), nil))

	mappings, err := GetAllMappings(db)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "FXAIX", mappings[0].TickerSymbol)
	assert.Equal(t, 1.0, mappings[0].ConversionRatio)
	assert.Equal(t, 15.577, mappings[1].ConversionRatio)
}

func TestMarkEmailVerified(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE users SET is_email_verified").
		WithArgs(sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user := &User{ID: 7}
	require.NoError(t, user.MarkEmailVerified(db))
	assert.True(t, user.IsEmailVerified)
}
