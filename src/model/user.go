package model

import (
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID                               int            `json:"id"`
	Username                         string         `json:"username"`
	Email                            string         `json:"email"`
	Password                         string         `json:"-"`
	AuthProvider                     string         `json:"auth_provider"`
	IsEmailVerified                  bool           `json:"is_email_verified"`
	EmailVerificationToken           sql.NullString `json:"-"`
	EmailVerificationTokenExpiresAt  sql.NullTime   `json:"-"`
	PasswordResetToken               sql.NullString `json:"-"`
	PasswordResetTokenExpiresAt      sql.NullTime   `json:"-"`
	CreatedAt                        time.Time      `json:"created_at"`
	UpdatedAt                        time.Time      `json:"updated_at"`
}

type Session struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// HashPassword hashes the user's password using bcrypt.
func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a given password with the user's hashed password.
func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

// CreateUser inserts a new user into the database.
func (u *User) CreateUser(db *sql.DB) error {
	if u.AuthProvider == "" {
		u.AuthProvider = "local"
	}
	query := `
	INSERT INTO users (username, password, email, auth_provider, is_email_verified, email_verification_token, email_verification_token_expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(u.Username, u.Password, u.Email, u.AuthProvider, u.IsEmailVerified,
		u.EmailVerificationToken, u.EmailVerificationTokenExpiresAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = int(id)
	return nil
}

const userColumns = `id, username, password, email, auth_provider, is_email_verified,
	email_verification_token, email_verification_token_expires_at,
	password_reset_token, password_reset_token_expires_at`

func scanUser(row *sql.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.Password, &user.Email,
		&user.AuthProvider, &user.IsEmailVerified,
		&user.EmailVerificationToken, &user.EmailVerificationTokenExpiresAt,
		&user.PasswordResetToken, &user.PasswordResetTokenExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user from the database by their username.
func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// GetUserByEmail retrieves a user from the database by their email address.
func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// GetUserByID retrieves a user from the database by their primary key.
func GetUserByID(db *sql.DB, id int64) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByVerificationToken retrieves a user by a pending email
// verification token that has not expired.
func GetUserByVerificationToken(db *sql.DB, token string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users
		WHERE email_verification_token = ? AND email_verification_token_expires_at > ?`, token, time.Now()))
}

// GetUserByPasswordResetToken retrieves a user by an unexpired password
// reset token.
func GetUserByPasswordResetToken(db *sql.DB, token string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users
		WHERE password_reset_token = ? AND password_reset_token_expires_at > ?`, token, time.Now()))
}

// MarkEmailVerified clears the verification token and flags the account.
func (u *User) MarkEmailVerified(db *sql.DB) error {
	_, err := db.Exec(`UPDATE users SET is_email_verified = TRUE,
		email_verification_token = NULL, email_verification_token_expires_at = NULL,
		updated_at = ? WHERE id = ?`, time.Now(), u.ID)
	if err == nil {
		u.IsEmailVerified = true
	}
	return err
}

// SetPasswordResetToken stores a reset token and its expiry.
func (u *User) SetPasswordResetToken(db *sql.DB, token string, expiresAt time.Time) error {
	_, err := db.Exec(`UPDATE users SET password_reset_token = ?,
		password_reset_token_expires_at = ?, updated_at = ? WHERE id = ?`,
		token, expiresAt, time.Now(), u.ID)
	return err
}

// UpdatePassword replaces the stored hash and clears any reset token.
func (u *User) UpdatePassword(db *sql.DB, hashedPassword string) error {
	_, err := db.Exec(`UPDATE users SET password = ?, password_reset_token = NULL,
		password_reset_token_expires_at = NULL, updated_at = ? WHERE id = ?`,
		hashedPassword, time.Now(), u.ID)
	if err == nil {
		u.Password = hashedPassword
	}
	return err
}

// UserHasTransactions reports whether the user has any stored transactions.
func UserHasTransactions(db *sql.DB, userID int64) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(1) FROM transactions WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateSession inserts a new session into the database.
func CreateSession(db *sql.DB, session *Session) error {
	query := `
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	session.CreatedAt = time.Now()
	_, err = stmt.Exec(
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.UserAgent,
		session.ClientIP,
		session.IsBlocked,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

// GetSessionByToken retrieves an active, non-blocked session by its access token.
func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, token, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found, expired, or blocked")
		}
		return nil, err
	}
	return &session, nil
}

// GetSessionByRefreshToken retrieves an active session by its refresh
// token. Refresh tokens are opaque, so this lookup is the only way to
// validate one.
func GetSessionByRefreshToken(db *sql.DB, refreshToken string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE refresh_token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, refreshToken, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found, expired, or blocked")
		}
		return nil, err
	}
	return &session, nil
}

// DeleteSessionByToken removes a session from the database based on the access token.
func DeleteSessionByToken(db *sql.DB, token string) error {
	stmt, err := db.Prepare(`DELETE FROM sessions WHERE token = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	// A missing row is fine here: the session may already have expired.
	_, err = stmt.Exec(token)
	return err
}
