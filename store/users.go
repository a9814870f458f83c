package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Company      string    `json:"company"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`

	ViewCustomers  bool `json:"view_customers"`
	ManageBookings bool `json:"manage_bookings"`
	ViewPricing    bool `json:"view_pricing"`
	ManagePricing  bool `json:"manage_pricing"`

	BookingCount int `json:"booking_count,omitempty"`
}

const userSelectCols = `id, email, name, company, phone, password_hash, role, perm_view_customers, perm_manage_bookings, perm_view_pricing, perm_manage_pricing, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var createdAt any
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Company, &u.Phone, &u.PasswordHash, &u.Role,
		&u.ViewCustomers, &u.ManageBookings, &u.ViewPricing, &u.ManagePricing, &createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// CreateUser stores a user. Emails are matched case-insensitively; a taken
// email returns ErrDuplicate.
func (db *DB) CreateUser(u *User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	return db.withTx(func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow(db.Q(`SELECT COUNT(*) FROM users WHERE email=?`), u.Email).Scan(&n); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if n > 0 {
			return ErrDuplicate
		}
		_, err := tx.Exec(db.Q(`INSERT INTO users (id, email, name, company, phone, password_hash, role, perm_view_customers, perm_manage_bookings, perm_view_pricing, perm_manage_pricing, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			u.ID, u.Email, u.Name, u.Company, u.Phone, u.PasswordHash, u.Role,
			boolInt(u.ViewCustomers), boolInt(u.ManageBookings), boolInt(u.ViewPricing), boolInt(u.ManagePricing),
			db.timeArg(u.CreatedAt))
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

func (db *DB) GetUser(id string) (*User, error) {
	u, err := scanUser(db.QueryRow(db.Q(`SELECT `+userSelectCols+` FROM users WHERE id=?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (db *DB) GetUserByEmail(email string) (*User, error) {
	u, err := scanUser(db.QueryRow(db.Q(`SELECT `+userSelectCols+` FROM users WHERE email=?`), strings.ToLower(strings.TrimSpace(email))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// ListUsers returns users with the given role ("" for all), with booking counts.
func (db *DB) ListUsers(role string) ([]*User, error) {
	query := `SELECT ` + userSelectCols + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY email`
	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts, err := db.CountBookingsByUser()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.BookingCount = counts[u.ID]
	}
	return users, nil
}

// UpdateUserProfile changes the self-service fields of a user. A new email
// already used by someone else returns ErrDuplicate.
func (db *DB) UpdateUserProfile(id, email, name, company, phone string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	return db.withTx(func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRow(db.Q(`SELECT COUNT(*) FROM users WHERE email=? AND id<>?`), email, id).Scan(&n); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		if n > 0 {
			return ErrDuplicate
		}
		res, err := tx.Exec(db.Q(`UPDATE users SET email=?, name=?, company=?, phone=? WHERE id=?`), email, name, company, phone, id)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UpdateUserRole sets role and permission flags. Sessions already open keep
// their snapshot until the user signs in again.
func (db *DB) UpdateUserRole(id, role string, viewCustomers, manageBookings, viewPricing, managePricing bool) error {
	res, err := db.Exec(db.Q(`UPDATE users SET role=?, perm_view_customers=?, perm_manage_bookings=?, perm_view_pricing=?, perm_manage_pricing=? WHERE id=?`),
		role, boolInt(viewCustomers), boolInt(manageBookings), boolInt(viewPricing), boolInt(managePricing), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) AdminExists() (bool, error) {
	var count int
	err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM users WHERE role=?`), "admin").Scan(&count)
	return count > 0, err
}
