package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Address struct {
	Name        string `json:"name"`
	AddressLine string `json:"address_line"`
	Street      string `json:"street"`
	City        string `json:"city"`
	Town        string `json:"town"`
	County      string `json:"county"`
	Building    string `json:"building"`
	Postcode    string `json:"postcode"`
}

// NormalizePostcode trims and uppercases a UK postcode.
func NormalizePostcode(pc string) string {
	return strings.ToUpper(strings.TrimSpace(pc))
}

// Normalized returns a copy with trimmed fields and a normalized postcode.
func (a Address) Normalized() Address {
	a.Name = strings.TrimSpace(a.Name)
	a.AddressLine = strings.TrimSpace(a.AddressLine)
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.Town = strings.TrimSpace(a.Town)
	a.County = strings.TrimSpace(a.County)
	a.Building = strings.TrimSpace(a.Building)
	a.Postcode = NormalizePostcode(a.Postcode)
	return a
}

type Booking struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	Collection   Address   `json:"collection"`
	Delivery     Address   `json:"delivery"`
	CollectionAt time.Time `json:"collection_at"`
	Urgent       bool      `json:"urgent"`
	VehicleType  string    `json:"vehicle_type"`

	BasePrice  float64 `json:"base_price"`
	VAT        float64 `json:"vat"`
	TotalPrice float64 `json:"total_price"`

	ContactEmail   string `json:"contact_email"`
	ContactPhone   string `json:"contact_phone"`
	AdditionalInfo string `json:"additional_info"`

	OutsourcedTo    string     `json:"outsourced_to,omitempty"`
	OutsourcedEmail string     `json:"outsourced_email,omitempty"`
	OutsourcedPhone string     `json:"outsourced_phone,omitempty"`
	OutsourcedNotes string     `json:"outsourced_notes,omitempty"`
	OutsourcedAt    *time.Time `json:"outsourced_at,omitempty"`
	DeclineReason   string     `json:"decline_reason,omitempty"`
	DeclinedAt      *time.Time `json:"declined_at,omitempty"`

	ModifiableUntil time.Time `json:"modifiable_until"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"timestamp"`
	Version         int64     `json:"version"`
}

type BookingHistory struct {
	ID        int64     `json:"id"`
	BookingID string    `json:"booking_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Detail    string    `json:"detail"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingFilter narrows ListBookings. Zero values mean "any".
type BookingFilter struct {
	UserID string
	Status string
	Search string
	Sort   string // created, timestamp, date, total, status
	Asc    bool
	Limit  int
}

var bookingSortColumns = map[string]string{
	"":          "updated_at",
	"timestamp": "updated_at",
	"created":   "created_at",
	"date":      "collection_at",
	"total":     "total_price",
	"status":    "status",
}

const bookingSelectCols = `id, user_id, status,
	collection_name, collection_address, collection_street, collection_city, collection_town, collection_county, collection_building, collection_postcode,
	delivery_name, delivery_address, delivery_street, delivery_city, delivery_town, delivery_county, delivery_building, delivery_postcode,
	collection_at, urgent, vehicle_type, base_price, vat, total_price,
	contact_email, contact_phone, additional_info,
	outsourced_to, outsourced_email, outsourced_phone, outsourced_notes, outsourced_at, decline_reason, declined_at,
	modifiable_until, created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*Booking, error) {
	var b Booking
	var collectionAt, outsourcedAt, declinedAt, modifiableUntil, createdAt, updatedAt any
	c, d := &b.Collection, &b.Delivery

	err := row.Scan(&b.ID, &b.UserID, &b.Status,
		&c.Name, &c.AddressLine, &c.Street, &c.City, &c.Town, &c.County, &c.Building, &c.Postcode,
		&d.Name, &d.AddressLine, &d.Street, &d.City, &d.Town, &d.County, &d.Building, &d.Postcode,
		&collectionAt, &b.Urgent, &b.VehicleType, &b.BasePrice, &b.VAT, &b.TotalPrice,
		&b.ContactEmail, &b.ContactPhone, &b.AdditionalInfo,
		&b.OutsourcedTo, &b.OutsourcedEmail, &b.OutsourcedPhone, &b.OutsourcedNotes, &outsourcedAt,
		&b.DeclineReason, &declinedAt,
		&modifiableUntil, &createdAt, &updatedAt, &b.Version)
	if err != nil {
		return nil, err
	}
	b.CollectionAt = parseTime(collectionAt)
	b.OutsourcedAt = parseTimePtr(outsourcedAt)
	b.DeclinedAt = parseTimePtr(declinedAt)
	b.ModifiableUntil = parseTime(modifiableUntil)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]*Booking, error) {
	var bookings []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// bookingArgs returns every column after id, in bookingSelectCols order minus version.
func (db *DB) bookingArgs(b *Booking) []any {
	c, d := b.Collection.Normalized(), b.Delivery.Normalized()
	return []any{
		b.UserID, b.Status,
		c.Name, c.AddressLine, c.Street, c.City, c.Town, c.County, c.Building, c.Postcode,
		d.Name, d.AddressLine, d.Street, d.City, d.Town, d.County, d.Building, d.Postcode,
		db.timeArg(b.CollectionAt), boolInt(b.Urgent), b.VehicleType, b.BasePrice, b.VAT, b.TotalPrice,
		b.ContactEmail, b.ContactPhone, b.AdditionalInfo,
		b.OutsourcedTo, b.OutsourcedEmail, b.OutsourcedPhone, b.OutsourcedNotes, db.timePtrArg(b.OutsourcedAt),
		b.DeclineReason, db.timePtrArg(b.DeclinedAt),
		db.timeArg(b.ModifiableUntil), db.timeArg(b.CreatedAt), db.timeArg(b.UpdatedAt),
	}
}

const bookingInsertSQL = `INSERT INTO bookings (id, user_id, status,
	collection_name, collection_address, collection_street, collection_city, collection_town, collection_county, collection_building, collection_postcode,
	delivery_name, delivery_address, delivery_street, delivery_city, delivery_town, delivery_county, delivery_building, delivery_postcode,
	collection_at, urgent, vehicle_type, base_price, vat, total_price,
	contact_email, contact_phone, additional_info,
	outsourced_to, outsourced_email, outsourced_phone, outsourced_notes, outsourced_at, decline_reason, declined_at,
	modifiable_until, created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const bookingUpdateSQL = `UPDATE bookings SET user_id=?, status=?,
	collection_name=?, collection_address=?, collection_street=?, collection_city=?, collection_town=?, collection_county=?, collection_building=?, collection_postcode=?,
	delivery_name=?, delivery_address=?, delivery_street=?, delivery_city=?, delivery_town=?, delivery_county=?, delivery_building=?, delivery_postcode=?,
	collection_at=?, urgent=?, vehicle_type=?, base_price=?, vat=?, total_price=?,
	contact_email=?, contact_phone=?, additional_info=?,
	outsourced_to=?, outsourced_email=?, outsourced_phone=?, outsourced_notes=?, outsourced_at=?, decline_reason=?, declined_at=?,
	modifiable_until=?, created_at=?, updated_at=?, version=version+1
	WHERE id=? AND version=?`

func (db *DB) insertBooking(tx *sql.Tx, b *Booking) error {
	if b.Version == 0 {
		b.Version = 1
	}
	args := append([]any{b.ID}, db.bookingArgs(b)...)
	args = append(args, b.Version)
	_, err := tx.Exec(db.Q(bookingInsertSQL), args...)
	return err
}

func (db *DB) insertHistory(tx *sql.Tx, h *BookingHistory) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	_, err := tx.Exec(db.Q(`INSERT INTO booking_history (booking_id, old_status, new_status, detail, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		h.BookingID, h.OldStatus, h.NewStatus, h.Detail, h.Actor, db.timeArg(h.CreatedAt))
	return err
}

func (db *DB) bookingExists(q interface {
	QueryRow(string, ...any) *sql.Row
}, id string) (bool, error) {
	var n int
	if err := q.QueryRow(db.Q(`SELECT COUNT(*) FROM bookings WHERE id=?`), id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateBooking inserts a new booking and its first history row. The caller
// supplies the id and every timestamp.
func (db *DB) CreateBooking(b *Booking, actor string) error {
	b.Collection = b.Collection.Normalized()
	b.Delivery = b.Delivery.Normalized()
	err := db.withTx(func(tx *sql.Tx) error {
		if err := db.insertBooking(tx, b); err != nil {
			return err
		}
		return db.insertHistory(tx, &BookingHistory{
			BookingID: b.ID, NewStatus: b.Status, Detail: "created", Actor: actor, CreatedAt: b.CreatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// ImportBooking inserts a booking carrying its own id. An existing id is
// reported as ErrDuplicate and left untouched.
func (db *DB) ImportBooking(b *Booking, actor string) error {
	b.Collection = b.Collection.Normalized()
	b.Delivery = b.Delivery.Normalized()
	err := db.withTx(func(tx *sql.Tx) error {
		exists, err := db.bookingExists(tx, b.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicate
		}
		if err := db.insertBooking(tx, b); err != nil {
			return err
		}
		return db.insertHistory(tx, &BookingHistory{
			BookingID: b.ID, NewStatus: b.Status, Detail: "imported", Actor: actor,
		})
	})
	if err != nil {
		return fmt.Errorf("import booking %s: %w", b.ID, err)
	}
	return nil
}

func (db *DB) GetBooking(id string) (*Booking, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM bookings WHERE id=?`, bookingSelectCols)), id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// likeEscaper makes search terms match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (db *DB) ListBookings(f BookingFilter) ([]*Booking, error) {
	var where []string
	var args []any
	if f.UserID != "" {
		where = append(where, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, f.Status)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		like := "%" + likeEscaper.Replace(s) + "%"
		where = append(where, `(LOWER(id) LIKE ? ESCAPE '\' OR LOWER(collection_name) LIKE ? ESCAPE '\' OR LOWER(delivery_name) LIKE ? ESCAPE '\'
			OR LOWER(collection_postcode) LIKE ? ESCAPE '\' OR LOWER(delivery_postcode) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like, like, like)
	}

	col, ok := bookingSortColumns[f.Sort]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSort, f.Sort)
	}
	dir := "DESC"
	if f.Asc {
		dir = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM bookings`, bookingSelectCols)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// UpdateBooking replaces the stored row with b if its version still equals
// expectedVersion. The history row, when given, is written in the same
// transaction. On success b.Version is advanced.
func (db *DB) UpdateBooking(b *Booking, expectedVersion int64, h *BookingHistory) error {
	b.Collection = b.Collection.Normalized()
	b.Delivery = b.Delivery.Normalized()
	err := db.withTx(func(tx *sql.Tx) error {
		args := append(db.bookingArgs(b), b.ID, expectedVersion)
		res, err := tx.Exec(db.Q(bookingUpdateSQL), args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			exists, err := db.bookingExists(tx, b.ID)
			if err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrVersionConflict
		}
		if h != nil {
			h.BookingID = b.ID
			return db.insertHistory(tx, h)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}
	b.Version = expectedVersion + 1
	return nil
}

// DeleteBooking removes one booking and its history.
func (db *DB) DeleteBooking(id string) error {
	err := db.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(db.Q(`DELETE FROM bookings WHERE id=?`), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(db.Q(`DELETE FROM booking_history WHERE booking_id=?`), id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete booking %s: %w", id, err)
	}
	return nil
}

func (db *DB) ListBookingHistory(bookingID string) ([]*BookingHistory, error) {
	rows, err := db.Query(db.Q(`SELECT id, booking_id, old_status, new_status, detail, actor, created_at FROM booking_history WHERE booking_id=? ORDER BY id`), bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hist []*BookingHistory
	for rows.Next() {
		var h BookingHistory
		var createdAt any
		if err := rows.Scan(&h.ID, &h.BookingID, &h.OldStatus, &h.NewStatus, &h.Detail, &h.Actor, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		hist = append(hist, &h)
	}
	return hist, rows.Err()
}

// CountBookingsByUser returns booking totals keyed by owning user id.
func (db *DB) CountBookingsByUser() (map[string]int, error) {
	rows, err := db.Query(`SELECT user_id, COUNT(*) FROM bookings GROUP BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var uid string
		var n int
		if err := rows.Scan(&uid, &n); err != nil {
			return nil, err
		}
		counts[uid] = n
	}
	return counts, rows.Err()
}
