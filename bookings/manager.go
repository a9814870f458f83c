package bookings

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courierdesk/access"
	"courierdesk/pricing"
	"courierdesk/store"
)

// maxWriteAttempts bounds the read-validate-write loop under contention.
const maxWriteAttempts = 3

// Quoter prices a job. It never fails: unknown distances are estimated.
type Quoter interface {
	Quote(ctx context.Context, origin, destination store.Address, vehicle pricing.Vehicle, urgent bool) pricing.Quote
}

// Manager handles the booking lifecycle state machine.
type Manager struct {
	db           *store.DB
	quoter       Quoter
	emitter      EventEmitter
	modifyWindow time.Duration
	now          func() time.Time
	log          *zap.Logger
}

// NewManager creates a booking manager. emitter and log may be nil.
func NewManager(db *store.DB, quoter Quoter, emitter EventEmitter, modifyWindow time.Duration, log *zap.Logger) *Manager {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if modifyWindow <= 0 {
		modifyWindow = 30 * time.Minute
	}
	return &Manager{
		db:           db,
		quoter:       quoter,
		emitter:      emitter,
		modifyWindow: modifyWindow,
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		log:          log,
	}
}

// NewBooking is the customer-facing creation input.
type NewBooking struct {
	Collection     store.Address `json:"collection"`
	Delivery       store.Address `json:"delivery"`
	CollectionAt   time.Time     `json:"collection_at"`
	Urgent         bool          `json:"urgent"`
	VehicleType    string        `json:"vehicle_type"`
	ContactEmail   string        `json:"contact_email"`
	ContactPhone   string        `json:"contact_phone"`
	AdditionalInfo string        `json:"additional_info"`
}

// Partner identifies the courier a booking is handed to.
type Partner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

func validateAddress(v *ValidationError, prefix string, a store.Address) {
	if a.Name == "" {
		v.add(prefix+".name", "is required")
	}
	if a.AddressLine == "" {
		v.add(prefix+".address_line", "is required")
	}
	if a.Postcode == "" {
		v.add(prefix+".postcode", "is required")
	}
}

func validateContact(v *ValidationError, email, phone string) {
	if email == "" {
		v.add("contact_email", "is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		v.add("contact_email", "is not a valid address")
	}
	if phone == "" {
		v.add("contact_phone", "is required")
	}
}

// Create validates, prices and stores a new pending booking owned by caller.
func (m *Manager) Create(ctx context.Context, caller access.Caller, in NewBooking) (*store.Booking, error) {
	if err := access.Authorize(caller, access.ActionCreateBooking, "").Err(); err != nil {
		return nil, err
	}

	in.Collection = in.Collection.Normalized()
	in.Delivery = in.Delivery.Normalized()
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)

	var v ValidationError
	validateAddress(&v, "collection", in.Collection)
	validateAddress(&v, "delivery", in.Delivery)
	if in.CollectionAt.IsZero() {
		v.add("collection_at", "is required")
	}
	validateContact(&v, in.ContactEmail, in.ContactPhone)
	vehicle, err := pricing.ParseVehicle(in.VehicleType)
	if err != nil {
		v.add("vehicle_type", "must be bike or van")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	q := m.quoter.Quote(ctx, in.Collection, in.Delivery, vehicle, in.Urgent)
	if q.Downgraded {
		m.log.Info("bookings: bike over distance limit, booked as van", zap.Float64("miles", q.Miles))
	}

	now := m.now()
	b := &store.Booking{
		ID:              uuid.New().String(),
		UserID:          caller.UserID,
		Status:          StatusPending,
		Collection:      in.Collection,
		Delivery:        in.Delivery,
		CollectionAt:    in.CollectionAt.UTC(),
		Urgent:          in.Urgent,
		VehicleType:     string(q.Vehicle),
		BasePrice:       q.Base,
		VAT:             q.VAT,
		TotalPrice:      q.Total,
		ContactEmail:    in.ContactEmail,
		ContactPhone:    in.ContactPhone,
		AdditionalInfo:  strings.TrimSpace(in.AdditionalInfo),
		ModifiableUntil: now.Add(m.modifyWindow),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.db.CreateBooking(b, caller.Actor()); err != nil {
		return nil, persistenceErr(err)
	}
	m.log.Info("bookings: created", zap.String("id", b.ID), zap.String("user", b.UserID),
		zap.String("vehicle", b.VehicleType), zap.Float64("total", b.TotalPrice))
	m.emitter.EmitBookingCreated(b, caller.Actor())
	return b, nil
}

func (m *Manager) load(id string) (*store.Booking, error) {
	b, err := m.db.GetBooking(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistenceErr(err)
	}
	return b, nil
}

func denied(err error) error {
	if errors.Is(err, access.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Get returns one booking the caller may see.
func (m *Manager) Get(caller access.Caller, id string) (*store.Booking, error) {
	b, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(caller, access.ActionViewBooking, b.UserID).Err(); err != nil {
		return nil, denied(err)
	}
	return b, nil
}

// List returns bookings visible to caller. Customers only ever see their own.
func (m *Manager) List(caller access.Caller, f store.BookingFilter) ([]*store.Booking, error) {
	if !caller.IsAnonymous() && !caller.IsStaff() {
		f.UserID = caller.UserID
	} else if err := access.Authorize(caller, access.ActionListAllBookings, "").Err(); err != nil {
		return nil, err
	}
	if f.Status != "" && !IsKnownStatus(f.Status) {
		var v ValidationError
		v.add("status", "is not a booking status")
		return nil, &v
	}
	list, err := m.db.ListBookings(f)
	if err != nil {
		if errors.Is(err, store.ErrUnknownSort) {
			var v ValidationError
			v.add("sort", "is not a sortable field")
			return nil, &v
		}
		return nil, persistenceErr(err)
	}
	return list, nil
}

// History returns the status history of a booking the caller may see.
func (m *Manager) History(caller access.Caller, id string) ([]*store.BookingHistory, error) {
	if _, err := m.Get(caller, id); err != nil {
		return nil, err
	}
	h, err := m.db.ListBookingHistory(id)
	if err != nil {
		return nil, persistenceErr(err)
	}
	return h, nil
}

func (m *Manager) Confirm(caller access.Caller, id string) (*store.Booking, error) {
	return m.transition(caller, id, StatusConfirmed, "", nil, nil)
}

// Outsource hands a pending booking to a partner courier.
func (m *Manager) Outsource(caller access.Caller, id string, p Partner) (*store.Booking, error) {
	p.Name = strings.TrimSpace(p.Name)
	var v ValidationError
	if p.Name == "" {
		v.add("partner.name", "is required")
	}
	return m.transition(caller, id, StatusOutsourced, "outsourced to "+p.Name, v.orNil(), func(b *store.Booking, now time.Time) {
		b.OutsourcedTo = p.Name
		b.OutsourcedEmail = strings.TrimSpace(p.Email)
		b.OutsourcedPhone = strings.TrimSpace(p.Phone)
		b.OutsourcedNotes = strings.TrimSpace(p.Notes)
		b.OutsourcedAt = &now
	})
}

func (m *Manager) Decline(caller access.Caller, id, reason string) (*store.Booking, error) {
	reason = strings.TrimSpace(reason)
	var v ValidationError
	if reason == "" {
		v.add("reason", "is required")
	}
	return m.transition(caller, id, StatusDeclined, reason, v.orNil(), func(b *store.Booking, now time.Time) {
		b.DeclineReason = reason
		b.DeclinedAt = &now
	})
}

func (m *Manager) Complete(caller access.Caller, id string) (*store.Booking, error) {
	return m.transition(caller, id, StatusCompleted, "", nil, nil)
}

// Cancel is allowed from pending or confirmed whether or not the modify
// window has passed.
func (m *Manager) Cancel(caller access.Caller, id string) (*store.Booking, error) {
	return m.transition(caller, id, StatusCancelled, "", nil, nil)
}

// transition applies a status change with compare-and-swap on the booking
// version. invalid is reported only once the caller is known to be allowed.
// Re-applying the current status refreshes the timestamp and nothing else.
func (m *Manager) transition(caller access.Caller, id, to, detail string, invalid error, apply func(*store.Booking, time.Time)) (*store.Booking, error) {
	action := access.ActionProcessBooking
	if to == StatusCancelled {
		action = access.ActionCancelBooking
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		b, err := m.load(id)
		if err != nil {
			return nil, err
		}
		if err := access.Authorize(caller, action, b.UserID).Err(); err != nil {
			return nil, denied(err)
		}
		if invalid != nil {
			return nil, invalid
		}

		from := b.Status
		if from != to && !IsValidTransition(from, to) {
			return nil, &TransitionError{BookingID: id, From: from, To: to}
		}

		now := m.now()
		var hist *store.BookingHistory
		if from != to {
			b.Status = to
			if apply != nil {
				apply(b, now)
			}
			hist = &store.BookingHistory{OldStatus: from, NewStatus: to, Detail: detail, Actor: caller.Actor(), CreatedAt: now}
		}
		b.UpdatedAt = now

		err = m.db.UpdateBooking(b, b.Version, hist)
		switch {
		case errors.Is(err, store.ErrVersionConflict):
			m.log.Debug("bookings: version conflict, retrying", zap.String("id", id), zap.Int("attempt", attempt+1))
			continue
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrNotFound
		case err != nil:
			return nil, persistenceErr(err)
		}

		if from != to {
			m.log.Info("bookings: status changed", zap.String("id", id),
				zap.String("from", from), zap.String("to", to), zap.String("actor", caller.Actor()))
			m.emitter.EmitBookingStatusChanged(b, from, detail, caller.Actor())
		}
		return b, nil
	}
	return nil, ErrConflict
}

// Edit is an admin full-field edit. Nil fields are left as they are.
// Status is never editable here; it only moves through the transitions.
type Edit struct {
	Collection     *store.Address `json:"collection,omitempty"`
	Delivery       *store.Address `json:"delivery,omitempty"`
	CollectionAt   *time.Time     `json:"collection_at,omitempty"`
	Urgent         *bool          `json:"urgent,omitempty"`
	VehicleType    *string        `json:"vehicle_type,omitempty"`
	ContactEmail   *string        `json:"contact_email,omitempty"`
	ContactPhone   *string        `json:"contact_phone,omitempty"`
	AdditionalInfo *string        `json:"additional_info,omitempty"`
}

// Edit applies e and reprices the booking when a pricing input changed.
func (m *Manager) Edit(ctx context.Context, caller access.Caller, id string, e Edit) (*store.Booking, []string, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		b, err := m.load(id)
		if err != nil {
			return nil, nil, err
		}
		if err := access.Authorize(caller, access.ActionEditBooking, b.UserID).Err(); err != nil {
			return nil, nil, denied(err)
		}

		fields, reprice := applyEdit(b, e)
		var v ValidationError
		validateAddress(&v, "collection", b.Collection)
		validateAddress(&v, "delivery", b.Delivery)
		validateContact(&v, b.ContactEmail, b.ContactPhone)
		vehicle, verr := pricing.ParseVehicle(b.VehicleType)
		if verr != nil {
			v.add("vehicle_type", "must be bike or van")
		}
		if err := v.orNil(); err != nil {
			return nil, nil, err
		}
		if len(fields) == 0 {
			return b, nil, nil
		}

		if reprice {
			q := m.quoter.Quote(ctx, b.Collection, b.Delivery, vehicle, b.Urgent)
			b.VehicleType = string(q.Vehicle)
			b.BasePrice, b.VAT, b.TotalPrice = q.Base, q.VAT, q.Total
			fields = append(fields, "price")
		}
		b.UpdatedAt = m.now()

		err = m.db.UpdateBooking(b, b.Version, nil)
		switch {
		case errors.Is(err, store.ErrVersionConflict):
			continue
		case errors.Is(err, store.ErrNotFound):
			return nil, nil, ErrNotFound
		case err != nil:
			return nil, nil, persistenceErr(err)
		}
		m.emitter.EmitBookingUpdated(b, fields, caller.Actor())
		return b, fields, nil
	}
	return nil, nil, ErrConflict
}

// routeChanged reports whether the distance lookup for an address changes.
// Only the contact name is not part of the route query.
func routeChanged(old, updated store.Address) bool {
	old.Name, updated.Name = "", ""
	return old != updated
}

func applyEdit(b *store.Booking, e Edit) (fields []string, reprice bool) {
	if e.Collection != nil {
		if a := e.Collection.Normalized(); a != b.Collection {
			reprice = reprice || routeChanged(b.Collection, a)
			b.Collection = a
			fields = append(fields, "collection")
		}
	}
	if e.Delivery != nil {
		if a := e.Delivery.Normalized(); a != b.Delivery {
			reprice = reprice || routeChanged(b.Delivery, a)
			b.Delivery = a
			fields = append(fields, "delivery")
		}
	}
	if e.CollectionAt != nil && !e.CollectionAt.Equal(b.CollectionAt) {
		b.CollectionAt = e.CollectionAt.UTC()
		fields = append(fields, "collection_at")
	}
	if e.Urgent != nil && *e.Urgent != b.Urgent {
		b.Urgent = *e.Urgent
		reprice = true
		fields = append(fields, "urgent")
	}
	if e.VehicleType != nil {
		if v := strings.ToLower(strings.TrimSpace(*e.VehicleType)); v != b.VehicleType {
			b.VehicleType = v
			reprice = true
			fields = append(fields, "vehicle_type")
		}
	}
	if e.ContactEmail != nil && strings.TrimSpace(*e.ContactEmail) != b.ContactEmail {
		b.ContactEmail = strings.TrimSpace(*e.ContactEmail)
		fields = append(fields, "contact_email")
	}
	if e.ContactPhone != nil && strings.TrimSpace(*e.ContactPhone) != b.ContactPhone {
		b.ContactPhone = strings.TrimSpace(*e.ContactPhone)
		fields = append(fields, "contact_phone")
	}
	if e.AdditionalInfo != nil && strings.TrimSpace(*e.AdditionalInfo) != b.AdditionalInfo {
		b.AdditionalInfo = strings.TrimSpace(*e.AdditionalInfo)
		fields = append(fields, "additional_info")
	}
	return fields, reprice
}

// Delete removes a booking for good. Admin only; status is not consulted.
func (m *Manager) Delete(caller access.Caller, id string) error {
	b, err := m.load(id)
	if err != nil {
		return err
	}
	if err := access.Authorize(caller, access.ActionDeleteBooking, b.UserID).Err(); err != nil {
		return denied(err)
	}
	if err := m.db.DeleteBooking(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return persistenceErr(err)
	}
	m.log.Info("bookings: deleted", zap.String("id", id), zap.String("actor", caller.Actor()))
	m.emitter.EmitBookingDeleted(b, caller.Actor())
	return nil
}

// ImportResult summarises an Import call.
type ImportResult struct {
	Imported   []string          `json:"imported"`
	Duplicates []string          `json:"duplicates"`
	Rejected   map[string]string `json:"rejected,omitempty"`
}

// Import stores previously exported bookings verbatim. Existing ids are skipped.
func (m *Manager) Import(caller access.Caller, list []*store.Booking) (*ImportResult, error) {
	if err := access.Authorize(caller, access.ActionImportBookings, "").Err(); err != nil {
		return nil, err
	}
	res := &ImportResult{Imported: []string{}, Duplicates: []string{}}
	reject := func(id, why string) {
		if res.Rejected == nil {
			res.Rejected = make(map[string]string)
		}
		res.Rejected[id] = why
	}
	for i, b := range list {
		if b.ID == "" {
			reject(fmt.Sprintf("#%d", i), "missing booking id")
			continue
		}
		if !IsKnownStatus(b.Status) {
			reject(b.ID, fmt.Sprintf("unknown status %q", b.Status))
			continue
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = m.now()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = b.ModifiableUntil.Add(-m.modifyWindow)
		}
		err := m.db.ImportBooking(b, caller.Actor())
		switch {
		case errors.Is(err, store.ErrDuplicate):
			res.Duplicates = append(res.Duplicates, b.ID)
		case err != nil:
			return res, persistenceErr(err)
		default:
			res.Imported = append(res.Imported, b.ID)
		}
	}
	m.log.Info("bookings: import finished", zap.Int("imported", len(res.Imported)),
		zap.Int("duplicates", len(res.Duplicates)), zap.Int("rejected", len(res.Rejected)))
	return res, nil
}
