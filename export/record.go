// Package export converts bookings to and from the flat record used by the
// CSV export and the spreadsheet mirror. The key names, their order and the
// value formats are fixed; existing spreadsheet consumers depend on them.
package export

import (
	"fmt"
	"strconv"
	"time"

	"courierdesk/store"
)

// Value layouts. Times are rendered in UTC.
const (
	DateLayout      = "02/01/2006"
	TimeLayout      = "3:04 PM"
	TimestampLayout = "02/01/2006, 15:04:05"
)

// Record is one booking as a flat row of strings.
type Record struct {
	BookingID          string `json:"bookingId"`
	CollectionName     string `json:"collectionName"`
	CollectionAddress  string `json:"collectionAddress"`
	CollectionStreet   string `json:"collectionStreet"`
	CollectionCity     string `json:"collectionCity"`
	CollectionCounty   string `json:"collectionCounty"`
	CollectionBuilding string `json:"collectionBuilding"`
	CollectionPostcode string `json:"collectionPostcode"`
	DeliveryName       string `json:"deliveryName"`
	DeliveryAddress    string `json:"deliveryAddress"`
	DeliveryStreet     string `json:"deliveryStreet"`
	DeliveryCity       string `json:"deliveryCity"`
	DeliveryCounty     string `json:"deliveryCounty"`
	DeliveryBuilding   string `json:"deliveryBuilding"`
	DeliveryPostcode   string `json:"deliveryPostcode"`
	Date               string `json:"date"`
	DeliveryTime       string `json:"deliveryTime"`
	IsUrgent           string `json:"isUrgent"`
	VehicleType        string `json:"vehicleType"`
	BasePrice          string `json:"basePrice"`
	VAT                string `json:"vat"`
	TotalPrice         string `json:"totalPrice"`
	UserID             string `json:"userId"`
	Status             string `json:"status"`
	ModifiableUntil    string `json:"modifiableUntil"`
	ContactEmail       string `json:"contactEmail"`
	ContactPhone       string `json:"contactPhone"`
	AdditionalInfo     string `json:"additionalInfo"`
	Timestamp          string `json:"timestamp"`

	OutsourcedTo    string `json:"outsourcedTo,omitempty"`
	OutsourcedEmail string `json:"outsourcedEmail,omitempty"`
	OutsourcedPhone string `json:"outsourcedPhone,omitempty"`
	OutsourcedNotes string `json:"outsourcedNotes,omitempty"`
	OutsourcedAt    string `json:"outsourcedAt,omitempty"`
	DeclineReason   string `json:"declineReason,omitempty"`
	DeclinedAt      string `json:"declinedAt,omitempty"`
}

type column struct {
	key      string
	optional bool
	field    func(*Record) *string
}

var columns = []column{
	{"bookingId", false, func(r *Record) *string { return &r.BookingID }},
	{"collectionName", false, func(r *Record) *string { return &r.CollectionName }},
	{"collectionAddress", false, func(r *Record) *string { return &r.CollectionAddress }},
	{"collectionStreet", false, func(r *Record) *string { return &r.CollectionStreet }},
	{"collectionCity", false, func(r *Record) *string { return &r.CollectionCity }},
	{"collectionCounty", false, func(r *Record) *string { return &r.CollectionCounty }},
	{"collectionBuilding", false, func(r *Record) *string { return &r.CollectionBuilding }},
	{"collectionPostcode", false, func(r *Record) *string { return &r.CollectionPostcode }},
	{"deliveryName", false, func(r *Record) *string { return &r.DeliveryName }},
	{"deliveryAddress", false, func(r *Record) *string { return &r.DeliveryAddress }},
	{"deliveryStreet", false, func(r *Record) *string { return &r.DeliveryStreet }},
	{"deliveryCity", false, func(r *Record) *string { return &r.DeliveryCity }},
	{"deliveryCounty", false, func(r *Record) *string { return &r.DeliveryCounty }},
	{"deliveryBuilding", false, func(r *Record) *string { return &r.DeliveryBuilding }},
	{"deliveryPostcode", false, func(r *Record) *string { return &r.DeliveryPostcode }},
	{"date", false, func(r *Record) *string { return &r.Date }},
	{"deliveryTime", false, func(r *Record) *string { return &r.DeliveryTime }},
	{"isUrgent", false, func(r *Record) *string { return &r.IsUrgent }},
	{"vehicleType", false, func(r *Record) *string { return &r.VehicleType }},
	{"basePrice", false, func(r *Record) *string { return &r.BasePrice }},
	{"vat", false, func(r *Record) *string { return &r.VAT }},
	{"totalPrice", false, func(r *Record) *string { return &r.TotalPrice }},
	{"userId", false, func(r *Record) *string { return &r.UserID }},
	{"status", false, func(r *Record) *string { return &r.Status }},
	{"modifiableUntil", false, func(r *Record) *string { return &r.ModifiableUntil }},
	{"contactEmail", false, func(r *Record) *string { return &r.ContactEmail }},
	{"contactPhone", false, func(r *Record) *string { return &r.ContactPhone }},
	{"additionalInfo", false, func(r *Record) *string { return &r.AdditionalInfo }},
	{"timestamp", false, func(r *Record) *string { return &r.Timestamp }},
	{"outsourcedTo", true, func(r *Record) *string { return &r.OutsourcedTo }},
	{"outsourcedEmail", true, func(r *Record) *string { return &r.OutsourcedEmail }},
	{"outsourcedPhone", true, func(r *Record) *string { return &r.OutsourcedPhone }},
	{"outsourcedNotes", true, func(r *Record) *string { return &r.OutsourcedNotes }},
	{"outsourcedAt", true, func(r *Record) *string { return &r.OutsourcedAt }},
	{"declineReason", true, func(r *Record) *string { return &r.DeclineReason }},
	{"declinedAt", true, func(r *Record) *string { return &r.DeclinedAt }},
}

// Keys lists the record's keys in export order. Side keys appear only when set.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(columns))
	for _, c := range columns {
		if c.optional && *c.field(r) == "" {
			continue
		}
		keys = append(keys, c.key)
	}
	return keys
}

// Get returns the value stored under key, or "" for an unknown key.
func (r *Record) Get(key string) string {
	for _, c := range columns {
		if c.key == key {
			return *c.field(r)
		}
	}
	return ""
}

// Set assigns a value by key. It reports false for an unknown key.
func (r *Record) Set(key, value string) bool {
	for _, c := range columns {
		if c.key == key {
			*c.field(r) = value
			return true
		}
	}
	return false
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func rfc3339(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FromBooking flattens b. The address town has no column and is dropped.
func FromBooking(b *store.Booking) Record {
	c, d := b.Collection, b.Delivery
	at := b.CollectionAt.UTC()
	return Record{
		BookingID:          b.ID,
		CollectionName:     c.Name,
		CollectionAddress:  c.AddressLine,
		CollectionStreet:   c.Street,
		CollectionCity:     c.City,
		CollectionCounty:   c.County,
		CollectionBuilding: c.Building,
		CollectionPostcode: c.Postcode,
		DeliveryName:       d.Name,
		DeliveryAddress:    d.AddressLine,
		DeliveryStreet:     d.Street,
		DeliveryCity:       d.City,
		DeliveryCounty:     d.County,
		DeliveryBuilding:   d.Building,
		DeliveryPostcode:   d.Postcode,
		Date:               at.Format(DateLayout),
		DeliveryTime:       at.Format(TimeLayout),
		IsUrgent:           yesNo(b.Urgent),
		VehicleType:        b.VehicleType,
		BasePrice:          money(b.BasePrice),
		VAT:                money(b.VAT),
		TotalPrice:         money(b.TotalPrice),
		UserID:             b.UserID,
		Status:             b.Status,
		ModifiableUntil:    b.ModifiableUntil.UTC().Format(TimestampLayout),
		ContactEmail:       b.ContactEmail,
		ContactPhone:       b.ContactPhone,
		AdditionalInfo:     b.AdditionalInfo,
		Timestamp:          b.UpdatedAt.UTC().Format(TimestampLayout),
		OutsourcedTo:       b.OutsourcedTo,
		OutsourcedEmail:    b.OutsourcedEmail,
		OutsourcedPhone:    b.OutsourcedPhone,
		OutsourcedNotes:    b.OutsourcedNotes,
		OutsourcedAt:       rfc3339(b.OutsourcedAt),
		DeclineReason:      b.DeclineReason,
		DeclinedAt:         rfc3339(b.DeclinedAt),
	}
}

// ToBooking parses a record back into a booking. The result has no version
// and no created_at; the importer fills those in.
func (r *Record) ToBooking() (*store.Booking, error) {
	b := &store.Booking{
		ID:     r.BookingID,
		UserID: r.UserID,
		Status: r.Status,
		Collection: store.Address{
			Name: r.CollectionName, AddressLine: r.CollectionAddress, Street: r.CollectionStreet,
			City: r.CollectionCity, County: r.CollectionCounty, Building: r.CollectionBuilding,
			Postcode: r.CollectionPostcode,
		},
		Delivery: store.Address{
			Name: r.DeliveryName, AddressLine: r.DeliveryAddress, Street: r.DeliveryStreet,
			City: r.DeliveryCity, County: r.DeliveryCounty, Building: r.DeliveryBuilding,
			Postcode: r.DeliveryPostcode,
		},
		VehicleType:     r.VehicleType,
		ContactEmail:    r.ContactEmail,
		ContactPhone:    r.ContactPhone,
		AdditionalInfo:  r.AdditionalInfo,
		OutsourcedTo:    r.OutsourcedTo,
		OutsourcedEmail: r.OutsourcedEmail,
		OutsourcedPhone: r.OutsourcedPhone,
		OutsourcedNotes: r.OutsourcedNotes,
		DeclineReason:   r.DeclineReason,
	}

	var err error
	if b.CollectionAt, err = time.Parse(DateLayout+" "+TimeLayout, r.Date+" "+r.DeliveryTime); err != nil {
		return nil, fmt.Errorf("record %s: date/deliveryTime: %w", r.BookingID, err)
	}
	switch r.IsUrgent {
	case "Yes":
		b.Urgent = true
	case "No":
	default:
		return nil, fmt.Errorf("record %s: isUrgent must be Yes or No, got %q", r.BookingID, r.IsUrgent)
	}
	for _, p := range []struct {
		name string
		in   string
		out  *float64
	}{
		{"basePrice", r.BasePrice, &b.BasePrice},
		{"vat", r.VAT, &b.VAT},
		{"totalPrice", r.TotalPrice, &b.TotalPrice},
	} {
		if *p.out, err = strconv.ParseFloat(p.in, 64); err != nil {
			return nil, fmt.Errorf("record %s: %s: %w", r.BookingID, p.name, err)
		}
	}
	if b.ModifiableUntil, err = time.Parse(TimestampLayout, r.ModifiableUntil); err != nil {
		return nil, fmt.Errorf("record %s: modifiableUntil: %w", r.BookingID, err)
	}
	if b.UpdatedAt, err = time.Parse(TimestampLayout, r.Timestamp); err != nil {
		return nil, fmt.Errorf("record %s: timestamp: %w", r.BookingID, err)
	}
	if b.OutsourcedAt, err = parseOptional(r.OutsourcedAt); err != nil {
		return nil, fmt.Errorf("record %s: outsourcedAt: %w", r.BookingID, err)
	}
	if b.DeclinedAt, err = parseOptional(r.DeclinedAt); err != nil {
		return nil, fmt.Errorf("record %s: declinedAt: %w", r.BookingID, err)
	}
	return b, nil
}

func parseOptional(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
