package protocol

import "time"

// BookingCreated announces a new pending booking.
type BookingCreated struct {
	BookingID    string    `json:"booking_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	VehicleType  string    `json:"vehicle_type"`
	Urgent       bool      `json:"urgent"`
	FromPostcode string    `json:"from_postcode"`
	ToPostcode   string    `json:"to_postcode"`
	CollectAt    time.Time `json:"collect_at"`
	TotalPrice   float64   `json:"total_price"`
}

// BookingStatusChanged is published after every lifecycle transition.
type BookingStatusChanged struct {
	BookingID string `json:"booking_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Detail    string `json:"detail,omitempty"`
	Actor     string `json:"actor"`
}

// BookingUpdated is published after an admin edit.
type BookingUpdated struct {
	BookingID string   `json:"booking_id"`
	Fields    []string `json:"fields"`
	Actor     string   `json:"actor"`
}

// BookingDeleted is published after an admin delete.
type BookingDeleted struct {
	BookingID string `json:"booking_id"`
	Actor     string `json:"actor"`
}

// RatesChanged carries the new rate table.
type RatesChanged struct {
	BaseRateVan       float64 `json:"base_rate_van"`
	BaseRateBike      float64 `json:"base_rate_bike"`
	LondonMultiplier  float64 `json:"london_multiplier"`
	UrgentMultiplier  float64 `json:"urgent_multiplier"`
	VATRate           float64 `json:"vat_rate"`
	BikeDistanceLimit float64 `json:"bike_distance_limit"`
	BikeMinimumCharge float64 `json:"bike_minimum_charge"`
	Actor             string  `json:"actor"`
}
