// Package pricing computes delivery quotes from a route distance and a rate table.
//
// Compute is pure: it performs no I/O and depends only on its arguments.
package pricing

import (
	"fmt"
	"math"
	"strings"
)

// MilesPerMeter converts provider distances to billing miles.
const MilesPerMeter = 0.000621371

// EstimatedMiles is billed when the route distance could not be resolved.
const EstimatedMiles = 25.0

type Vehicle string

const (
	VehicleBike Vehicle = "bike"
	VehicleVan  Vehicle = "van"
)

// ParseVehicle accepts "bike" or "van" in any case.
func ParseVehicle(s string) (Vehicle, error) {
	switch Vehicle(strings.ToLower(strings.TrimSpace(s))) {
	case VehicleBike:
		return VehicleBike, nil
	case VehicleVan:
		return VehicleVan, nil
	}
	return "", fmt.Errorf("unknown vehicle type %q", s)
}

// RateConfig is the process-wide rate table.
type RateConfig struct {
	BaseRateVan       float64 `json:"base_rate_van"`
	BaseRateBike      float64 `json:"base_rate_bike"`
	LondonMultiplier  float64 `json:"london_multiplier"`
	UrgentMultiplier  float64 `json:"urgent_multiplier"`
	VATRate           float64 `json:"vat_rate"`
	BikeDistanceLimit float64 `json:"bike_distance_limit"`
	BikeMinimumCharge float64 `json:"bike_minimum_charge"`
}

func DefaultRates() RateConfig {
	return RateConfig{
		BaseRateVan:       3.20,
		BaseRateBike:      2.80,
		LondonMultiplier:  1.20,
		UrgentMultiplier:  1.50,
		VATRate:           0.20,
		BikeDistanceLimit: 30,
		BikeMinimumCharge: 6.50,
	}
}

// Validate rejects rate tables with any non-positive entry.
func (r RateConfig) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"base_rate_van", r.BaseRateVan},
		{"base_rate_bike", r.BaseRateBike},
		{"london_multiplier", r.LondonMultiplier},
		{"urgent_multiplier", r.UrgentMultiplier},
		{"vat_rate", r.VATRate},
		{"bike_distance_limit", r.BikeDistanceLimit},
		{"bike_minimum_charge", r.BikeMinimumCharge},
	}
	for _, f := range fields {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be a positive number, got %v", f.name, f.v)
		}
	}
	return nil
}

type Request struct {
	DistanceMeters      float64
	DistanceKnown       bool
	Vehicle             Vehicle
	Urgent              bool
	OriginPostcode      string
	DestinationPostcode string
}

type Quote struct {
	Base  float64 `json:"base"`
	VAT   float64 `json:"vat"`
	Total float64 `json:"total"`

	Miles     float64 `json:"miles"`
	Estimated bool    `json:"estimated"`
	// Vehicle is the vehicle actually priced. It differs from the request
	// when a bike job was too long and was repriced as a van.
	Vehicle    Vehicle `json:"vehicle_type"`
	Downgraded bool    `json:"downgraded"`
	London     bool    `json:"london"`
}

// Compute prices a single job. Rounding happens once, after every multiplier.
func Compute(req Request, rates RateConfig) Quote {
	q := Quote{Vehicle: req.Vehicle}
	if q.Vehicle != VehicleBike {
		q.Vehicle = VehicleVan
	}

	miles := req.DistanceMeters * MilesPerMeter
	if !req.DistanceKnown {
		miles = EstimatedMiles
		q.Estimated = true
	}
	q.Miles = miles

	rate := rates.BaseRateVan
	if q.Vehicle == VehicleBike {
		rate = rates.BaseRateBike
	}
	base := miles * rate

	if q.Vehicle == VehicleBike {
		base = math.Max(base, rates.BikeMinimumCharge)
		if miles > rates.BikeDistanceLimit {
			q.Vehicle = VehicleVan
			q.Downgraded = true
			base = miles * rates.BaseRateVan
		}
	}

	if req.Urgent {
		base *= rates.UrgentMultiplier
	}

	if IsLondonPostcode(req.OriginPostcode) || IsLondonPostcode(req.DestinationPostcode) {
		q.London = true
		base *= rates.LondonMultiplier
	}

	q.Base = Round2(base)
	q.VAT = Round2(q.Base * rates.VATRate)
	q.Total = Round2(q.Base + q.VAT)
	return q
}

var londonPrefixes = []string{"EC", "WC", "E", "SE", "SW", "W", "N", "NW"}

// IsLondonPostcode reports whether the first two characters of the postcode
// start with a London outward-code prefix. Single-letter prefixes match any
// postcode beginning with that letter.
func IsLondonPostcode(postcode string) bool {
	pc := strings.ToUpper(strings.TrimSpace(postcode))
	if pc == "" {
		return false
	}
	if len(pc) > 2 {
		pc = pc[:2]
	}
	for _, p := range londonPrefixes {
		if strings.HasPrefix(pc, p) {
			return true
		}
	}
	return false
}

// Round2 rounds half-up to two decimal places.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
