package www

import (
	"net/http"

	"courierdesk/access"
	"courierdesk/bookings"
	"courierdesk/pricing"
	"courierdesk/store"
)

type quoteRequest struct {
	Collection  store.Address `json:"collection"`
	Delivery    store.Address `json:"delivery"`
	VehicleType string        `json:"vehicle_type"`
	Urgent      bool          `json:"urgent"`
}

// apiQuote is public. It prices a job without storing anything.
func (h *Handlers) apiQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	origin := req.Collection.Normalized()
	dest := req.Delivery.Normalized()

	v := &bookings.ValidationError{Fields: map[string]string{}}
	if origin.Postcode == "" {
		v.Fields["collection.postcode"] = "is required"
	}
	if dest.Postcode == "" {
		v.Fields["delivery.postcode"] = "is required"
	}
	vehicle, err := pricing.ParseVehicle(req.VehicleType)
	if err != nil {
		v.Fields["vehicle_type"] = "must be bike or van"
	}
	if len(v.Fields) > 0 {
		h.writeErr(w, r, v)
		return
	}

	h.jsonOK(w, h.engine.Quote(r.Context(), origin, dest, vehicle, req.Urgent))
}

func (h *Handlers) apiGetPricing(w http.ResponseWriter, r *http.Request) {
	if err := access.Authorize(callerFrom(r), access.ActionViewPricing, "").Err(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, h.engine.Rates().Get(r.Context()))
}

func (h *Handlers) apiPutPricing(w http.ResponseWriter, r *http.Request) {
	var cfg pricing.RateConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	saved, err := h.engine.Rates().Update(r.Context(), callerFrom(r), cfg)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, saved)
}
