package www

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"courierdesk/access"
	"courierdesk/bookings"
	"courierdesk/export"
	"courierdesk/store"
)

const maxImportBytes = 10 << 20

type bookingView struct {
	*store.Booking
	CanModify bool `json:"can_modify"`
}

func viewOf(b *store.Booking) bookingView {
	return bookingView{Booking: b, CanModify: bookings.CanModify(b, time.Now())}
}

func (h *Handlers) apiCreateBooking(w http.ResponseWriter, r *http.Request) {
	var in bookings.NewBooking
	if err := decodeJSON(w, r, &in); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.Bookings().Create(r.Context(), callerFrom(r), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, viewOf(b))
}

// filterFrom reads status, q, sort, dir and limit.
func filterFrom(r *http.Request) (store.BookingFilter, error) {
	q := r.URL.Query()
	f := store.BookingFilter{
		Status: q.Get("status"),
		Search: q.Get("q"),
		Sort:   q.Get("sort"),
	}
	switch q.Get("dir") {
	case "", "desc":
	case "asc":
		f.Asc = true
	default:
		return f, badField("dir", "must be asc or desc")
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return f, badField("limit", "must be a positive number")
		}
		f.Limit = n
	}
	return f, nil
}

func (h *Handlers) apiListBookings(w http.ResponseWriter, r *http.Request) {
	f, err := filterFrom(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	list, err := h.engine.Bookings().List(callerFrom(r), f)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]bookingView, len(list))
	for i, b := range list {
		out[i] = viewOf(b)
	}
	h.jsonOK(w, out)
}

func (h *Handlers) apiGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.Bookings().Get(callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, viewOf(b))
}

func (h *Handlers) apiBookingHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.engine.Bookings().History(callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if hist == nil {
		hist = []*store.BookingHistory{}
	}
	h.jsonOK(w, hist)
}

func (h *Handlers) writeBooking(w http.ResponseWriter, r *http.Request, b *store.Booking, err error) {
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, viewOf(b))
}

func (h *Handlers) apiConfirmBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.Bookings().Confirm(callerFrom(r), chi.URLParam(r, "id"))
	h.writeBooking(w, r, b, err)
}

func (h *Handlers) apiOutsourceBooking(w http.ResponseWriter, r *http.Request) {
	var p bookings.Partner
	if err := decodeJSON(w, r, &p); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.Bookings().Outsource(callerFrom(r), chi.URLParam(r, "id"), p)
	h.writeBooking(w, r, b, err)
}

func (h *Handlers) apiDeclineBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, err := h.engine.Bookings().Decline(callerFrom(r), chi.URLParam(r, "id"), req.Reason)
	h.writeBooking(w, r, b, err)
}

func (h *Handlers) apiCompleteBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.Bookings().Complete(callerFrom(r), chi.URLParam(r, "id"))
	h.writeBooking(w, r, b, err)
}

func (h *Handlers) apiCancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.Bookings().Cancel(callerFrom(r), chi.URLParam(r, "id"))
	h.writeBooking(w, r, b, err)
}

func (h *Handlers) apiEditBooking(w http.ResponseWriter, r *http.Request) {
	var e bookings.Edit
	if err := decodeJSON(w, r, &e); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	b, fields, err := h.engine.Bookings().Edit(r.Context(), callerFrom(r), chi.URLParam(r, "id"), e)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if fields == nil {
		fields = []string{}
	}
	h.jsonOK(w, map[string]any{"booking": viewOf(b), "fields": fields})
}

func (h *Handlers) apiDeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Bookings().Delete(callerFrom(r), chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiExportBookings streams the visible bookings as CSV. The list filters apply.
func (h *Handlers) apiExportBookings(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := access.Authorize(caller, access.ActionExportBookings, "").Err(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	f, err := filterFrom(r)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	list, err := h.engine.Bookings().List(caller, f)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	records := make([]export.Record, len(list))
	for i, b := range list {
		records[i] = export.FromBooking(b)
	}
	name := fmt.Sprintf("bookings-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := export.WriteCSV(w, records); err != nil {
		h.log.Warn("www: export write failed", zap.Error(err))
	}
}

// apiImportBookings accepts text/csv in the export layout, or a JSON array of
// export records. Rows that fail to parse are reported as rejected.
func (h *Handlers) apiImportBookings(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	var records []export.Record
	var err error
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "text/csv" {
		records, err = export.ReadCSV(body)
	} else {
		err = json.NewDecoder(body).Decode(&records)
	}
	if err != nil {
		h.writeErr(w, r, badField("body", err.Error()))
		return
	}

	list := make([]*store.Booking, 0, len(records))
	parseErrs := make(map[string]string)
	for i, rec := range records {
		b, err := rec.ToBooking()
		if err != nil {
			key := rec.BookingID
			if key == "" {
				key = fmt.Sprintf("#%d", i)
			}
			parseErrs[key] = err.Error()
			continue
		}
		list = append(list, b)
	}

	res, err := h.engine.Bookings().Import(callerFrom(r), list)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	for k, v := range parseErrs {
		if res.Rejected == nil {
			res.Rejected = make(map[string]string)
		}
		res.Rejected[k] = v
	}
	h.jsonOK(w, res)
}
