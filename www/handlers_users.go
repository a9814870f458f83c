package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"courierdesk/access"
	"courierdesk/store"
)

func (h *Handlers) apiListCustomers(w http.ResponseWriter, r *http.Request) {
	if err := access.Authorize(callerFrom(r), access.ActionViewCustomers, "").Err(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	users, err := h.engine.DB().ListUsers("customer")
	if err != nil {
		h.writeErr(w, r, storageErr(err))
		return
	}
	if users == nil {
		users = []*store.User{}
	}
	h.jsonOK(w, users)
}

type workerRequest struct {
	Email       string             `json:"email"`
	Password    string             `json:"password"`
	Name        string             `json:"name"`
	Phone       string             `json:"phone"`
	Permissions access.Permissions `json:"permissions"`
}

func (h *Handlers) apiCreateWorker(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := access.Authorize(caller, access.ActionManageUsers, "").Err(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	var req workerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validateAccount(req.Email, req.Password); err != nil {
		h.writeErr(w, r, err)
		return
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	p := req.Permissions
	u := &store.User{
		ID:             uuid.NewString(),
		Email:          req.Email,
		Name:           strings.TrimSpace(req.Name),
		Phone:          strings.TrimSpace(req.Phone),
		PasswordHash:   hash,
		Role:           "worker",
		ViewCustomers:  p.ViewCustomers,
		ManageBookings: p.ManageBookings,
		ViewPricing:    p.ViewPricing,
		ManagePricing:  p.ManagePricing,
	}
	if err := h.engine.DB().CreateUser(u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			h.jsonError(w, "email already registered", http.StatusConflict)
			return
		}
		h.writeErr(w, r, storageErr(err))
		return
	}
	perms, _ := json.Marshal(p)
	h.audit("user", u.ID, "created", "", string(perms), caller.Actor())
	h.jsonStatus(w, http.StatusCreated, meOf(u))
}

// apiSetWorkerPermissions replaces a worker's toggles. Open sessions keep
// their old snapshot until the worker signs in again.
func (h *Handlers) apiSetWorkerPermissions(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if err := access.Authorize(caller, access.ActionManageUsers, "").Err(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	var p access.Permissions
	if err := decodeJSON(w, r, &p); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	db := h.engine.DB()
	u, err := db.GetUser(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		h.jsonError(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeErr(w, r, storageErr(err))
		return
	}
	if u.Role != "worker" {
		h.writeErr(w, r, badField("id", "is not a worker"))
		return
	}
	if err := db.UpdateUserRole(u.ID, "worker", p.ViewCustomers, p.ManageBookings, p.ViewPricing, p.ManagePricing); err != nil {
		h.writeErr(w, r, storageErr(err))
		return
	}
	oldPerms, _ := json.Marshal(permissionsOf(u))
	newPerms, _ := json.Marshal(p)
	h.audit("user", u.ID, "permissions", string(oldPerms), string(newPerms), caller.Actor())

	u.ViewCustomers, u.ManageBookings, u.ViewPricing, u.ManagePricing = p.ViewCustomers, p.ManageBookings, p.ViewPricing, p.ManagePricing
	h.jsonOK(w, meOf(u))
}

func (h *Handlers) audit(entityType, entityID, action, oldValue, newValue, actor string) {
	if err := h.engine.DB().AppendAudit(entityType, entityID, action, oldValue, newValue, actor); err != nil {
		h.log.Error("www: audit", zap.String("entity", entityType), zap.String("id", entityID), zap.Error(err))
	}
}

func (h *Handlers) apiAuditLog(w http.ResponseWriter, r *http.Request) {
	if err := access.Authorize(callerFrom(r), access.ActionViewAudit, "").Err(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	q := r.URL.Query()
	var entries []*store.AuditEntry
	var err error
	if et, id := q.Get("entity_type"), q.Get("entity_id"); et != "" && id != "" {
		entries, err = h.engine.DB().ListEntityAudit(et, id)
	} else {
		limit := 200
		if l := q.Get("limit"); l != "" {
			if n, perr := strconv.Atoi(l); perr == nil && n > 0 {
				limit = n
			}
		}
		entries, err = h.engine.DB().ListAuditLog(limit)
	}
	if err != nil {
		h.writeErr(w, r, storageErr(err))
		return
	}
	if entries == nil {
		entries = []*store.AuditEntry{}
	}
	h.jsonOK(w, entries)
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Messaging string `json:"messaging"`
	Mirror    bool   `json:"mirror"`
	Streams   int    `json:"event_streams"`
	Outbox    struct {
		Pending int `json:"pending"`
		Dead    int `json:"dead"`
	} `json:"outbox"`
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	resp := healthResponse{Status: "ok", Database: "ok", Messaging: "disabled", Mirror: cfg.Mirror.URL != ""}
	resp.Streams = h.eventHub.ClientCount()

	db := h.engine.DB()
	if err := db.PingContext(r.Context()); err != nil {
		resp.Status, resp.Database = "degraded", "unreachable"
	} else if pending, dead, err := db.CountOutbox(cfg.Messaging.OutboxMaxRetries); err == nil {
		resp.Outbox.Pending, resp.Outbox.Dead = pending, dead
	}

	if mc := h.engine.MsgClient(); mc != nil {
		resp.Messaging = "disconnected"
		if mc.IsConnected() {
			resp.Messaging = "connected"
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	h.jsonStatus(w, code, resp)
}
