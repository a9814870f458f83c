package www

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courierdesk/access"
	"courierdesk/bookings"
	"courierdesk/store"
)

const minPasswordLen = 8

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	Name        string             `json:"name,omitempty"`
	Role        string             `json:"role"`
	Permissions access.Permissions `json:"permissions"`
}

func validateAccount(email, password string) error {
	v := &bookings.ValidationError{Fields: map[string]string{}}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		v.Fields["email"] = "is not a valid address"
	}
	if len(password) < minPasswordLen {
		v.Fields["password"] = "must be at least 8 characters"
	}
	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

func (h *Handlers) apiRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
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
	u := &store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		Company:      strings.TrimSpace(req.Company),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         "customer",
	}
	if err := h.engine.DB().CreateUser(u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			h.jsonError(w, "email already registered", http.StatusConflict)
			return
		}
		h.writeErr(w, r, storageErr(err))
		return
	}
	if err := h.startSession(w, r, u); err != nil {
		h.log.Error("www: save session", zap.Error(err))
	}
	h.log.Info("www: customer registered", zap.String("email", u.Email))
	h.jsonStatus(w, http.StatusCreated, meOf(u))
}

func meOf(u *store.User) meResponse {
	role, err := access.RoleFromName(u.Role, permissionsOf(u))
	var perms access.Permissions
	if err == nil {
		perms = access.PermissionsOf(role)
	}
	return meResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Permissions: perms}
}

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	u, err := h.engine.DB().GetUserByEmail(req.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.writeErr(w, r, storageErr(err))
		return
	}
	if err != nil || !checkPassword(u.PasswordHash, req.Password) {
		h.jsonError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}
	if err := h.startSession(w, r, u); err != nil {
		h.log.Error("www: save session", zap.Error(err))
		h.jsonError(w, "could not start session", http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, meOf(u))
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.endSession(w, r); err != nil {
		h.log.Warn("www: end session", zap.Error(err))
	}
	h.jsonOK(w, map[string]string{"status": "signed out"})
}

// apiMe reports the session snapshot, not the current user row.
func (h *Handlers) apiMe(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r)
	h.jsonOK(w, meResponse{
		ID:          c.UserID,
		Email:       c.Email,
		Role:        c.Role.Name(),
		Permissions: access.PermissionsOf(c.Role),
	})
}

type profileRequest struct {
	Email   *string `json:"email"`
	Name    *string `json:"name"`
	Company *string `json:"company"`
	Phone   *string `json:"phone"`
}

// apiUpdateMe lets a signed-in user change their own contact details.
// Role and permissions are not touched.
func (h *Handlers) apiUpdateMe(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r)
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	db := h.engine.DB()
	u, err := db.GetUser(c.UserID)
	if errors.Is(err, store.ErrNotFound) {
		h.jsonError(w, "account no longer exists", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.writeErr(w, r, storageErr(err))
		return
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	oldEmail := u.Email
	set(&u.Email, req.Email)
	set(&u.Name, req.Name)
	set(&u.Company, req.Company)
	set(&u.Phone, req.Phone)
	if _, err := mail.ParseAddress(u.Email); err != nil || u.Email == "" {
		h.writeErr(w, r, badField("email", "is not a valid address"))
		return
	}

	if err := db.UpdateUserProfile(u.ID, u.Email, u.Name, u.Company, u.Phone); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			h.jsonError(w, "email already registered", http.StatusConflict)
			return
		}
		h.writeErr(w, r, storageErr(err))
		return
	}
	u.Email = strings.ToLower(u.Email)
	if u.Email != oldEmail {
		h.audit("user", u.ID, "email", oldEmail, u.Email, c.Actor())
		session, _ := h.sessions.Get(r, sessionName)
		session.Values["email"] = u.Email
		if err := session.Save(r, w); err != nil {
			h.log.Error("www: save session", zap.Error(err))
		}
	}
	h.jsonOK(w, meResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        c.Role.Name(),
		Permissions: access.PermissionsOf(c.Role),
	})
}
