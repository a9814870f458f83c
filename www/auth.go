package www

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"courierdesk/access"
	"courierdesk/config"
	"courierdesk/store"
)

const sessionName = "courierdesk-session"

type ctxKey struct{}

// newSessionStore signs cookies with the configured secret. With no secret, or
// the shipped placeholder, a random key is used and sessions end on restart.
func newSessionStore(cfg config.WebConfig, log *zap.Logger) *sessions.CookieStore {
	key := []byte(cfg.SessionSecret)
	if cfg.SessionSecret == "" || cfg.SessionSecret == config.DefaultSessionSecret {
		log.Warn("www: web.session_secret not set, using a random key")
		key = securecookie.GenerateRandomKey(32)
	}
	s := sessions.NewCookieStore(key)
	s.Options.Path = "/"
	s.Options.MaxAge = 7 * 24 * 3600
	s.Options.HttpOnly = true
	s.Options.Secure = cfg.SecureCookies
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func permissionsOf(u *store.User) access.Permissions {
	return access.Permissions{
		ViewCustomers:  u.ViewCustomers,
		ManageBookings: u.ManageBookings,
		ViewPricing:    u.ViewPricing,
		ManagePricing:  u.ManagePricing,
	}
}

// startSession stores the caller snapshot. Role changes made later are seen
// only after the user signs in again.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, u *store.User) error {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["user_id"] = u.ID
	session.Values["email"] = u.Email
	session.Values["role"] = u.Role
	session.Values["perm_view_customers"] = u.ViewCustomers
	session.Values["perm_manage_bookings"] = u.ManageBookings
	session.Values["perm_view_pricing"] = u.ViewPricing
	session.Values["perm_manage_pricing"] = u.ManagePricing
	return session.Save(r, w)
}

func (h *Handlers) endSession(w http.ResponseWriter, r *http.Request) error {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values = map[any]any{}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// sessionCaller rebuilds the caller from the cookie. A missing or tampered
// cookie yields access.Anonymous.
func (h *Handlers) sessionCaller(r *http.Request) access.Caller {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return access.Anonymous
	}
	id, _ := session.Values["user_id"].(string)
	if id == "" {
		return access.Anonymous
	}
	email, _ := session.Values["email"].(string)
	name, _ := session.Values["role"].(string)
	flag := func(k string) bool {
		v, _ := session.Values[k].(bool)
		return v
	}
	role, err := access.RoleFromName(name, access.Permissions{
		ViewCustomers:  flag("perm_view_customers"),
		ManageBookings: flag("perm_manage_bookings"),
		ViewPricing:    flag("perm_view_pricing"),
		ManagePricing:  flag("perm_manage_pricing"),
	})
	if err != nil {
		return access.Anonymous
	}
	return access.Caller{UserID: id, Email: email, Role: role}
}

// withCaller puts the session caller on the request context for every route.
func (h *Handlers) withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxKey{}, h.sessionCaller(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callerFrom(r).IsAnonymous() {
			h.jsonError(w, "sign in required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerFrom(r *http.Request) access.Caller {
	c, ok := r.Context().Value(ctxKey{}).(access.Caller)
	if !ok {
		return access.Anonymous
	}
	return c
}

func (h *Handlers) ensureDefaultAdmin(db *store.DB, cfg config.AdminConfig) {
	exists, err := db.AdminExists()
	if err != nil {
		h.log.Error("www: check admin", zap.Error(err))
		return
	}
	if exists || cfg.Email == "" || cfg.Password == "" {
		return
	}
	hash, err := hashPassword(cfg.Password)
	if err != nil {
		return
	}
	u := &store.User{ID: uuid.NewString(), Email: cfg.Email, Name: "Administrator", PasswordHash: hash, Role: "admin"}
	if err := db.CreateUser(u); err != nil {
		h.log.Error("www: create default admin", zap.Error(err))
		return
	}
	h.log.Info("www: created default admin", zap.String("email", u.Email))
}
