package www

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"go.uber.org/zap/zaptest"

	"courierdesk/access"
	"courierdesk/bookings"
	"courierdesk/config"
	"courierdesk/engine"
	"courierdesk/pricestate"
	"courierdesk/pricing"
	"courierdesk/store"
)

const (
	adminEmail    = "admin@courierdesk.local"
	adminPassword = "admin"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	if mutate != nil {
		mutate(cfg)
	}
	log := zaptest.NewLogger(t)
	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Rates:     pricestate.NewManager(db, nil, pricing.DefaultRates(), log),
		Logger:    log,
	})
	eng.Start()
	t.Cleanup(eng.Stop)

	handler, stop := NewRouter(eng, log)
	t.Cleanup(stop)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// apiClient is one browser: its own cookie jar.
type apiClient struct {
	t   *testing.T
	srv *httptest.Server
	c   *http.Client
}

func newClient(t *testing.T, srv *httptest.Server) *apiClient {
	jar, _ := cookiejar.New(nil)
	return &apiClient{t: t, srv: srv, c: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

func (a *apiClient) raw(method, path, contentType string, body io.Reader) (int, []byte) {
	a.t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, body)
	if err != nil {
		a.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := a.c.Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (a *apiClient) do(method, path string, body any) (int, []byte) {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			a.t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	return a.raw(method, path, "application/json", r)
}

func (a *apiClient) expect(want int, method, path string, body any) []byte {
	a.t.Helper()
	code, data := a.do(method, path, body)
	if code != want {
		a.t.Fatalf("%s %s = %d, want %d: %s", method, path, code, want, data)
	}
	return data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func signIn(t *testing.T, srv *httptest.Server, email, password string) *apiClient {
	t.Helper()
	c := newClient(t, srv)
	c.expect(http.StatusOK, "POST", "/api/auth/login", loginRequest{Email: email, Password: password})
	return c
}

func register(t *testing.T, srv *httptest.Server, email string) (*apiClient, string) {
	t.Helper()
	c := newClient(t, srv)
	data := c.expect(http.StatusCreated, "POST", "/api/auth/register",
		registerRequest{Email: email, Password: "correct-horse", Name: "Test"})
	return c, decode[meResponse](t, data).ID
}

func sampleBooking() bookings.NewBooking {
	return bookings.NewBooking{
		Collection:   store.Address{Name: "Acme", AddressLine: "1 Broad St", Postcode: "B1 1AA"},
		Delivery:     store.Address{Name: "Zenith", AddressLine: "1 Piccadilly", Postcode: "M1 1AE"},
		CollectionAt: time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC),
		VehicleType:  "van",
		ContactEmail: "ops@example.com",
		ContactPhone: "0121 496 0000",
	}
}

type bookingResp struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	TotalPrice float64 `json:"total_price"`
	CanModify  bool    `json:"can_modify"`
	Version    int64   `json:"version"`
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newClient(t, srv)

	c.expect(http.StatusUnauthorized, "GET", "/api/auth/me", nil)

	data := c.expect(http.StatusCreated, "POST", "/api/auth/register",
		registerRequest{Email: "Alice@Example.com", Password: "correct-horse"})
	if me := decode[meResponse](t, data); me.Role != "customer" || me.Email != "alice@example.com" {
		t.Errorf("registered = %+v", me)
	}
	me := decode[meResponse](t, c.expect(http.StatusOK, "GET", "/api/auth/me", nil))
	if me.Email != "alice@example.com" || me.Permissions != (access.Permissions{}) {
		t.Errorf("me = %+v", me)
	}

	other := newClient(t, srv)
	other.expect(http.StatusConflict, "POST", "/api/auth/register",
		registerRequest{Email: "alice@example.com", Password: "correct-horse"})
	data = other.expect(http.StatusBadRequest, "POST", "/api/auth/register",
		registerRequest{Email: "bob@example.com", Password: "short"})
	if fields := decode[struct{ Fields map[string]string }](t, data).Fields; fields["password"] == "" {
		t.Errorf("fields = %v", fields)
	}

	c.expect(http.StatusOK, "POST", "/api/auth/logout", nil)
	c.expect(http.StatusUnauthorized, "GET", "/api/auth/me", nil)

	c.expect(http.StatusUnauthorized, "POST", "/api/auth/login", loginRequest{Email: "alice@example.com", Password: "wrong-horse"})
	c.expect(http.StatusUnauthorized, "POST", "/api/auth/login", loginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	c.expect(http.StatusOK, "POST", "/api/auth/login", loginRequest{Email: "alice@example.com", Password: "correct-horse"})
	c.expect(http.StatusOK, "GET", "/api/auth/me", nil)
}

func registerCookie(t *testing.T, srv *httptest.Server) *http.Cookie {
	t.Helper()
	body := strings.NewReader(`{"email":"carol@example.com","password":"correct-horse"}`)
	resp, err := http.Post(srv.URL+"/api/auth/register", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	for _, c := range resp.Cookies() {
		if c.Name == sessionName {
			return c
		}
	}
	t.Fatalf("no %s cookie in %v", sessionName, resp.Header["Set-Cookie"])
	return nil
}

func TestSessionCookieFlags(t *testing.T) {
	plain := registerCookie(t, newTestServer(t, nil))
	if plain.Secure || !plain.HttpOnly {
		t.Errorf("default cookie: Secure=%v HttpOnly=%v, want false, true", plain.Secure, plain.HttpOnly)
	}

	secure := registerCookie(t, newTestServer(t, func(cfg *config.Config) {
		cfg.Web.SecureCookies = true
	}))
	if !secure.Secure {
		t.Error("secure_cookies set but cookie not Secure")
	}
}

func TestSessionSecret(t *testing.T) {
	log := zaptest.NewLogger(t)
	value := map[any]any{"user_id": "u-1"}

	encoded, err := securecookie.EncodeMulti(sessionName, value, newSessionStore(config.WebConfig{}, log).Codecs...)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"", config.DefaultSessionSecret} {
		other := newSessionStore(config.WebConfig{SessionSecret: secret}, log)
		var got map[any]any
		if err := securecookie.DecodeMulti(sessionName, encoded, &got, other.Codecs...); err == nil {
			t.Errorf("secret %q: cookie from another process accepted", secret)
		}
	}

	cfg := config.WebConfig{SessionSecret: "a-long-shared-deployment-secret"}
	encoded, err = securecookie.EncodeMulti(sessionName, value, newSessionStore(cfg, log).Codecs...)
	if err != nil {
		t.Fatal(err)
	}
	var got map[any]any
	if err := securecookie.DecodeMulti(sessionName, encoded, &got, newSessionStore(cfg, log).Codecs...); err != nil {
		t.Errorf("configured secret: %v", err)
	}
}

func TestUpdateOwnProfile(t *testing.T) {
	srv := newTestServer(t, nil)
	alice, id := register(t, srv, "alice@example.com")
	register(t, srv, "bob@example.com")

	newEmail, name, company := " Alice@Shop.example ", "Alice Smith", "Shop Ltd"
	data := alice.expect(http.StatusOK, "PUT", "/api/auth/me", profileRequest{Email: &newEmail, Name: &name, Company: &company})
	if me := decode[meResponse](t, data); me.ID != id || me.Email != "alice@shop.example" || me.Name != name || me.Role != "customer" {
		t.Errorf("updated = %+v", me)
	}
	if me := decode[meResponse](t, alice.expect(http.StatusOK, "GET", "/api/auth/me", nil)); me.Email != "alice@shop.example" {
		t.Errorf("session email = %q", me.Email)
	}

	taken, bad := "bob@example.com", "not-an-email"
	alice.expect(http.StatusConflict, "PUT", "/api/auth/me", profileRequest{Email: &taken})
	alice.expect(http.StatusBadRequest, "PUT", "/api/auth/me", profileRequest{Email: &bad})
	newClient(t, srv).expect(http.StatusUnauthorized, "PUT", "/api/auth/me", profileRequest{Name: &name})

	signIn(t, srv, "alice@shop.example", "correct-horse")
	newClient(t, srv).expect(http.StatusUnauthorized, "POST", "/api/auth/login",
		loginRequest{Email: "alice@example.com", Password: "correct-horse"})
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	srv := newTestServer(t, nil)
	c := newClient(t, srv)
	for _, path := range []string{"/api/bookings", "/api/pricing", "/api/customers", "/api/audit", "/events"} {
		if code, _ := c.do("GET", path, nil); code != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, code)
		}
	}
	if code, _ := c.do("POST", "/api/bookings", sampleBooking()); code != http.StatusUnauthorized {
		t.Errorf("anonymous create = %d", code)
	}
}

func TestQuoteIsPublicAndRateLimited(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Web.QuoteRatePerMinute = 1
		cfg.Web.QuoteBurst = 2
	})
	c := newClient(t, srv)
	req := quoteRequest{
		Collection:  store.Address{Postcode: "b1 1aa"},
		Delivery:    store.Address{Postcode: "M1 1AE"},
		VehicleType: "plane",
	}
	c.expect(http.StatusBadRequest, "POST", "/api/quote", req)

	req.VehicleType = "van"
	q := decode[pricing.Quote](t, c.expect(http.StatusOK, "POST", "/api/quote", req))
	if q.Total != 96 || !q.Estimated {
		t.Errorf("quote = %+v", q)
	}

	c.expect(http.StatusTooManyRequests, "POST", "/api/quote", req)
}

func quoteFrom(t *testing.T, srv *httptest.Server, forwardedFor string) int {
	t.Helper()
	body := `{"collection":{"postcode":"B1 1AA"},"delivery":{"postcode":"M1 1AE"},"vehicle_type":"van"}`
	req, err := http.NewRequest("POST", srv.URL+"/api/quote", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestQuoteLimiterForwardedFor(t *testing.T) {
	limit := func(cfg *config.Config) {
		cfg.Web.QuoteRatePerMinute = 1
		cfg.Web.QuoteBurst = 1
	}

	direct := newTestServer(t, limit)
	if code := quoteFrom(t, direct, "198.51.100.1"); code != http.StatusOK {
		t.Fatalf("first quote = %d", code)
	}
	if code := quoteFrom(t, direct, "198.51.100.2"); code != http.StatusTooManyRequests {
		t.Errorf("spoofed X-Forwarded-For = %d, want 429", code)
	}

	proxied := newTestServer(t, func(cfg *config.Config) {
		limit(cfg)
		cfg.Web.TrustProxy = true
	})
	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		if code := quoteFrom(t, proxied, ip); code != http.StatusOK {
			t.Errorf("behind proxy, client %s = %d, want 200", ip, code)
		}
	}
	if code := quoteFrom(t, proxied, "198.51.100.1"); code != http.StatusTooManyRequests {
		t.Errorf("behind proxy, repeat client = %d, want 429", code)
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := signIn(t, srv, adminEmail, adminPassword)
	alice, _ := register(t, srv, "alice@example.com")
	bob, _ := register(t, srv, "bob@example.com")

	b := decode[bookingResp](t, alice.expect(http.StatusCreated, "POST", "/api/bookings", sampleBooking()))
	if b.Status != "pending" || b.TotalPrice != 96 || !b.CanModify || b.Version != 1 {
		t.Fatalf("created = %+v", b)
	}

	data := alice.expect(http.StatusBadRequest, "POST", "/api/bookings", bookings.NewBooking{VehicleType: "van"})
	if fields := decode[struct{ Fields map[string]string }](t, data).Fields; fields["collection.postcode"] == "" {
		t.Errorf("fields = %v", fields)
	}

	path := "/api/bookings/" + b.ID
	bob.expect(http.StatusNotFound, "GET", path, nil)
	bob.expect(http.StatusNotFound, "POST", path+"/cancel", nil)
	alice.expect(http.StatusForbidden, "POST", path+"/confirm", nil)
	bob.expect(http.StatusNotFound, "POST", path+"/confirm", nil)
	bob.expect(http.StatusNotFound, "DELETE", path, nil)
	admin.expect(http.StatusNotFound, "GET", "/api/bookings/no-such-id", nil)

	got := decode[bookingResp](t, admin.expect(http.StatusOK, "POST", path+"/confirm", nil))
	if got.Status != "confirmed" || got.Version != 2 {
		t.Errorf("confirmed = %+v", got)
	}
	admin.expect(http.StatusConflict, "POST", path+"/decline", map[string]string{"reason": "full"})

	got = decode[bookingResp](t, alice.expect(http.StatusOK, "POST", path+"/cancel", nil))
	if got.Status != "cancelled" || got.CanModify {
		t.Errorf("cancelled = %+v", got)
	}

	hist := decode[[]store.BookingHistory](t, alice.expect(http.StatusOK, "GET", path+"/history", nil))
	if len(hist) != 3 {
		t.Errorf("history = %+v", hist)
	}

	if list := decode[[]bookingResp](t, alice.expect(http.StatusOK, "GET", "/api/bookings", nil)); len(list) != 1 {
		t.Errorf("alice sees %d bookings", len(list))
	}
	if data := bob.expect(http.StatusOK, "GET", "/api/bookings", nil); strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("bob sees %s", data)
	}
	admin.expect(http.StatusBadRequest, "GET", "/api/bookings?status=lost", nil)
	admin.expect(http.StatusBadRequest, "GET", "/api/bookings?sort=colour", nil)
	admin.expect(http.StatusBadRequest, "GET", "/api/bookings?dir=sideways", nil)
	if list := decode[[]bookingResp](t, admin.expect(http.StatusOK, "GET", "/api/bookings?status=cancelled&sort=total&dir=asc", nil)); len(list) != 1 {
		t.Errorf("admin filtered list = %+v", list)
	}
}

func TestOutsourceRequiresPartner(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := signIn(t, srv, adminEmail, adminPassword)
	alice, _ := register(t, srv, "alice@example.com")
	b := decode[bookingResp](t, alice.expect(http.StatusCreated, "POST", "/api/bookings", sampleBooking()))

	admin.expect(http.StatusBadRequest, "POST", "/api/bookings/"+b.ID+"/outsource", bookings.Partner{})
	got := decode[bookingResp](t, admin.expect(http.StatusOK, "POST", "/api/bookings/"+b.ID+"/outsource",
		bookings.Partner{Name: "Fast Couriers", Email: "jobs@fast.example", Phone: "020 7946 0000"}))
	if got.Status != "outsourced" {
		t.Errorf("status = %s", got.Status)
	}
	admin.expect(http.StatusConflict, "POST", "/api/bookings/"+b.ID+"/complete", nil)
}

func TestAdminEditExportImportDelete(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := signIn(t, srv, adminEmail, adminPassword)
	alice, _ := register(t, srv, "alice@example.com")
	b := decode[bookingResp](t, alice.expect(http.StatusCreated, "POST", "/api/bookings", sampleBooking()))
	path := "/api/bookings/" + b.ID

	urgent := true
	alice.expect(http.StatusForbidden, "PUT", path, bookings.Edit{Urgent: &urgent})
	edited := decode[struct {
		Booking bookingResp `json:"booking"`
		Fields  []string    `json:"fields"`
	}](t, admin.expect(http.StatusOK, "PUT", path, bookings.Edit{Urgent: &urgent}))
	if edited.Booking.TotalPrice != 144 || strings.Join(edited.Fields, ",") != "urgent,price" {
		t.Errorf("edited = %+v", edited)
	}

	alice.expect(http.StatusForbidden, "GET", "/api/bookings/export.csv", nil)
	code, csv := admin.raw("GET", "/api/bookings/export.csv", "", nil)
	if code != http.StatusOK {
		t.Fatalf("export = %d: %s", code, csv)
	}
	lines := strings.Split(string(csv), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], `"bookingId"`) || !strings.Contains(lines[1], `"144.00"`) {
		t.Fatalf("export csv = %s", csv)
	}

	code, data := admin.raw("POST", "/api/bookings/import", "text/csv", bytes.NewReader(csv))
	if code != http.StatusOK {
		t.Fatalf("import = %d: %s", code, data)
	}
	if res := decode[bookings.ImportResult](t, data); len(res.Duplicates) != 1 || len(res.Imported) != 0 {
		t.Errorf("re-import = %+v", res)
	}

	copied := strings.ReplaceAll(string(csv), `"`+b.ID+`"`, `"imported-1"`)
	code, data = admin.raw("POST", "/api/bookings/import", "text/csv; charset=utf-8", strings.NewReader(copied))
	if res := decode[bookings.ImportResult](t, data); code != http.StatusOK || len(res.Imported) != 1 {
		t.Errorf("import copy = %d %+v", code, res)
	}
	imported := decode[bookingResp](t, admin.expect(http.StatusOK, "GET", "/api/bookings/imported-1", nil))
	if imported.TotalPrice != 144 || imported.Status != "pending" {
		t.Errorf("imported = %+v", imported)
	}

	data = admin.expect(http.StatusOK, "POST", "/api/bookings/import", []map[string]string{{"bookingId": "bad-1", "isUrgent": "maybe"}})
	if res := decode[bookings.ImportResult](t, data); res.Rejected["bad-1"] == "" {
		t.Errorf("bad record = %+v", res)
	}
	alice.expect(http.StatusForbidden, "POST", "/api/bookings/import", []map[string]string{})

	alice.expect(http.StatusForbidden, "DELETE", path, nil)
	admin.expect(http.StatusNoContent, "DELETE", path, nil)
	admin.expect(http.StatusNotFound, "GET", path, nil)
	admin.expect(http.StatusNotFound, "DELETE", path, nil)
}

func TestWorkerPermissions(t *testing.T) {
	srv := newTestServer(t, nil)
	admin := signIn(t, srv, adminEmail, adminPassword)
	alice, aliceID := register(t, srv, "alice@example.com")

	worker := workerRequest{Email: "wendy@example.com", Password: "worker-pass", Permissions: access.Permissions{ViewPricing: true}}
	alice.expect(http.StatusForbidden, "POST", "/api/workers", worker)
	created := decode[meResponse](t, admin.expect(http.StatusCreated, "POST", "/api/workers", worker))
	if created.Role != "worker" || !created.Permissions.ViewPricing || created.Permissions.ManagePricing {
		t.Errorf("worker = %+v", created)
	}
	admin.expect(http.StatusConflict, "POST", "/api/workers", worker)

	w := signIn(t, srv, "wendy@example.com", "worker-pass")
	w.expect(http.StatusOK, "GET", "/api/pricing", nil)
	w.expect(http.StatusForbidden, "PUT", "/api/pricing", pricing.DefaultRates())
	w.expect(http.StatusForbidden, "GET", "/api/customers", nil)
	w.expect(http.StatusForbidden, "GET", "/api/bookings", nil)

	perms := access.Permissions{ViewCustomers: true, ManagePricing: true}
	admin.expect(http.StatusOK, "PUT", "/api/workers/"+created.ID+"/permissions", perms)
	admin.expect(http.StatusBadRequest, "PUT", "/api/workers/"+aliceID+"/permissions", perms)
	admin.expect(http.StatusNotFound, "PUT", "/api/workers/no-such-user/permissions", perms)

	// the open session keeps its snapshot
	w.expect(http.StatusForbidden, "GET", "/api/customers", nil)

	w = signIn(t, srv, "wendy@example.com", "worker-pass")
	customers := decode[[]store.User](t, w.expect(http.StatusOK, "GET", "/api/customers", nil))
	if len(customers) != 1 || customers[0].Email != "alice@example.com" {
		t.Errorf("customers = %+v", customers)
	}

	rates := pricing.DefaultRates()
	rates.BaseRateVan = 4
	w.expect(http.StatusOK, "PUT", "/api/pricing", rates)
	if got := decode[pricing.RateConfig](t, admin.expect(http.StatusOK, "GET", "/api/pricing", nil)); got != rates {
		t.Errorf("rates = %+v", got)
	}
	rates.UrgentMultiplier = 0
	w.expect(http.StatusBadRequest, "PUT", "/api/pricing", rates)

	alice.expect(http.StatusForbidden, "GET", "/api/audit", nil)
	w.expect(http.StatusForbidden, "GET", "/api/audit", nil)
	entries := decode[[]store.AuditEntry](t, admin.expect(http.StatusOK, "GET", "/api/audit", nil))
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.EntityType+"/"+e.Action] = true
	}
	if !seen["user/permissions"] || !seen["user/created"] || !seen["pricing/updated"] {
		t.Errorf("audit actions = %v", seen)
	}
	scoped := decode[[]store.AuditEntry](t, admin.expect(http.StatusOK, "GET", "/api/audit?entity_type=user&entity_id="+created.ID, nil))
	if len(scoped) != 2 {
		t.Errorf("scoped audit = %+v", scoped)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	h := decode[healthResponse](t, newClient(t, srv).expect(http.StatusOK, "GET", "/api/health", nil))
	if h.Status != "ok" || h.Database != "ok" || h.Messaging != "disabled" || h.Mirror || h.Streams != 0 {
		t.Errorf("health = %+v", h)
	}
}

func TestEventsStreamOwnBookings(t *testing.T) {
	srv := newTestServer(t, nil)
	alice, _ := register(t, srv, "alice@example.com")
	bob, _ := register(t, srv, "bob@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events", nil)
	resp, err := alice.c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("events = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if h := decode[healthResponse](t, bob.expect(http.StatusOK, "GET", "/api/health", nil)); h.Streams != 1 {
		t.Errorf("health event_streams = %d, want 1", h.Streams)
	}

	bob.expect(http.StatusCreated, "POST", "/api/bookings", sampleBooking())
	mine := decode[bookingResp](t, alice.expect(http.StatusCreated, "POST", "/api/bookings", sampleBooking()))

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	if event != "booking-update" {
		t.Fatalf("event = %q (%v)", event, sc.Err())
	}
	got := decode[bookingUpdate](t, []byte(data))
	if got.BookingID != mine.ID || got.Type != "created" {
		t.Errorf("first event = %+v, want alice's booking %s", got, mine.ID)
	}
}

func TestEventHubFiltersByOwner(t *testing.T) {
	hub := NewEventHub(zaptest.NewLogger(t))
	hub.Start()
	defer hub.Stop()

	alice := access.Caller{UserID: "u-a", Role: access.Customer{}}
	staff := access.Caller{UserID: "u-s", Role: access.Worker{Permissions: access.Permissions{ManageBookings: true}}}
	pricer := access.Caller{UserID: "u-p", Role: access.Worker{Permissions: access.Permissions{ManagePricing: true}}}
	chA, chS, chP := hub.AddClient(alice), hub.AddClient(staff), hub.AddClient(pricer)
	defer hub.RemoveClient(chA)
	defer hub.RemoveClient(chS)
	defer hub.RemoveClient(chP)

	hub.Broadcast(SSEEvent{Event: "booking-update", Data: "{}", Owner: "u-b"})
	hub.Broadcast(SSEEvent{Event: "booking-update", Data: "{}", Owner: "u-a"})
	hub.Broadcast(SSEEvent{Event: "pricing-update", Data: "{}"})

	recv := func(ch chan SSEEvent) SSEEvent {
		t.Helper()
		select {
		case evt := <-ch:
			return evt
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
		}
		return SSEEvent{}
	}
	if evt := recv(chA); evt.Owner != "u-a" {
		t.Errorf("alice got %+v first", evt)
	}
	if evt := recv(chA); evt.Event != "pricing-update" {
		t.Errorf("alice got %+v second", evt)
	}
	if recv(chS).Owner != "u-b" || recv(chS).Owner != "u-a" || recv(chS).Event != "pricing-update" {
		t.Error("staff missed events")
	}
	if evt := recv(chP); evt.Event != "pricing-update" {
		t.Errorf("pricing-only worker got %+v", evt)
	}
}
