package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"rutas_admin/internal/adapters/authz"
	server "rutas_admin/internal/adapters/http_server"
	"rutas_admin/internal/adapters/observability"
	redisad "rutas_admin/internal/adapters/redis"
	"rutas_admin/internal/adapters/realtime"
	"rutas_admin/internal/app"
	"rutas_admin/internal/domain"
	"rutas_admin/internal/storage/memory"
)

type fixture struct {
	h     http.Handler
	users *app.UserService
	admin *app.AdminService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWith(t, server.Options{}, 100)
}

func newFixtureWith(t *testing.T, opts server.Options, loginPerMinute int) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	store := memory.New()
	cache := redisad.NewCache(rc)
	sessions := redisad.NewSessionStore(rc)
	pub := redisad.NewPubSub(rc)

	users := app.NewUserService(store, sessions, pub).WithHashCost(bcrypt.MinCost)
	admin := app.NewAdminService(store, cache, pub)
	enf, err := authz.New()
	if err != nil {
		t.Fatalf("authz: %v", err)
	}

	srv := server.New(opts)
	srv.MountHandlers(&server.Handlers{
		Q:              app.NewQueryService(store, cache, time.Minute),
		Admin:          admin,
		Users:          users,
		Auth:           app.NewAuthService(users, sessions, time.Hour),
		Authz:          enf,
		Hub:            realtime.NewHub(),
		LoginPerMinute: loginPerMinute,
	})
	return fixture{h: srv.Mux(), users: users, admin: admin}
}

func (f fixture) do(t *testing.T, method, target, body string, hdr map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" && hdr["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f fixture) user(t *testing.T, name, role string) {
	t.Helper()
	if _, err := f.users.Create(context.Background(), app.CreateUserInput{Username: name, Password: "secret-123", Role: role}); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

// login returns the session cookie and the device cookie.
func (f fixture) login(t *testing.T, name, device string) (*http.Cookie, *http.Cookie) {
	t.Helper()
	rec := f.do(t, "POST", "/auth/login", `{"username":"`+name+`","password":"secret-123","deviceId":"`+device+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", name, rec.Code, rec.Body.String())
	}
	var sess, dev *http.Cookie
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case "session":
			sess = c
		case "deviceId":
			dev = c
		}
	}
	if sess == nil || dev == nil {
		t.Fatalf("missing cookies: %v", rec.Result().Cookies())
	}
	return sess, dev
}

func TestHoteles_VersionAndETag(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/hoteles?userId=u1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body domain.HotelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version == "" || body.Hotels == nil {
		t.Fatalf("expected version and empty list: %s", rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if etag != strconv.Quote(body.Version) {
		t.Fatalf("etag %s, version %s", etag, body.Version)
	}

	rec = f.do(t, "GET", "/hoteles?userId=u1", "", map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}

	rec = f.do(t, "GET", "/hoteles", "", nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"error"`) {
		t.Fatalf("expected 400 with error body, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRutasAlertasAndVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.admin.SaveRoute(ctx, domain.Route{ID: "r1", Type: domain.RouteSafe, Points: []domain.Coord{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}})

	rec := f.do(t, "GET", "/version", "", nil)
	var v domain.VersionResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if rec.Code != http.StatusOK || v.DataVersion == "" {
		t.Fatalf("version: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, "GET", "/rutasAlertas", "", nil)
	var ra domain.RoutesAlertsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ra); err != nil || len(ra.Routes) != 1 || ra.Alerts == nil {
		t.Fatalf("rutasAlertas: %s err=%v", rec.Body.String(), err)
	}
	if !strings.Contains(rec.Body.String(), `"rutas"`) || !strings.Contains(rec.Body.String(), `"alertas"`) {
		t.Fatalf("unexpected keys: %s", rec.Body.String())
	}
}

func TestApp_DeviceMismatchRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	f.user(t, "juan", domain.RoleDriver)
	sess, dev := f.login(t, "juan", "phone-1")

	rec := f.do(t, "GET", "/app/", "", nil, sess, dev)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected map shell, got %d", rec.Code)
	}

	other := &http.Cookie{Name: "deviceId", Value: "phone-2"}
	rec = f.do(t, "GET", "/app/", "", nil, sess, other)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("session cookie should be cleared")
	}

	// the session is gone even for the bound device
	rec = f.do(t, "GET", "/app/", "", nil, sess, dev)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect after mismatch, got %d", rec.Code)
	}

	// and a login from the other device is refused
	rec = f.do(t, "POST", "/auth/login", `{"username":"juan","password":"secret-123","deviceId":"phone-2"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestApp_NoSessionRedirects(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, "GET", "/app/", "", nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	rec = f.do(t, "GET", "/api/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("API should answer 401, got %d", rec.Code)
	}
}

func TestLogin_FormFlow(t *testing.T) {
	f := newFixture(t)
	f.user(t, "ana", domain.RoleDriver)
	form := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}

	bad := url.Values{"username": {"ana"}, "password": {"nope-nope"}}.Encode()
	rec := f.do(t, "POST", "/auth/login", bad, form)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login?error=credentials" {
		t.Fatalf("got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	good := url.Values{"username": {"ana"}, "password": {"secret-123"}}.Encode()
	rec = f.do(t, "POST", "/auth/login", good, form)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/app/" {
		t.Fatalf("got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	rec = f.do(t, "GET", "/login", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `action="/auth/login"`) {
		t.Fatalf("login page: %d", rec.Code)
	}
}

func TestMe_AndPasswordChange(t *testing.T) {
	f := newFixture(t)
	f.user(t, "eva", domain.RoleDriver)
	sess, dev := f.login(t, "eva", "d1")

	rec := f.do(t, "GET", "/api/me", "", nil, sess, dev)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"username":"eva"`) {
		t.Fatalf("me: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "passwordHash") {
		t.Fatal("hash must not leak")
	}

	rec = f.do(t, "POST", "/api/me/password", `{"current":"secret-123","next":"secret-123"}`, nil, sess, dev)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on reuse, got %d", rec.Code)
	}
	rec = f.do(t, "POST", "/api/me/password", `{"current":"secret-123","next":"another-456"}`, nil, sess, dev)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdmin_RoleAndCRUD(t *testing.T) {
	f := newFixture(t)
	f.user(t, "driver1", domain.RoleDriver)
	f.user(t, "boss", domain.RoleAdmin)
	dsess, ddev := f.login(t, "driver1", "truck")
	asess, adev := f.login(t, "boss", "laptop")

	if rec := f.do(t, "GET", "/admin/rutas", "", nil, dsess, ddev); rec.Code != http.StatusForbidden {
		t.Fatalf("driver on admin: %d", rec.Code)
	}

	before := f.do(t, "GET", "/version", "", nil).Body.String()
	rec := f.do(t, "POST", "/admin/rutas", `{"type":"danger","coordinates":[{"lat":1,"lng":1},{"lat":2,"lng":2}]}`, nil, asess, adev)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create route: %d %s", rec.Code, rec.Body.String())
	}
	var r domain.Route
	_ = json.Unmarshal(rec.Body.Bytes(), &r)
	if r.ID == "" {
		t.Fatal("expected id")
	}
	if after := f.do(t, "GET", "/version", "", nil).Body.String(); after == before {
		t.Fatal("route write should change /version")
	}

	rec = f.do(t, "PUT", "/admin/rutas/"+r.ID, `{"type":"safe","coordinates":[{"lat":1,"lng":1},{"lat":3,"lng":3}]}`, nil, asess, adev)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"safe"`) {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, "POST", "/admin/rutas", `{"type":"blue"}`, nil, asess, adev); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid payload: %d", rec.Code)
	}
	if rec := f.do(t, "DELETE", "/admin/rutas/"+r.ID, "", nil, asess, adev); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := f.do(t, "GET", "/admin/rutas/"+r.ID, "", nil, asess, adev); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted: %d", rec.Code)
	}
}

func TestAdmin_UserHotelsAndDeviceReset(t *testing.T) {
	f := newFixture(t)
	f.user(t, "boss", domain.RoleAdmin)
	asess, adev := f.login(t, "boss", "laptop")

	rec := f.do(t, "POST", "/admin/usuarios", `{"username":"lola","password":"secret-123","role":"driver"}`, nil, asess, adev)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", rec.Code, rec.Body.String())
	}
	var u domain.UserView
	_ = json.Unmarshal(rec.Body.Bytes(), &u)

	if rec := f.do(t, "POST", "/admin/usuarios", `{"username":"LOLA","password":"secret-123","role":"driver"}`, nil, asess, adev); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate user: %d", rec.Code)
	}

	rec = f.do(t, "POST", "/admin/hoteles", `{"name":"Motel 45","type":"roadside","position":{"lat":20,"lng":-100}}`, nil, asess, adev)
	var h domain.Hotel
	_ = json.Unmarshal(rec.Body.Bytes(), &h)

	first := f.do(t, "GET", "/hoteles?userId="+u.ID, "", nil)
	rec = f.do(t, "PUT", "/admin/usuarios/"+u.ID+"/hoteles", `{"hoteles":["`+h.ID+`"]}`, nil, asess, adev)
	if rec.Code != http.StatusOK {
		t.Fatalf("set hotels: %d %s", rec.Code, rec.Body.String())
	}
	second := f.do(t, "GET", "/hoteles?userId="+u.ID, "", map[string]string{"If-None-Match": first.Header().Get("ETag")})
	if second.Code != http.StatusOK || !strings.Contains(second.Body.String(), "Motel 45") {
		t.Fatalf("list change must produce a new version: %d %s", second.Code, second.Body.String())
	}

	dsess, ddev := f.login(t, "lola", "phone-a")
	if rec := f.do(t, "DELETE", "/admin/usuarios/"+u.ID+"/device", "", nil, asess, adev); rec.Code != http.StatusNoContent {
		t.Fatalf("reset device: %d", rec.Code)
	}
	if rec := f.do(t, "GET", "/api/me", "", nil, dsess, ddev); rec.Code != http.StatusUnauthorized {
		t.Fatalf("sessions should be dropped on reset, got %d", rec.Code)
	}
	f.login(t, "lola", "phone-b")
}

func TestLogin_ThrottleIgnoresForwardedFor(t *testing.T) {
	f := newFixtureWith(t, server.Options{}, 2)
	body := `{"username":"ghost","password":"wrong-pass","deviceId":"d"}`

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		// a rotating header must not buy a fresh budget
		rec := f.do(t, "POST", "/auth/login", body, map[string]string{"X-Forwarded-For": "10.0.0." + strconv.Itoa(i+1)})
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected the third attempt to be throttled, got %v", codes)
	}
}

func TestLogin_CountsOutcomes(t *testing.T) {
	f := newFixture(t)
	f.user(t, "rosa", domain.RoleDriver)
	count := func(result string) float64 {
		return testutil.ToFloat64(observability.LoginAttempts.WithLabelValues(result))
	}
	ok, bad, mismatch := count("ok"), count("bad_credentials"), count("device_mismatch")

	f.login(t, "rosa", "phone-1")
	f.do(t, "POST", "/auth/login", `{"username":"rosa","password":"nope-nope","deviceId":"phone-1"}`, nil)
	f.do(t, "POST", "/auth/login", `{"username":"rosa","password":"secret-123","deviceId":"phone-2"}`, nil)

	if count("ok")-ok != 1 || count("bad_credentials")-bad != 1 || count("device_mismatch")-mismatch != 1 {
		t.Fatalf("unexpected counts: ok=%v bad=%v mismatch=%v",
			count("ok")-ok, count("bad_credentials")-bad, count("device_mismatch")-mismatch)
	}
}
