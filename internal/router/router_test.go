package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/beat-license-registry/internal/config"
	"github.com/iliyamo/beat-license-registry/internal/handler"
	"github.com/iliyamo/beat-license-registry/internal/licensing"
	"github.com/iliyamo/beat-license-registry/internal/middleware"
	"github.com/iliyamo/beat-license-registry/internal/model"
	"github.com/iliyamo/beat-license-registry/internal/repository/memory"
	"github.com/iliyamo/beat-license-registry/internal/router"
	"github.com/iliyamo/beat-license-registry/internal/utils"
)

const (
	jwtSecret  = "test-secret"
	serviceKey = "internal-key"
)

type downPinger struct{}

func (downPinger) PingContext(context.Context) error { return errors.New("dial tcp: refused") }

func seedCatalog() *memory.Store {
	s := memory.New()
	s.PutUser(model.User{ID: "producer-1", Email: "prod@example.com", Name: "Dre"})
	s.PutStore(model.Store{ID: "store-1", OwnerUserID: "producer-1", Name: "Dre Beats", Slug: "dre-beats"})
	s.PutBeat(model.Beat{
		ID: "beat-x", OwnerUserID: "producer-1", Title: "Night Drive", IsPublished: true,
		Tiers: []model.Tier{
			{Type: model.TierBasic, Enabled: true, Name: "Basic Lease", PriceCents: 1000},
			{Type: model.TierExclusive, Enabled: true, Name: "Exclusive Rights", PriceCents: 50000},
		},
	})
	return s
}

func newServer(t *testing.T) *echo.Echo {
	e, _ := newCachedServer(t, nil, config.CacheConfig{})
	return e
}

// newCachedServer wires the full router.  With a non-nil rdb the beat
// routes are cached and purchases invalidate them.
func newCachedServer(t *testing.T, rdb *redis.Client, cache config.CacheConfig) (*echo.Echo, *licensing.Registry) {
	t.Helper()
	var opts []licensing.Option
	if rdb != nil {
		opts = append(opts, licensing.WithCacheInvalidator(middleware.NewBeatCache(rdb, cache.Prefix)))
	}
	reg := licensing.New(seedCatalog(), zap.NewNop(), opts...)
	t.Cleanup(reg.Wait)

	hash, err := utils.HashServiceKey(serviceKey, 4)
	if err != nil {
		t.Fatalf("HashServiceKey: %v", err)
	}
	e := echo.New()
	router.Register(e, router.Deps{
		Licenses:       handler.NewBeatLicenseHandler(reg, zap.NewNop()),
		Ready:          map[string]handler.Pinger{},
		JWTSecret:      jwtSecret,
		ServiceKeyHash: hash,
		Redis:          rdb,
		Cache:          cache,
	})
	return e, reg
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func beatCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true},
		TTL: time.Minute, Prefix: "beatcache", MaxBodyBytes: 1 << 20,
	}
}

func do(e *echo.Echo, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func internal() map[string]string { return map[string]string{middleware.ServiceKeyHeader: serviceKey} }

func bearer(t *testing.T, sub string) map[string]string {
	t.Helper()
	tok, err := utils.NewAccessToken(jwtSecret, sub, time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	return map[string]string{echo.HeaderAuthorization: "Bearer " + tok.Token}
}

func purchaseBody(user string, tier model.TierType, amount int) string {
	b, _ := json.Marshal(map[string]any{
		"beat_id": "beat-x", "tier_type": tier, "user_id": user, "store_id": "store-1",
		"amount_cents": amount, "buyer_email": user + "@example.com",
	})
	return string(b)
}

func TestHealthAndReadiness(t *testing.T) {
	e := newServer(t)
	if rec := do(e, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	down := echo.New()
	down.GET("/readyz", handler.Ready(map[string]handler.Pinger{"mysql": downPinger{}}))
	rec := do(down, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "mysql") {
		t.Fatalf("readyz with failing dep = %d %s", rec.Code, rec.Body.String())
	}
}

func TestInternalRoutesRequireServiceKey(t *testing.T) {
	e := newServer(t)
	body := purchaseBody("buyer-1", model.TierBasic, 1000)
	if rec := do(e, http.MethodPost, "/internal/v1/beat-licenses", body, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key = %d, want 401", rec.Code)
	}
	wrong := map[string]string{middleware.ServiceKeyHeader: "nope"}
	if rec := do(e, http.MethodPost, "/internal/v1/beat-licenses", body, wrong); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong key = %d, want 403", rec.Code)
	}
}

func TestPurchaseAndLookup(t *testing.T) {
	e := newServer(t)
	rec := do(e, http.MethodPost, "/internal/v1/beat-licenses", purchaseBody("buyer-1", model.TierBasic, 1000), internal())
	if rec.Code != http.StatusCreated {
		t.Fatalf("purchase = %d %s", rec.Code, rec.Body.String())
	}
	var res licensing.PurchaseResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.PurchaseID == "" || res.BeatLicenseID == "" {
		t.Fatalf("result = %+v", res)
	}

	rec = do(e, http.MethodGet, "/v1/purchases/"+res.PurchaseID+"/beat-license", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("license by purchase = %d", rec.Code)
	}
	var lic model.BeatLicense
	if err := json.Unmarshal(rec.Body.Bytes(), &lic); err != nil {
		t.Fatalf("decode license: %v", err)
	}
	if lic.ID != res.BeatLicenseID || lic.TierType != model.TierBasic || lic.ProducerName != "Dre" {
		t.Fatalf("license = %+v", lic)
	}
	if rec := do(e, http.MethodGet, "/v1/purchases/missing/beat-license", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing purchase = %d, want 404", rec.Code)
	}

	rec = do(e, http.MethodPost, "/internal/v1/beat-licenses", purchaseBody("buyer-1", model.TierBasic, 1000), internal())
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat purchase = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "you already own a basic license for this beat") {
		t.Fatalf("repeat purchase body = %s", rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/v1/users/buyer-1/beats/beat-x/license?tier=basic", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"has_license":true`) {
		t.Fatalf("check license = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodGet, "/v1/users/buyer-1/beats/beat-x/license?tier=gold", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown tier = %d, want 400", rec.Code)
	}

	rec = do(e, http.MethodGet, "/v1/users/buyer-1/beat-licenses", "", nil)
	var list struct {
		Items []licensing.UserLicense `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list.Items) != 1 {
		t.Fatalf("user licenses = %d %s (%v)", rec.Code, rec.Body.String(), err)
	}
	if list.Items[0].Beat == nil || list.Items[0].Beat.Title != "Night Drive" {
		t.Fatalf("beat summary = %+v", list.Items[0].Beat)
	}
}

func TestExclusiveSaleWithdrawsBeat(t *testing.T) {
	e := newServer(t)
	rec := do(e, http.MethodPost, "/internal/v1/beat-licenses", purchaseBody("buyer-2", model.TierExclusive, 50000), internal())
	if rec.Code != http.StatusCreated {
		t.Fatalf("exclusive purchase = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/v1/beats/beat-x/availability", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"available":false`) {
		t.Fatalf("availability = %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodGet, "/v1/beats/beat-x/tiers", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "This beat has been sold exclusively") {
		t.Fatalf("tiers = %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodGet, "/v1/beats/nope/tiers", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown beat tiers = %d, want 404", rec.Code)
	}

	rec = do(e, http.MethodPost, "/internal/v1/beat-licenses", purchaseBody("buyer-3", model.TierBasic, 1000), internal())
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "sold exclusively") {
		t.Fatalf("purchase after exclusive = %d %s", rec.Code, rec.Body.String())
	}

	body := `{"tiers":[{"type":"basic","enabled":true,"name":"Basic","price_cents":1500}]}`
	if rec := do(e, http.MethodPut, "/v1/beats/beat-x/tiers", body, bearer(t, "producer-1")); rec.Code != http.StatusConflict {
		t.Fatalf("update tiers on sold beat = %d, want 409", rec.Code)
	}
}

func TestSellerRoutes(t *testing.T) {
	e := newServer(t)
	rec := do(e, http.MethodPost, "/internal/v1/beat-licenses", purchaseBody("buyer-1", model.TierBasic, 1000), internal())
	var res licensing.PurchaseResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if rec := do(e, http.MethodGet, "/v1/stores/store-1/beat-sales", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("sales without token = %d, want 401", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/stores/store-1/beat-sales", "", bearer(t, "buyer-1")); rec.Code != http.StatusForbidden {
		t.Fatalf("sales as non-owner = %d, want 403", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/stores/store-1/beat-sales?limit=zero", "", bearer(t, "producer-1")); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d, want 400", rec.Code)
	}
	rec = do(e, http.MethodGet, "/v1/stores/store-1/beat-sales?limit=10", "", bearer(t, "producer-1"))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), res.BeatLicenseID) {
		t.Fatalf("sales = %d %s", rec.Code, rec.Body.String())
	}

	path := "/v1/beat-licenses/" + res.BeatLicenseID + "/contract"
	if rec := do(e, http.MethodPost, path, "", bearer(t, "someone-else")); rec.Code != http.StatusForbidden {
		t.Fatalf("contract by stranger = %d, want 403", rec.Code)
	}
	if rec := do(e, http.MethodPost, path, "", bearer(t, "buyer-1")); rec.Code != http.StatusNoContent {
		t.Fatalf("contract by owner = %d, want 204", rec.Code)
	}

	body := `{"tiers":[{"type":"basic","enabled":true,"name":"Basic","price_cents":1500}]}`
	if rec := do(e, http.MethodPut, "/v1/beats/beat-x/tiers", body, bearer(t, "buyer-1")); rec.Code != http.StatusForbidden {
		t.Fatalf("update tiers as non-owner = %d, want 403", rec.Code)
	}
	if rec := do(e, http.MethodPut, "/v1/beats/beat-x/tiers", body, bearer(t, "producer-1")); rec.Code != http.StatusNoContent {
		t.Fatalf("update tiers = %d, want 204", rec.Code)
	}
	rec = do(e, http.MethodGet, "/v1/beats/beat-x/tiers", "", nil)
	if !strings.Contains(rec.Body.String(), `"price_cents":1500`) {
		t.Fatalf("tiers after update = %s", rec.Body.String())
	}
}

func TestMarkExclusiveSaleRoute(t *testing.T) {
	e := newServer(t)
	decode := func(rec *httptest.ResponseRecorder) licensing.PurchaseResult {
		t.Helper()
		var res licensing.PurchaseResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode %d %s: %v", rec.Code, rec.Body.String(), err)
		}
		return res
	}
	basic := decode(do(e, http.MethodPost, "/internal/v1/beat-licenses", purchaseBody("buyer-1", model.TierBasic, 1000), internal()))
	excl := decode(do(e, http.MethodPost, "/internal/v1/beat-licenses", purchaseBody("buyer-2", model.TierExclusive, 50000), internal()))

	mark := func(beat, user, purchase string) int {
		body := `{"user_id":"` + user + `","purchase_id":"` + purchase + `"}`
		return do(e, http.MethodPost, "/internal/v1/beats/"+beat+"/exclusive-sale", body, internal()).Code
	}
	if code := mark("beat-x", "buyer-2", excl.PurchaseID); code != http.StatusNoContent {
		t.Fatalf("mark = %d, want 204", code)
	}
	if code := mark("beat-x", "buyer-2", excl.PurchaseID); code != http.StatusNoContent {
		t.Fatalf("repeat mark = %d, want 204", code)
	}
	if code := mark("beat-x", "buyer-1", basic.PurchaseID); code != http.StatusConflict {
		t.Fatalf("mark by other purchase = %d, want 409", code)
	}
	if code := mark("beat-x", "buyer-9", excl.PurchaseID); code != http.StatusBadRequest {
		t.Fatalf("mark with wrong buyer = %d, want 400", code)
	}
	if code := mark("beat-x", "buyer-2", "p-unknown"); code != http.StatusNotFound {
		t.Fatalf("mark unknown purchase = %d, want 404", code)
	}
	if code := mark("nope", "buyer-2", excl.PurchaseID); code != http.StatusNotFound {
		t.Fatalf("mark unknown beat = %d, want 404", code)
	}
}

func TestBeatCacheDroppedOnExclusiveSale(t *testing.T) {
	e, reg := newCachedServer(t, newRedis(t), beatCacheConfig())
	const path = "/v1/beats/beat-x/availability"

	rec := do(e, http.MethodGet, path, "", nil)
	if rec.Header().Get("X-Cache") != "MISS" || !strings.Contains(rec.Body.String(), `"available":true`) {
		t.Fatalf("first read = %s %s", rec.Header().Get("X-Cache"), rec.Body.String())
	}
	if rec := do(e, http.MethodGet, path, "", nil); rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second read X-Cache = %q, want HIT", rec.Header().Get("X-Cache"))
	}

	rec = do(e, http.MethodPost, "/internal/v1/beat-licenses", purchaseBody("buyer-2", model.TierExclusive, 50000), internal())
	if rec.Code != http.StatusCreated {
		t.Fatalf("exclusive purchase = %d %s", rec.Code, rec.Body.String())
	}
	reg.Wait()

	rec = do(e, http.MethodGet, path, "", nil)
	if rec.Header().Get("X-Cache") != "MISS" || !strings.Contains(rec.Body.String(), `"available":false`) {
		t.Fatalf("read after sale = %s %s", rec.Header().Get("X-Cache"), rec.Body.String())
	}
}

func TestReadRacingExclusiveSaleIsNotCached(t *testing.T) {
	rdb := newRedis(t)
	cfg := beatCacheConfig()
	reg := licensing.New(seedCatalog(), zap.NewNop(), licensing.WithCacheInvalidator(middleware.NewBeatCache(rdb, cfg.Prefix)))
	t.Cleanup(reg.Wait)
	h := handler.NewBeatLicenseHandler(reg, zap.NewNop())

	// The first read has produced its response when the sale commits and
	// the invalidation finishes, but the cache has not stored it yet.
	var sold sync.Once
	sellMidRead := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			sold.Do(func() {
				in := licensing.PurchaseInput{
					BeatID: "beat-x", TierType: model.TierExclusive, UserID: "buyer-2", StoreID: "store-1",
					AmountCents: 50000, BuyerEmail: "buyer-2@example.com",
				}
				if _, perr := reg.CreateBeatLicensePurchase(context.Background(), in); perr != nil {
					t.Errorf("exclusive purchase: %v", perr)
				}
				reg.Wait()
			})
			return err
		}
	}
	e := echo.New()
	e.GET("/v1/beats/:id/availability", h.Availability, middleware.NewRedisCache(cfg, rdb, "id", zap.NewNop()), sellMidRead)

	const path = "/v1/beats/beat-x/availability"
	if rec := do(e, http.MethodGet, path, "", nil); !strings.Contains(rec.Body.String(), `"available":true`) {
		t.Fatalf("read during sale = %s", rec.Body.String())
	}
	rec := do(e, http.MethodGet, path, "", nil)
	if rec.Header().Get("X-Cache") == "HIT" || !strings.Contains(rec.Body.String(), `"available":false`) {
		t.Fatalf("read after sale = %s %s", rec.Header().Get("X-Cache"), rec.Body.String())
	}
}
