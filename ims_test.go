package ims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aadithya-v/ims/store"
)

const testBag = `{"urls": {
	"auth": "/auth",
	"events": "/events",
	"concentric_streets": "/streets",
	"incidents": "/events/{event_id}/incidents"
}}`

const testEvents = `[{"id": "2023", "name": "Burning Man 2023"}, {"id": "2024", "name": "Burning Man 2024"}]`

const testStreets = `{"2024": {"206": "Ambiance", "207": "Bacchanal"}}`

const testIncidents = `[
	{
		"event": "2024", "number": 1, "created": "2024-08-26T10:15:00Z",
		"state": "on_scene", "priority": 3, "summary": "Snake in boots",
		"location": {
			"type": "garett", "name": "Camp Fangs", "description": null,
			"concentric": "206", "radial_hour": 3, "radial_minute": 30
		},
		"ranger_handles": ["Hubcap", "Bucket"], "incident_types": ["Animal"],
		"report_entries": [
			{"created": "2024-08-26T10:15:00Z", "author": "Hubcap", "system_entry": false, "text": "Boot is occupied."}
		]
	},
	{
		"event": "2024", "number": 2, "created": "2024-08-26T11:00:00Z",
		"state": "new", "priority": 5, "summary": "Lost sandal", "location": null,
		"ranger_handles": [], "incident_types": ["Lost Property"]
	}
]`

// fakeDoc is a document served by fakeIMS.
type fakeDoc struct {
	body        string
	etag        string
	status      int
	contentType string
	requireAuth bool
}

// fakeIMS is an in-process IMS server.
type fakeIMS struct {
	server *httptest.Server

	mu          sync.Mutex
	docs        map[string]fakeDoc
	login       fakeDoc
	loginBody   loginRequest
	token       string
	hits        map[string]int
	notModified map[string]int
	headers     map[string]http.Header
}

func newFakeIMS(t *testing.T) *fakeIMS {
	t.Helper()

	f := &fakeIMS{
		docs: map[string]fakeDoc{
			"/bag":                   {body: testBag, etag: `"bag-1"`},
			"/events":                {body: testEvents, etag: `"events-1"`},
			"/streets":               {body: testStreets, etag: `"streets-1"`},
			"/events/2024/incidents": {body: testIncidents, etag: `"incidents-1"`},
		},
		hits:        make(map[string]int),
		notModified: make(map[string]int),
		headers:     make(map[string]http.Header),
	}
	f.server = httptest.NewServer(f)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIMS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.hits[path]++
	f.headers[path] = r.Header.Clone()

	doc, ok := f.docs[path]
	if path == "/auth" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f.loginBody = loginRequest{}
		_ = json.NewDecoder(r.Body).Decode(&f.loginBody)
		doc, ok = f.login, true
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	if doc.requireAuth && (f.token == "" || r.Header.Get("Authorization") != "Bearer "+f.token) {
		w.Header().Set("Content-Type", jsonContentType)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"status": "not-authenticated"}`)
		return
	}

	if doc.etag != "" && r.Header.Get("If-None-Match") == doc.etag {
		f.notModified[path]++
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := doc.contentType
	if contentType == "" {
		contentType = jsonContentType
	}
	w.Header().Set("Content-Type", contentType)
	if doc.etag != "" {
		w.Header().Set("ETag", doc.etag)
	}
	status := doc.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	fmt.Fprint(w, doc.body)
}

func (f *fakeIMS) set(path string, doc fakeDoc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[path] = doc
}

func (f *fakeIMS) setLogin(doc fakeDoc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.login = doc
}

func (f *fakeIMS) setToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *fakeIMS) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeIMS) countNotModified(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notModified[path]
}

func (f *fakeIMS) header(path string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[path]
}

func (f *fakeIMS) lastLogin() loginRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginBody
}

func (f *fakeIMS) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.hits {
		total += n
	}
	return total
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 8, 25, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestClient creates a client for f backed by kv, or by a memory store if kv is nil.
func newTestClient(t *testing.T, f *fakeIMS, clock *testClock, kv store.Store) (*Client, *prometheus.Registry) {
	t.Helper()

	if kv == nil {
		kv = store.NewMemoryStore()
	}
	reg := prometheus.NewRegistry()

	c, err := New(Config{
		BagURL:        f.server.URL + "/bag",
		Store:         kv,
		Registerer:    reg,
		Now:           clock.Now,
		MutationDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, reg
}

func testToken(t *testing.T, expiration time.Time, preferredUsername string) string {
	t.Helper()

	claims := tokenClaims{PreferredUsername: preferredUsername}
	if !expiration.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiration)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

// login logs c in as username with a token valid for an hour and makes
// f accept that token.
func login(t *testing.T, c *Client, f *fakeIMS, clock *testClock, username string) string {
	t.Helper()

	token := testToken(t, clock.Now().Add(time.Hour), "")
	f.setLogin(fakeDoc{body: fmt.Sprintf(`{"token": %q}`, token)})
	f.setToken(token)

	ok, err := c.Login(context.Background(), username, "password")
	if err != nil {
		t.Fatalf("Failed to log in: %v", err)
	}
	if !ok {
		t.Fatal("Login should succeed")
	}
	return token
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestNewRequiresBagURL(t *testing.T) {
	_, err := New(Config{Store: store.NewMemoryStore(), Registerer: prometheus.NewRegistry()})
	if !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Expected ErrMissingArgument, got %v", err)
	}
}

func TestNewDefaultSQLiteStore(t *testing.T) {
	f := newFakeIMS(t)
	path := filepath.Join(t.TempDir(), "ims.db")

	c, err := New(Config{
		BagURL:       f.server.URL + "/bag",
		DatabasePath: path,
		Registerer:   prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	events, err := c.Events(context.Background())
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 events, got %d", len(events))
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Failed to close client: %v", err)
	}

	// A second client over the same database starts with a warm cache.
	c, err = New(Config{
		BagURL:       f.server.URL + "/bag",
		DatabasePath: path,
		Registerer:   prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("Failed to reopen client: %v", err)
	}
	defer c.Close()

	if _, err := c.Events(context.Background()); err != nil {
		t.Fatalf("Failed to get events after reopen: %v", err)
	}
	if n := f.count("/events"); n != 1 {
		t.Errorf("Expected 1 events request across clients, got %d", n)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("IMS_BAG_URL", "https://ims.example.com/ims/api/bag")
	t.Setenv("IMS_EVENTS_LIFETIME", "2m")
	t.Setenv("IMS_USER_AGENT", "ranger-dash")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.BagURL != "https://ims.example.com/ims/api/bag" {
		t.Errorf("Unexpected bag URL %q", cfg.BagURL)
	}
	if cfg.EventsLifetime != 2*time.Minute {
		t.Errorf("Expected events lifetime 2m, got %v", cfg.EventsLifetime)
	}
	if cfg.UserAgent != "ranger-dash" {
		t.Errorf("Expected user agent ranger-dash, got %q", cfg.UserAgent)
	}
	if cfg.IncidentsLifetime != 5*time.Minute {
		t.Errorf("Expected default incidents lifetime, got %v", cfg.IncidentsLifetime)
	}
}

func TestEventsCached(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	c, _ := newTestClient(t, f, clock, nil)
	ctx := context.Background()

	first, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	second, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Failed to get events again: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical events, got %v and %v", first, second)
	}
	if n := f.count("/events"); n != 1 {
		t.Errorf("Expected 1 events request, got %d", n)
	}
	if n := f.count("/bag"); n != 1 {
		t.Errorf("Expected 1 bag request, got %d", n)
	}
}

func TestEventsRevalidatedAfterExpiry(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	c, _ := newTestClient(t, f, clock, nil)
	ctx := context.Background()

	first, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}

	clock.Advance(10 * time.Minute)

	second, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Failed to revalidate events: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical events after 304, got %v and %v", first, second)
	}
	if n := f.count("/events"); n != 2 {
		t.Errorf("Expected 2 events requests, got %d", n)
	}
	if n := f.countNotModified("/events"); n != 1 {
		t.Errorf("Expected 1 not modified response, got %d", n)
	}
	if got := f.header("/events").Get("If-None-Match"); got != `"events-1"` {
		t.Errorf("Expected If-None-Match %q, got %q", `"events-1"`, got)
	}

	// The 304 renewed the lifetime.
	clock.Advance(5 * time.Minute)
	if _, err := c.Events(ctx); err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if n := f.count("/events"); n != 2 {
		t.Errorf("Expected no request within renewed lifetime, got %d", n)
	}
}

func TestEventsChangedAfterExpiry(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	c, _ := newTestClient(t, f, clock, nil)
	ctx := context.Background()

	if _, err := c.Events(ctx); err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}

	f.set("/events", fakeDoc{body: `[{"id": "2025", "name": "Burning Man 2025"}]`, etag: `"events-2"`})
	clock.Advance(11 * time.Minute)

	events, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if len(events) != 1 || events[0].ID != "2025" {
		t.Errorf("Expected new events, got %v", events)
	}
}

func TestEventsFailureAfterExpiry(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	c, _ := newTestClient(t, f, clock, nil)
	ctx := context.Background()

	if _, err := c.Events(ctx); err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}

	f.set("/events", fakeDoc{body: `{"error": "down"}`, status: http.StatusInternalServerError})
	clock.Advance(10 * time.Minute)

	_, err := c.Events(ctx)
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("Expected ResponseError, got %v", err)
	}
	if respErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", respErr.StatusCode)
	}
}

func TestEventsConcurrent(t *testing.T) {
	f := newFakeIMS(t)
	c, _ := newTestClient(t, f, newTestClock(), nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Events(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Failed to get events: %v", err)
	}
	if n := f.count("/events"); n != 1 {
		t.Errorf("Expected 1 events request, got %d", n)
	}
}

func TestNotModifiedWithoutCache(t *testing.T) {
	f := newFakeIMS(t)
	c, _ := newTestClient(t, f, newTestClock(), nil)

	f.set("/events", fakeDoc{status: http.StatusNotModified})

	if _, err := c.Events(context.Background()); !errors.Is(err, ErrNotModifiedWithoutCache) {
		t.Errorf("Expected ErrNotModifiedWithoutCache, got %v", err)
	}
}

func TestEmptyCacheEntryRefetched(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	kv := store.NewMemoryStore()
	c, _ := newTestClient(t, f, clock, kv)
	ctx := context.Background()

	// An expired entry with a validator but no value.
	if err := kv.Put(ctx, miscStore, EndpointEvents, []byte(`{"value": null, "validator": "\"events-1\""}`)); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	if _, err := c.Events(ctx); err != nil {
		t.Fatalf("Expected undecodable entry to be refetched, got %v", err)
	}
	if got := f.header("/events").Get("If-None-Match"); got != "" {
		t.Errorf("Expected no validator for empty entry, got %q", got)
	}
}

func TestUndecodableCachedValueRefetched(t *testing.T) {
	f := newFakeIMS(t)
	clock := newTestClock()
	kv := store.NewMemoryStore()
	c, _ := newTestClient(t, f, clock, kv)
	ctx := context.Background()

	// Unexpired, but not a list of events.
	if err := c.cache.Put(ctx, miscStore, EndpointEvents, json.RawMessage(`{"id": "2024"}`), `"stale"`, time.Hour); err != nil {
		t.Fatalf("Failed to seed cache: %v", err)
	}

	events, err := c.Events(ctx)
	if err != nil {
		t.Fatalf("Expected undecodable value to be refetched, got %v", err)
	}
	if len(events) != 2 || events[1].ID != "2024" {
		t.Errorf("Unexpected events %v", events)
	}
	if got := f.header("/events").Get("If-None-Match"); got != "" {
		t.Errorf("Expected unconditional request, got If-None-Match %q", got)
	}

	// The refetched value replaced the bad one.
	if _, err := c.Events(ctx); err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if n := f.count("/events"); n != 1 {
		t.Errorf("Expected 1 events request, got %d", n)
	}
}

func TestEventWithID(t *testing.T) {
	f := newFakeIMS(t)
	c, _ := newTestClient(t, f, newTestClock(), nil)
	ctx := context.Background()

	event, err := c.EventWithID(ctx, "2024")
	if err != nil {
		t.Fatalf("Failed to get event: %v", err)
	}
	if event.Name != "Burning Man 2024" {
		t.Errorf("Unexpected event %v", event)
	}

	if _, err := c.EventWithID(ctx, "1999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := c.EventWithID(ctx, ""); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Expected ErrMissingArgument, got %v", err)
	}
}

func TestEventsInvalidJSON(t *testing.T) {
	f := newFakeIMS(t)
	c, _ := newTestClient(t, f, newTestClock(), nil)
	ctx := context.Background()

	f.set("/events", fakeDoc{body: `[{"id": "2024"}]`, etag: `"bad"`})

	_, err := c.Events(ctx)
	var jsonErr *InvalidJSONError
	if !errors.As(err, &jsonErr) {
		t.Fatalf("Expected InvalidJSONError, got %v", err)
	}
	if jsonErr.Field != "name" {
		t.Errorf("Expected field name, got %q", jsonErr.Field)
	}

	// Nothing was cached.
	f.set("/events", fakeDoc{body: testEvents, etag: `"events-1"`})
	if _, err := c.Events(ctx); err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if n := f.count("/events"); n != 2 {
		t.Errorf("Expected 2 events requests, got %d", n)
	}
}

func TestConcentricStreets(t *testing.T) {
	f := newFakeIMS(t)
	c, _ := newTestClient(t, f, newTestClock(), nil)
	ctx := context.Background()

	streets, err := c.ConcentricStreets(ctx, "2024")
	if err != nil {
		t.Fatalf("Failed to get streets: %v", err)
	}
	if streets["206"] != "Ambiance" {
		t.Errorf("Expected street 206 to be Ambiance, got %q", streets["206"])
	}

	if _, err := c.ConcentricStreets(ctx, "2023"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if n := f.count("/streets"); n != 1 {
		t.Errorf("Expected 1 streets request, got %d", n)
	}
}
