package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ncm-portal/internal/audit"
	"ncm-portal/internal/auth"
	"ncm-portal/internal/directory"
	inventory "ncm-portal/internal/inventory/domain"
	"ncm-portal/internal/nodeapi"
	"ncm-portal/internal/reconcile"
)

type fakeDirectory struct {
	identity *directory.Identity
	err      error
}

func (f *fakeDirectory) BindAs(_ context.Context, _, _ string) (*directory.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

// memoryRepository is an in-memory inventory.Repository with the same error
// semantics as the postgres implementation.
type memoryRepository struct {
	mu      sync.Mutex
	devices map[string]inventory.Device
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{devices: make(map[string]inventory.Device)}
}

func (m *memoryRepository) FindAll(_ context.Context) ([]inventory.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]inventory.Device, 0, len(m.devices))
	for _, device := range m.devices {
		result = append(result, device)
	}
	return result, nil
}

func (m *memoryRepository) FindByAddress(_ context.Context, address string) (*inventory.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	device, ok := m.devices[address]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return &device, nil
}

func (m *memoryRepository) Insert(_ context.Context, device *inventory.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[device.Address]; ok {
		return inventory.ErrExists
	}
	device.CreatedAt = time.Now().UTC()
	m.devices[device.Address] = *device
	return nil
}

func (m *memoryRepository) Update(_ context.Context, address string, device *inventory.Device, setPassword, setEnable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.devices[address]
	if !ok {
		return inventory.ErrNotFound
	}
	current.Name = device.Name
	current.Type = device.Type
	current.Username = device.Username
	if setPassword {
		current.Password = device.Password
	}
	if setEnable {
		current.Enable = device.Enable
	}
	now := time.Now().UTC()
	current.UpdatedAt = &now
	m.devices[address] = current
	return nil
}

func (m *memoryRepository) Delete(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[address]; !ok {
		return inventory.ErrNotFound
	}
	delete(m.devices, address)
	return nil
}

// recordingAudit captures audit entries for assertions.
type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) byAction(action string) []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var result []audit.Entry
	for _, entry := range a.entries {
		if entry.Action == action {
			result = append(result, entry)
		}
	}
	return result
}

type testPortal struct {
	router    http.Handler
	repo      *memoryRepository
	directory *fakeDirectory
	collector *httptest.Server
	audit     *recordingAudit
}

func newTestPortal(t *testing.T, collectorHandler http.Handler) *testPortal {
	t.Helper()
	if collectorHandler == nil {
		collectorHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`[]`))
		})
	}
	collector := httptest.NewServer(collectorHandler)
	t.Cleanup(collector.Close)

	dir := &fakeDirectory{identity: &directory.Identity{
		AccountName: "operator",
		DisplayName: "An Operator",
		Groups:      []string{"CN=NetAdmins,OU=Groups"},
	}}
	authenticator, err := auth.NewAuthenticator(dir, []string{"netadmins"}, false, nil)
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	sessions := auth.NewManager(auth.NewMemoryStore(0, 0), false)

	repo := newMemoryRepository()
	api, err := nodeapi.NewClient(collector.URL, time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	reconciler, err := reconcile.NewReconciler(repo, api, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	auditLog := &recordingAudit{}
	handler, err := NewHandler(authenticator, sessions, reconciler, repo, auditLog, log.New(&bytes.Buffer{}, "", 0), "")
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return &testPortal{
		router:    NewRouter(handler),
		repo:      repo,
		directory: dir,
		collector: collector,
		audit:     auditLog,
	}
}

// login runs the login flow and returns the session cookie.
func (p *testPortal) login(t *testing.T) *http.Cookie {
	t.Helper()
	body := strings.NewReader(`{"username":"operator","password":"pass"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == auth.SessionCookie {
			return cookie
		}
	}
	t.Fatalf("login: no session cookie issued")
	return nil
}

func (p *testPortal) do(t *testing.T, cookie *http.Cookie, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginIssuesSessionAndCheckLogin(t *testing.T) {
	portal := newTestPortal(t, nil)
	cookie := portal.login(t)

	rec := portal.do(t, cookie, http.MethodGet, "/api/check-login", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["displayName"] != "An Operator" {
		t.Fatalf("expected display name, got %+v", body)
	}
}

func TestLoginFailures(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"bad password", directory.ErrInvalidCredentials, http.StatusUnauthorized, msgBadCredentials},
		{"directory down", directory.ErrUnavailable, http.StatusBadGateway, msgDirectoryDown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			portal := newTestPortal(t, nil)
			portal.directory.err = tc.err

			rec := portal.do(t, nil, http.MethodPost, "/login", `{"username":"operator","password":"x"}`)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.wantMsg {
				t.Fatalf("expected message %q, got %q", tc.wantMsg, body["error"])
			}
		})
	}
}

func TestLoginGroupDenied(t *testing.T) {
	portal := newTestPortal(t, nil)
	portal.directory.identity.Groups = []string{"CN=Finance,OU=Groups"}

	rec := portal.do(t, nil, http.MethodPost, "/login", `{"username":"operator","password":"pass"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == auth.SessionCookie && cookie.Value != "" {
			t.Fatalf("denied login must not issue a session cookie")
		}
	}
}

func TestAPIRequiresSession(t *testing.T) {
	portal := newTestPortal(t, nil)

	rec := portal.do(t, nil, http.MethodGet, "/api/devices", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = portal.do(t, nil, http.MethodGet, "/", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect for browser route, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	portal := newTestPortal(t, nil)
	cookie := portal.login(t)

	rec := portal.do(t, cookie, http.MethodGet, "/logout", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302 after logout, got %d", rec.Code)
	}

	rec = portal.do(t, cookie, http.MethodGet, "/api/check-login", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with dead session, got %d", rec.Code)
	}
}

func TestDeviceCRUD(t *testing.T) {
	portal := newTestPortal(t, nil)
	cookie := portal.login(t)

	payload := `{"name":"core1","address":"10.0.0.1","type":"ios","username":"admin","password":"s3cret","enable":"en4ble"}`

	rec := portal.do(t, cookie, http.MethodPost, "/api/devices", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "s3cret") || strings.Contains(rec.Body.String(), "en4ble") {
		t.Fatalf("create response leaks secrets: %s", rec.Body.String())
	}

	// Duplicate address.
	rec = portal.do(t, cookie, http.MethodPost, "/api/devices", payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rec.Code)
	}

	// Read back.
	rec = portal.do(t, cookie, http.MethodGet, "/api/devices/10.0.0.1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var got deviceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "core1" || got.Username != "admin" {
		t.Fatalf("unexpected device %+v", got)
	}

	// Update with a blank password leaves the secret untouched.
	rec = portal.do(t, cookie, http.MethodPut, "/api/devices/10.0.0.1",
		`{"name":"core1-renamed","type":"ios","username":"admin","password":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stored, err := portal.repo.FindByAddress(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Name != "core1-renamed" {
		t.Fatalf("expected rename to persist, got %q", stored.Name)
	}
	if stored.Password != "s3cret" {
		t.Fatalf("blank password must not overwrite the stored secret, got %q", stored.Password)
	}

	// Delete, then delete again.
	rec = portal.do(t, cookie, http.MethodDelete, "/api/devices/10.0.0.1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	rec = portal.do(t, cookie, http.MethodDelete, "/api/devices/10.0.0.1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestCreateDeviceValidation(t *testing.T) {
	portal := newTestPortal(t, nil)
	cookie := portal.login(t)

	rec := portal.do(t, cookie, http.MethodPost, "/api/devices",
		`{"name":"","address":"999.1.1.1","type":"","username":""}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, field := range []string{"name", "address", "type", "username"} {
		if body.Errors[field] == "" {
			t.Fatalf("expected field error for %q, got %+v", field, body.Errors)
		}
	}
}

func TestUpdateDeviceAddressImmutable(t *testing.T) {
	portal := newTestPortal(t, nil)
	cookie := portal.login(t)

	portal.do(t, cookie, http.MethodPost, "/api/devices",
		`{"name":"core1","address":"10.0.0.1","type":"ios","username":"admin"}`)

	rec := portal.do(t, cookie, http.MethodPut, "/api/devices/10.0.0.1",
		`{"name":"core1","address":"10.0.0.2","type":"ios","username":"admin"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for re-keying attempt, got %d", rec.Code)
	}
}

func TestListNodes(t *testing.T) {
	portal := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nodes.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"name":"core1","ip":"10.0.0.1","status":"success","mtime":"2026-01-02 03:04:05"}]`))
	}))
	cookie := portal.login(t)
	portal.do(t, cookie, http.MethodPost, "/api/devices",
		`{"name":"core1","address":"10.0.0.1","type":"ios","username":"admin","password":"s3cret"}`)

	rec := portal.do(t, cookie, http.MethodGet, "/api/nodes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var rows []reconcile.EnrichedDevice
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != "success" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if strings.Contains(rec.Body.String(), "s3cret") {
		t.Fatalf("node list leaks secrets: %s", rec.Body.String())
	}
}

func TestListNodesCollectorDown(t *testing.T) {
	portal := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	cookie := portal.login(t)

	rec := portal.do(t, cookie, http.MethodGet, "/api/nodes", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != msgCollectorDown {
		t.Fatalf("expected collector message, got %q", body["error"])
	}
}

func TestNodeConfigIsPlainText(t *testing.T) {
	portal := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/node/fetch/10.0.0.1" {
			w.Write([]byte("hostname core1\n"))
			return
		}
		http.NotFound(w, r)
	}))
	cookie := portal.login(t)
	portal.do(t, cookie, http.MethodPost, "/api/devices",
		`{"name":"core1","address":"10.0.0.1","type":"ios","username":"admin"}`)

	rec := portal.do(t, cookie, http.MethodGet, "/api/nodes/10.0.0.1/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain, got %q", ct)
	}
	if rec.Body.String() != "hostname core1\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestDeviceMutationAuditMetadata(t *testing.T) {
	portal := newTestPortal(t, nil)
	cookie := portal.login(t)

	portal.do(t, cookie, http.MethodPost, "/api/devices",
		`{"name":"core1","address":"10.0.0.1","type":"ios","username":"admin","password":"s3cret"}`)
	portal.do(t, cookie, http.MethodPut, "/api/devices/10.0.0.1",
		`{"name":"core1","type":"ios","username":"admin","enable":"en4ble"}`)

	created := portal.audit.byAction(audit.ActionDeviceCreate)
	if len(created) != 1 {
		t.Fatalf("expected one create entry, got %d", len(created))
	}
	var createMeta map[string]any
	if err := json.Unmarshal(created[0].Metadata, &createMeta); err != nil {
		t.Fatalf("decode create metadata: %v", err)
	}
	if createMeta["name"] != "core1" || createMeta["password_set"] != true || createMeta["enable_set"] != false {
		t.Fatalf("unexpected create metadata %v", createMeta)
	}
	if strings.Contains(string(created[0].Metadata), "s3cret") {
		t.Fatalf("audit metadata leaks secrets: %s", created[0].Metadata)
	}
	if created[0].Actor != "operator" {
		t.Fatalf("expected session account as actor, got %q", created[0].Actor)
	}

	updated := portal.audit.byAction(audit.ActionDeviceUpdate)
	if len(updated) != 1 {
		t.Fatalf("expected one update entry, got %d", len(updated))
	}
	var updateMeta map[string]any
	if err := json.Unmarshal(updated[0].Metadata, &updateMeta); err != nil {
		t.Fatalf("decode update metadata: %v", err)
	}
	if updateMeta["password_changed"] != false || updateMeta["enable_changed"] != true {
		t.Fatalf("unexpected update metadata %v", updateMeta)
	}
	if strings.Contains(string(updated[0].Metadata), "en4ble") {
		t.Fatalf("audit metadata leaks secrets: %s", updated[0].Metadata)
	}
}

func TestExportNodes(t *testing.T) {
	portal := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"core1","ip":"10.0.0.1","status":"success","mtime":"2026-01-02 03:04:05"}]`))
	}))
	cookie := portal.login(t)
	portal.do(t, cookie, http.MethodPost, "/api/devices",
		`{"name":"core1","address":"10.0.0.1","type":"ios","username":"admin"}`)

	rec := portal.do(t, cookie, http.MethodGet, "/api/nodes/export.xlsx", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx export: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected xlsx content type %q", ct)
	}

	rec = portal.do(t, cookie, http.MethodGet, "/api/nodes/export.pdf", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pdf export: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected pdf content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected a PDF document, got %q", rec.Body.Bytes()[:8])
	}
}

func TestNodeStatsPassthrough(t *testing.T) {
	portal := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/nodes/stats.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"core1":{"success":5}}`))
	}))
	cookie := portal.login(t)

	rec := portal.do(t, cookie, http.MethodGet, "/api/nodes/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != `{"core1":{"success":5}}` {
		t.Fatalf("expected verbatim payload, got %q", rec.Body.String())
	}

	down := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	cookie = down.login(t)
	rec = down.do(t, cookie, http.MethodGet, "/api/nodes/stats", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when the collector is down, got %d", rec.Code)
	}
}

func TestReloadEndpoints(t *testing.T) {
	var reloadAll, reloadNode bool
	portal := newTestPortal(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nodes.json":
			w.Write([]byte(`[]`))
		case "/reload.json":
			reloadAll = true
			w.Write([]byte(`{}`))
		case "/node/next/10.0.0.1.json":
			reloadNode = true
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	cookie := portal.login(t)
	portal.do(t, cookie, http.MethodPost, "/api/devices",
		`{"name":"core1","address":"10.0.0.1","type":"ios","username":"admin"}`)

	rec := portal.do(t, cookie, http.MethodGet, "/api/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reload all: expected 200, got %d", rec.Code)
	}
	if !reloadAll {
		t.Fatalf("expected reload trigger to reach the collector")
	}

	rec = portal.do(t, cookie, http.MethodGet, "/api/nodes/10.0.0.1/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reload node: expected 200, got %d", rec.Code)
	}
	if !reloadNode {
		t.Fatalf("expected node reload trigger to reach the collector")
	}

	// Unknown address never reaches the collector.
	rec = portal.do(t, cookie, http.MethodGet, "/api/nodes/10.0.0.9/reload", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown reload: expected 404, got %d", rec.Code)
	}
}
