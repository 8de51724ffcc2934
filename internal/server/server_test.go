package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"erasure/internal/config"
	"erasure/internal/db"
	"erasure/internal/engine"
	"erasure/internal/migrate"
	"erasure/internal/vault"
)

const (
	testToken     = "test-operator-token"
	testJWTSecret = "test-jwt-secret"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(workspace, "plans", "brokers"), 0o755); err != nil {
		t.Fatal(err)
	}
	planYAML := `
plan_id: broker_acme
version: 1.0.0
targets:
  - target_id: site
    kind: website
tasks:
  - id: discover
    name: Discover listings
    type: scrape.static
    input:
      url: https://acme.example/search
`
	if err := os.WriteFile(filepath.Join(workspace, "plans", "brokers", "acme.yml"), []byte(planYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatal(err)
	}
	e := engine.New(conn, config.Default(workspace), v, nil)

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{StaticToken: testToken, JWTSecret: testJWTSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	resp, body := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/runs", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var envelope struct {
		Body struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Body.Code != "unauthorized" {
		t.Fatalf("error envelope = %s err=%v", body, err)
	}

	resp, _ = doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/runs", nil, map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token accepted: %d", resp.StatusCode)
	}

	// Health stays reachable for probes.
	resp, _ = doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %d", resp.StatusCode)
	}
}

func TestJWTAuth(t *testing.T) {
	s := newTestServer(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	resp, body := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/runs", nil, map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("jwt rejected: %d %s", resp.StatusCode, body)
	}

	// A token without a subject cannot act.
	anon, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}
	resp, _ = doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/runs", nil, map[string]string{"Authorization": "Bearer " + anon})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("subjectless jwt accepted: %d", resp.StatusCode)
	}
}

func TestCreateProfileRedactsPII(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/profiles", CreateProfileRequest{
		Label: "personal",
		Data: vault.ProfileData{
			FullName:       "Jane Doe",
			DateOfBirth:    "1984-07-02",
			EmailAddresses: []string{"jane@example.com"},
		},
	}, authHeader())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var created ProfileResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ProfileID == "" || created.DataHash == "" {
		t.Fatalf("response = %+v", created)
	}
	for _, leak := range []string{"Jane Doe", "1984-07-02", "jane@example.com"} {
		if strings.Contains(string(body), leak) {
			t.Fatalf("response leaks PII: %s", body)
		}
	}
}

func TestStartRunAndFetch(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/runs", StartRunRequest{
		PlanID:         "broker_acme",
		IdempotencyKey: "api-test-1",
	}, authHeader())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var started StartRunResponse
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !started.Created || started.Run.RunID == "" {
		t.Fatalf("started = %+v", started)
	}

	resp, body = doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/runs/"+started.Run.RunID, nil, authHeader())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch = %d %s", resp.StatusCode, body)
	}
	var detail RunDetailResponse
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Run.RunID != started.Run.RunID {
		t.Fatalf("detail = %+v", detail)
	}
	// Queued runs have no task rows yet; those appear as the runner executes.
	if len(detail.Tasks) != 0 {
		t.Fatalf("tasks = %+v", detail.Tasks)
	}

	// Replaying the idempotency key returns the same run.
	resp, body = doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/runs", StartRunRequest{
		PlanID:         "broker_acme",
		IdempotencyKey: "api-test-1",
	}, authHeader())
	var replayed StartRunResponse
	if err := json.Unmarshal(body, &replayed); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replayed.Created || replayed.Run.RunID != started.Run.RunID {
		t.Fatalf("replay = %+v", replayed)
	}

	// List endpoints return bare arrays.
	_, body = doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/runs", nil, authHeader())
	var runs []json.RawMessage
	if err := json.Unmarshal(body, &runs); err != nil || len(runs) != 1 {
		t.Fatalf("list = %s err=%v", body, err)
	}
}

func TestStartRunUnknownPlan(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/runs", StartRunRequest{
		PlanID: "broker_ghost",
	}, authHeader())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
}

func TestRunNotFound(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s.Client(), http.MethodGet, s.URL+"/v0/runs/does-not-exist", nil, authHeader())
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var envelope struct {
		Body struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Body.Code != "not_found" {
		t.Fatalf("envelope = %s", body)
	}
}

func TestSchedulesUnavailableWithoutScheduler(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/profiles", CreateProfileRequest{
		Data: vault.ProfileData{FullName: "Jane Doe"},
	}, authHeader())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create profile = %d %s", resp.StatusCode, body)
	}
	var created ProfileResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	resp, _ = doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/profiles/"+created.ProfileID+"/schedules", nil, authHeader())
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("schedules init without scheduler = %d", resp.StatusCode)
	}
}
