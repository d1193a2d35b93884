package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	e := engine.New(conn, cfg)
	handler, err := New(Config{Engine: e, BasePath: "/v1"})
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
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
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
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func fullDocuments() map[string]string {
	return map[string]string{
		"land_rights":              "doc-1",
		"farm_map":                 "doc-2",
		"water_source_certificate": "doc-3",
		"cultivation_sop":          "doc-4",
	}
}

func createApplication(t *testing.T, srv *testServer, docs map[string]string) domain.Application {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/applications", map[string]any{
		"farmer_id": "farmer-1",
		"farm_name": "Green Valley Farm",
		"crop_type": "chamomile",
		"documents": docs,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create application: %d %s", res.StatusCode, string(data))
	}
	var a domain.Application
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal application: %v", err)
	}
	return a
}

func TestApplicationHappyPath(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	a := createApplication(t, srv, fullDocuments())
	if a.Status != domain.StatusDraft {
		t.Fatalf("expected draft, got %s", a.Status)
	}
	appURL := srv.URL + "/v1/applications/" + a.ID

	res, data := doJSON(t, client, http.MethodPost, appURL+"/submit", nil, map[string]string{"X-Actor-Id": "farmer-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, appURL+"/review/start", map[string]any{
		"reviewer_id": "reviewer-1",
	}, map[string]string{"X-Actor-Id": "reviewer-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review start: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, appURL+"/review/complete", map[string]any{
		"approved":        true,
		"inspector_id":    "inspector-1",
		"inspection_date": "2026-04-01T09:00:00Z",
	}, map[string]string{"X-Actor-Id": "reviewer-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review complete: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, appURL+"/inspection/start", map[string]any{
		"inspector_id": "inspector-1",
	}, map[string]string{"X-Actor-Id": "inspector-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("inspection start: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, appURL+"/inspection/complete", map[string]any{
		"score":              92,
		"passed":             true,
		"sop_implemented":    true,
		"traceability_ready": true,
		"quality_control":    true,
	}, map[string]string{"X-Actor-Id": "inspector-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("inspection complete: %d %s", res.StatusCode, string(data))
	}
	var transition TransitionResponse
	if err := json.Unmarshal(data, &transition); err != nil {
		t.Fatalf("unmarshal transition: %v", err)
	}
	if transition.Application.Status != domain.StatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", transition.Application.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, appURL+"/approve", map[string]any{}, map[string]string{"X-Actor-Id": "director-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &transition); err != nil {
		t.Fatalf("unmarshal approve: %v", err)
	}
	issued := transition.Application
	if issued.Status != domain.StatusCertificateIssued {
		t.Fatalf("expected certificate_issued, got %s", issued.Status)
	}
	if issued.CertificateID == nil {
		t.Fatalf("expected certificate id")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/certificates/"+*issued.CertificateID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get certificate: %d %s", res.StatusCode, string(data))
	}
	var cert domain.Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		t.Fatalf("unmarshal certificate: %v", err)
	}
	if cert.ApplicationID != issued.ID || cert.Status != domain.CertificateActive {
		t.Fatalf("unexpected certificate %+v", cert)
	}

	res, data = doJSON(t, client, http.MethodGet, appURL+"/history", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", res.StatusCode, string(data))
	}
	var history HistoryResponse
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Entries) != 10 {
		t.Fatalf("expected 10 history entries, got %d", len(history.Entries))
	}
}

func TestSubmitMissingDocumentsReturns422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	a := createApplication(t, srv, map[string]string{"land_rights": "doc-1"})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/applications/"+a.ID+"/submit", nil, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %s", envelope.Error.Code)
	}
}

func TestInvalidTransitionReturns409(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	a := createApplication(t, srv, fullDocuments())
	// approve straight from draft
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications/"+a.ID+"/approve", map[string]any{}, map[string]string{"X-Actor-Id": "director-1"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", envelope.Error.Code)
	}
	if envelope.Error.Details["from"] != "draft" || envelope.Error.Details["to"] != "approved" {
		t.Fatalf("expected edge details, got %v", envelope.Error.Details)
	}
}

func TestGetUnknownApplicationReturns404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/applications/no-such-id", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestRejectAndListByStatus(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	a := createApplication(t, srv, fullDocuments())
	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications/"+a.ID+"/submit", nil, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications/"+a.ID+"/reject", map[string]any{
		"reason": "falsified land documentation",
	}, map[string]string{"X-Actor-Id": "reviewer-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/applications?status=rejected", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var items []domain.Application
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("expected the rejected application, got %+v", items)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createApplication(t, srv, fullDocuments())
	a := createApplication(t, srv, fullDocuments())
	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/applications/"+a.ID+"/submit", nil, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/statistics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("statistics: %d %s", res.StatusCode, string(data))
	}
	var stats StatisticsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	counts := map[domain.Status]int{}
	for _, s := range stats.Statuses {
		counts[s.Status] = s.Count
	}
	if counts[domain.StatusDraft] != 1 || counts[domain.StatusSubmitted] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestVerifyEndpointWithoutSecret(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/certificates/verify?token=abc", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", res.StatusCode, string(data))
	}
	var verify CertificateVerifyResponse
	if err := json.Unmarshal(data, &verify); err != nil {
		t.Fatalf("unmarshal verify: %v", err)
	}
	if verify.Valid {
		t.Fatalf("expected invalid verification without signing secret")
	}
}
