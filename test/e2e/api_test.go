// Package e2e drives the HTTP API end to end over a real listener: a
// suggestion is proposed, voted past the review gate, decided by an admin,
// and rolled back, all through JSON requests.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/access"
	"github.com/hyperjump/naosu/internal/config"
	"github.com/hyperjump/naosu/internal/evaluation"
	"github.com/hyperjump/naosu/internal/history"
	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/queue"
	"github.com/hyperjump/naosu/internal/review"
	"github.com/hyperjump/naosu/internal/server"
	"github.com/hyperjump/naosu/internal/storage"
	)

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

type identity struct {
	id, role string
}

var (
	admin  = identity{"adm-1", "admin"}
	editor = identity{"ed-1", "editor"}
	nobody = identity{}
)

func voter(i int) identity {
	return identity{fmt.Sprintf("voter-%d", i), "viewer"}
}

// do sends one JSON request and decodes the response body into dst when
// dst is non-nil. It returns the status code.
func (c *client) do(method, path string, as identity, body, dst interface{}) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatal(err)
	}
	if as.id != "" {
		req.Header.Set("X-Actor-Id", as.id)
		req.Header.Set("X-Actor-Role", as.role)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer resp.Body.Close()
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			c.t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func newClient(t *testing.T) *client {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "naosu.db")
	db, err := storage.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	seed(t, db)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = dbPath

	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	m := metrics.NewWith(registry)
	q := queue.New(db, logger, m, cfg.Review.MinEvaluations, cfg.Review.DefaultThreshold)
	ledger := evaluation.New(db, logger, m, q)
	hist := history.New(db, logger, m, cfg.History.PageSize)
	resolver := access.NewRoleResolver(db)
	rev := review.New(db, hist, resolver, logger, m)

	srv := server.NewServer(db, ledger, q, hist, rev, resolver, cfg, logger, m, registry)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &client{t: t, base: ts.URL, http: ts.Client()}
}

func TestFullRevisionLifecycle(t *testing.T) {
	c := newClient(t)

	var sug models.Suggestion
	status := c.do("POST", "/api/v1/suggestions", editor, map[string]string{
		"paragraph_id": paragraphID,
		"text":         "proposed replacement text",
	}, &sug)
	if status != http.StatusCreated {
		t.Fatalf("create suggestion status = %d", status)
	}
	if sug.ID == "" || sug.CreatorID != editor.id {
		t.Fatalf("suggestion = %+v", sug)
	}

	// unanimous agreement from five distinct voters crosses the gate
	var res evaluation.Result
	for i := 0; i < 5; i++ {
		status = c.do("POST", "/api/v1/evaluations", voter(i), map[string]interface{}{
			"suggestion_id": sug.ID, "value": 1,
		}, &res)
		if status != http.StatusOK {
			t.Fatalf("vote %d status = %d", i, status)
		}
	}
	if res.AgreeCount != 5 || res.Consensus <= 0.5 {
		t.Fatalf("after 5 votes: %+v", res)
	}

	var listing struct {
		Items []*models.PendingReplacement `json:"items"`
	}
	path := "/api/v1/documents/" + documentID + "/queue"
	if status = c.do("GET", path, admin, nil, &listing); status != http.StatusOK {
		t.Fatalf("list queue status = %d", status)
	}
	if len(listing.Items) != 1 || listing.Items[0].SuggestionID != sug.ID {
		t.Fatalf("queue = %+v", listing.Items)
	}
	queueID := listing.Items[0].ID

	var item models.PendingReplacement
	status = c.do("POST", "/api/v1/queue/"+queueID+"/decision", admin, map[string]string{
		"action": "approve", "notes": "reads better",
	}, &item)
	if status != http.StatusOK {
		t.Fatalf("approve status = %d", status)
	}
	if item.Status != models.StatusApproved {
		t.Fatalf("item status = %s", item.Status)
	}

	// a repeated decision is answered with the winning resolution
	var conflict struct {
		Error string                     `json:"error"`
		Item  *models.PendingReplacement `json:"item"`
	}
	status = c.do("POST", "/api/v1/queue/"+queueID+"/decision", admin, map[string]string{
		"action": "reject", "notes": "changed my mind",
	}, &conflict)
	if status != http.StatusConflict {
		t.Fatalf("second decision status = %d", status)
	}
	if conflict.Item == nil || conflict.Item.Status != models.StatusApproved {
		t.Fatalf("conflict body = %+v", conflict)
	}

	var versions models.VersionListing
	path = "/api/v1/paragraphs/" + paragraphID + "/versions"
	if status = c.do("GET", path, admin, nil, &versions); status != http.StatusOK {
		t.Fatalf("versions status = %d", status)
	}
	if versions.Total != 2 {
		t.Fatalf("versions total = %d", versions.Total)
	}
	if !versions.Entries[0].Current || versions.Entries[0].Text != "proposed replacement text" {
		t.Fatalf("current entry = %+v", versions.Entries[0])
	}

	// only the document owner may roll back, and rollback mints a new version
	status = c.do("POST", "/api/v1/paragraphs/"+paragraphID+"/rollback",
		admin, map[string]interface{}{"version": 1}, nil)
	if status != http.StatusForbidden {
		t.Fatalf("admin rollback status = %d", status)
	}
	var restored models.Paragraph
	status = c.do("POST", "/api/v1/paragraphs/"+paragraphID+"/rollback",
		owner, map[string]interface{}{"version": 1, "notes": "revert"}, &restored)
	if status != http.StatusOK {
		t.Fatalf("owner rollback status = %d", status)
	}
	if restored.VersionNumber != 3 || restored.Text != originalText {
		t.Fatalf("restored = v%d %q", restored.VersionNumber, restored.Text)
	}
}

func TestRequestValidationAndIdentity(t *testing.T) {
	c := newClient(t)

	// body validation happens before any identity or storage work
	var errBody map[string]string
	status := c.do("POST", "/api/v1/suggestions", editor, map[string]string{
		"paragraph_id": paragraphID,
	}, &errBody)
	if status != http.StatusBadRequest {
		t.Errorf("missing text status = %d", status)
	}

	var sug models.Suggestion
	c.do("POST", "/api/v1/suggestions", editor, map[string]string{
		"paragraph_id": paragraphID, "text": "anything",
	}, &sug)

	status = c.do("POST", "/api/v1/evaluations", nobody, map[string]interface{}{
		"suggestion_id": sug.ID, "value": 1,
	}, nil)
	if status != http.StatusForbidden {
		t.Errorf("anonymous vote status = %d", status)
	}
	status = c.do("POST", "/api/v1/evaluations", editor, map[string]interface{}{
		"suggestion_id": sug.ID, "value": 1,
	}, nil)
	if status != http.StatusForbidden {
		t.Errorf("self-evaluation status = %d", status)
	}
	status = c.do("POST", "/api/v1/evaluations", voter(0), map[string]interface{}{
		"suggestion_id": sug.ID, "value": 2,
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("out-of-range value status = %d", status)
	}
	status = c.do("POST", "/api/v1/evaluations", voter(0), map[string]interface{}{
		"suggestion_id": "nope", "value": 1,
	}, nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown suggestion status = %d", status)
	}
}

func TestHealthStatusAndMetrics(t *testing.T) {
	c := newClient(t)

	var health map[string]string
	if status := c.do("GET", "/health", nobody, nil, &health); status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}
	if health["status"] != "ok" {
		t.Errorf("health = %+v", health)
	}

	var statusBody struct {
		Stats  *storage.Stats         `json:"stats"`
		Config map[string]interface{} `json:"config"`
	}
	if status := c.do("GET", "/api/v1/status", admin, nil, &statusBody); status != http.StatusOK {
		t.Fatalf("status endpoint = %d", status)
	}
	if statusBody.Stats == nil || statusBody.Config["min_evaluations"] == nil {
		t.Errorf("status body = %+v", statusBody)
	}

	resp, err := c.http.Get(c.base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(raw, []byte("naosu_")) {
		t.Error("metrics exposition carries no naosu series")
	}
}
