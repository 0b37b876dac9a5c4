package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/erozee1/bomkit/internal/bom/service"
	"github.com/erozee1/bomkit/internal/bom/store"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := service.NewSnapshotService(store.NewMemStore(), nil, nil, 0)
	handlers := NewHandlers(svc)

	router := gin.New()
	api := router.Group("/api/v1")
	handlers.RegisterRoutes(api)
	return router
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, env
}

func ingestBody(assemblyName string, quantity string, refdes string) map[string]interface{} {
	return map[string]interface{}{
		"org_id":        "org-1",
		"assembly_name": assemblyName,
		"raw_rows": []map[string]string{
			{
				"part_number":          "RES-10K-0402",
				"quantity":             quantity,
				"value":                "10k",
				"reference_designator": refdes,
			},
		},
	}
}

func ingestSnapshot(t *testing.T, router *gin.Engine, body map[string]interface{}) string {
	t.Helper()
	w, env := doJSON(t, router, http.MethodPost, "/api/v1/snapshots", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d, body %s", w.Code, w.Body.String())
	}
	var result struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode ingest result: %v", err)
	}
	if result.SnapshotID == "" {
		t.Fatal("empty snapshot_id")
	}
	return result.SnapshotID
}

func TestIngestSnapshotEndpoint(t *testing.T) {
	router := setupRouter(t)
	snapID := ingestSnapshot(t, router, ingestBody("MAIN", "5", "R1"))

	// 元数据可读
	w, env := doJSON(t, router, http.MethodGet, "/api/v1/snapshots/"+snapID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var info struct {
		SnapshotID   string `json:"snapshot_id"`
		AssemblyName string `json:"assembly_name"`
		Source       string `json:"source"`
	}
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.AssemblyName != "MAIN" || info.Source != "csv" {
		t.Errorf("info = %+v", info)
	}

	// 行项可读
	w, env = doJSON(t, router, http.MethodGet, "/api/v1/snapshots/"+snapID+"/items", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("items status = %d", w.Code)
	}
	var items struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if items.Count != 1 {
		t.Errorf("count = %d, want 1", items.Count)
	}
}

func TestIngestSnapshotEndpointValidation(t *testing.T) {
	router := setupRouter(t)

	// 缺org_id
	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/snapshots", map[string]interface{}{
		"assembly_name": "MAIN",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing org_id status = %d, want 400", w.Code)
	}

	// 装配体引用二选一
	body := ingestBody("MAIN", "5", "R1")
	body["assembly_id"] = "some-id"
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/snapshots", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("conflicting assembly refs status = %d, want 400", w.Code)
	}

	// 空行集
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/snapshots", map[string]interface{}{
		"org_id":        "org-1",
		"assembly_name": "MAIN",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("no rows status = %d, want 400", w.Code)
	}

	// 不存在的装配体ID
	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/snapshots", map[string]interface{}{
		"org_id":      "org-1",
		"assembly_id": "no-such-assembly",
		"raw_rows":    []map[string]string{{"part_number": "X", "quantity": "1"}},
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown assembly status = %d, want 404", w.Code)
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	router := setupRouter(t)
	w, _ := doJSON(t, router, http.MethodGet, "/api/v1/snapshots/no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDiffEndpoint(t *testing.T) {
	router := setupRouter(t)
	snapA := ingestSnapshot(t, router, ingestBody("MAIN", "5", "R1"))
	snapB := ingestSnapshot(t, router, ingestBody("MAIN", "10", "R1"))

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/diff", map[string]string{
		"snapshot_a_id": snapA,
		"snapshot_b_id": snapB,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("diff status = %d, body %s", w.Code, w.Body.String())
	}
	var result struct {
		AddedItems    []interface{} `json:"added_items"`
		RemovedItems  []interface{} `json:"removed_items"`
		ModifiedItems []interface{} `json:"modified_items"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if len(result.AddedItems) != 0 || len(result.RemovedItems) != 0 {
		t.Errorf("unexpected add/remove: %+v", result)
	}
	if len(result.ModifiedItems) != 1 {
		t.Errorf("modified = %d, want 1", len(result.ModifiedItems))
	}
}

func TestClassifyEndpoint(t *testing.T) {
	router := setupRouter(t)
	snapA := ingestSnapshot(t, router, ingestBody("MAIN", "5", "R1"))
	snapB := ingestSnapshot(t, router, ingestBody("MAIN", "10", "R1"))

	w, env := doJSON(t, router, http.MethodPost, "/api/v1/diff/classify", map[string]string{
		"snapshot_a_id": snapA,
		"snapshot_b_id": snapB,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("classify status = %d, body %s", w.Code, w.Body.String())
	}
	var result struct {
		Count  int `json:"count"`
		Events []struct {
			EventType string `json:"event_type"`
			Severity  string `json:"severity"`
		} `json:"events"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode classify: %v", err)
	}
	if result.Count != 1 || len(result.Events) != 1 {
		t.Fatalf("events = %+v", result)
	}
	if result.Events[0].EventType != "QUANTITY_CHANGED" {
		t.Errorf("event type = %s, want QUANTITY_CHANGED", result.Events[0].EventType)
	}

	// severity过滤
	w, env = doJSON(t, router, http.MethodPost, "/api/v1/diff/classify?severity=HIGH", map[string]string{
		"snapshot_a_id": snapA,
		"snapshot_b_id": snapB,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("classify status = %d", w.Code)
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode classify: %v", err)
	}
	if result.Count != 0 {
		t.Errorf("HIGH filter should drop MEDIUM event, got %d", result.Count)
	}
}

func TestDiffEndpointNotFound(t *testing.T) {
	router := setupRouter(t)
	snapA := ingestSnapshot(t, router, ingestBody("MAIN", "5", "R1"))

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/diff", map[string]string{
		"snapshot_a_id": snapA,
		"snapshot_b_id": "no-such-snapshot",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
