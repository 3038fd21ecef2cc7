package browse

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcat/internal/stac"
)

func testTree() *stac.Catalog {
	root := stac.NewCatalog("sen1floods11", "test", "Sen1Floods11")
	dt := time.Date(2018, 2, 15, 0, 0, 0, 0, time.UTC)

	s1 := stac.NewCollection("S1", "imagery", "Sentinel-1", nil, "")
	s1.AddItem(stac.NewItem("Bolivia_103757_S1", stac.BoxPolygon(-66, -15, -65, -14), &dt, nil))

	labels := stac.NewCollection("QC_v2", "labels", "", nil, "")
	lbl := stac.NewItem("Bolivia_103757_QC", stac.BoxPolygon(-66, -15, -65, -14), &dt, nil)
	lbl.AddLink(stac.SourceLink("Bolivia_103757_S1", "labels"))
	lbl.AddLink(stac.SourceLink("Bolivia_103757_S2", "labels"))
	labels.AddItem(lbl)

	group := stac.NewCatalog("derived", "", "")
	group.AddChild(labels)

	root.AddChild(s1)
	root.AddChild(group)
	return root
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, NewRouter(testTree(), ""), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","catalog":"sen1floods11"}`, rec.Body.String())
}

func TestCollections(t *testing.T) {
	rec := get(t, NewRouter(testTree(), ""), "/collections")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []CollectionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []CollectionSummary{
		{ID: "S1", Title: "Sentinel-1", Parent: "sen1floods11", Items: 1},
		{ID: "QC_v2", Parent: "derived", Items: 1},
	}, got)
}

func TestItem(t *testing.T) {
	h := NewRouter(testTree(), "")

	rec := get(t, h, "/items/Bolivia_103757_QC")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Bolivia_103757_QC", doc["id"])
	assert.Equal(t, []any{-66.0, -15.0, -65.0, -14.0}, doc["bbox"])

	rec = get(t, h, "/items/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "item not found")
}

func TestLinks_ResolvesAndSkipsDangling(t *testing.T) {
	h := NewRouter(testTree(), "")

	rec := get(t, h, "/items/Bolivia_103757_QC/links/source")
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Bolivia_103757_S1", docs[0]["id"])

	rec = get(t, h, "/items/Bolivia_103757_QC/links/labels")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, h, "/items/nope/links/source")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalogDocuments(t *testing.T) {
	dir := t.TempDir()
	root := testTree()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.json"), []byte(`{"id":"sen1floods11"}`), 0o644))

	h := NewRouter(root, dir)
	rec := get(t, h, "/catalog/catalog.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"sen1floods11"}`, rec.Body.String())

	rec = get(t, NewRouter(root, ""), "/catalog/catalog.json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:8888")
	rec := httptest.NewRecorder()
	NewRouter(testTree(), "").ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
