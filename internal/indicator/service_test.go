package indicator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netedge-siem/internal/docstore"
	"netedge-siem/internal/model"
	"netedge-siem/pkg/logger"
)

type allowAllAPTs struct{}

func (allowAllAPTs) Exists(ctx context.Context, id int64) (bool, error) { return true, nil }

type denyAPTs struct{}

func (denyAPTs) Exists(ctx context.Context, id int64) (bool, error) { return false, nil }

// noGroupLookup resolves every id to "not found", exercising the
// tag-derivation path without contributing any apt: tags.
type noGroupLookup struct{}

func (noGroupLookup) GetAPTGroup(ctx context.Context, id int64) (*model.APTGroup, error) {
	return nil, nil
}

// fakeGroupLookup resolves ids against an in-memory id->name map.
type fakeGroupLookup map[int64]string

func (f fakeGroupLookup) GetAPTGroup(ctx context.Context, id int64) (*model.APTGroup, error) {
	name, ok := f[id]
	if !ok {
		return nil, nil
	}
	return &model.APTGroup{ID: id, Name: name}, nil
}

func TestAddManualIoC_DropsUnknownAPTGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"_id": "ioc-1", "result": "created"})
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	ioc := model.IoC{
		Value:                 "198.51.100.7",
		Type:                  model.IoCTypeIPv4,
		AttributedAPTGroupIDs: []int64{99},
	}
	result, err := svc.AddManualIoC(context.Background(), ioc, denyAPTs{}, noGroupLookup{})
	require.NoError(t, err)
	assert.Equal(t, "ioc-1", result.ID)
	assert.Empty(t, result.AttributedAPTGroupIDs)
	assert.True(t, result.IsActive)
}

func TestAddManualIoC_KeepsKnownAPTGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"_id": "ioc-2", "result": "created"})
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	ioc := model.IoC{Value: "evil.example", Type: model.IoCTypeDomainName, AttributedAPTGroupIDs: []int64{1}}
	result, err := svc.AddManualIoC(context.Background(), ioc, allowAllAPTs{}, fakeGroupLookup{1: "APT28"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.AttributedAPTGroupIDs)
	assert.Equal(t, []string{"apt:apt28"}, result.Tags)
}

func TestAddManualIoC_DerivesSortedDedupedTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"_id": "ioc-4", "result": "created"})
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	ioc := model.IoC{
		Value:                 "10.10.10.10",
		Type:                  model.IoCTypeIPv4,
		Tags:                  []string{"manual", "apt:zzz-placeholder"},
		AttributedAPTGroupIDs: []int64{2, 1, 1},
	}
	lookup := fakeGroupLookup{1: "APT 28!", 2: "Sandworm Team"}
	result, err := svc.AddManualIoC(context.Background(), ioc, allowAllAPTs{}, lookup)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, result.AttributedAPTGroupIDs)
	assert.Equal(t, []string{"apt:apt_28_", "apt:sandworm_team", "apt:zzz-placeholder", "manual"}, result.Tags)
}

func TestFindByValue_ParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"hits": map[string]interface{}{
				"hits": []map[string]interface{}{
					{"_id": "ioc-3", "_source": map[string]interface{}{"value": "10.0.0.5", "type": model.IoCTypeIPv4, "is_active": true}},
				},
			},
		})
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	found, err := svc.FindByValue(context.Background(), "10.0.0.5", model.IoCTypeIPv4)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ioc-3", found[0].ID)
	assert.Equal(t, "10.0.0.5", found[0].Value)
}

func TestUnlinkAPTFromAll_ReturnsUpdatedCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"updated": 4, "took": 12})
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	updated, err := svc.UnlinkAPTFromAll(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 4, updated)
}

func TestLinkToAPT_AppendsIDAndDerivesTags(t *testing.T) {
	var updateBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "/_update/"):
			_ = json.NewDecoder(r.Body).Decode(&updateBody)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "updated"})
		case strings.HasSuffix(r.URL.Path, "/_search"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"hits": map[string]interface{}{
					"hits": []map[string]interface{}{
						{
							"_id":    "ioc-9",
							"_index": "siem-iocs-2026.07",
							"_source": map[string]interface{}{
								"value":                    "198.51.100.9",
								"type":                     model.IoCTypeIPv4,
								"tags":                     []string{"manual"},
								"attributed_apt_group_ids": []int64{1},
							},
						},
					},
				},
			})
		}
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	lookup := fakeGroupLookup{1: "APT28", 2: "Sandworm"}
	_, err := svc.LinkToAPT(context.Background(), "ioc-9", 2, allowAllAPTs{}, lookup)
	require.NoError(t, err)

	doc, _ := updateBody["doc"].(map[string]interface{})
	require.NotNil(t, doc)
	ids, _ := doc["attributed_apt_group_ids"].([]interface{})
	assert.ElementsMatch(t, []interface{}{float64(1), float64(2)}, ids)
	tags, _ := doc["tags"].([]interface{})
	assert.ElementsMatch(t, []interface{}{"apt:apt28", "apt:sandworm", "manual"}, tags)
}

func TestLinkToAPT_UnknownGroupFails(t *testing.T) {
	store := docstore.New("http://unused.invalid", logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	_, err := svc.LinkToAPT(context.Background(), "ioc-9", 99, denyAPTs{}, noGroupLookup{})
	require.Error(t, err)
}

func TestUpdate_MergesFieldsAndRederivesTags(t *testing.T) {
	var updateBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "/_update/"):
			_ = json.NewDecoder(r.Body).Decode(&updateBody)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "updated"})
		case strings.HasSuffix(r.URL.Path, "/_search"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"hits": map[string]interface{}{
					"hits": []map[string]interface{}{
						{
							"_id":    "ioc-5",
							"_index": "siem-iocs-2026.07",
							"_source": map[string]interface{}{
								"value":                    "evil.example",
								"type":                     model.IoCTypeDomainName,
								"description":              "old description",
								"tags":                     []string{"manual"},
								"attributed_apt_group_ids": []int64{1},
							},
						},
					},
				},
			})
		}
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	lookup := fakeGroupLookup{1: "APT28"}
	result, err := svc.Update(context.Background(), "ioc-5", map[string]interface{}{"description": "new description"}, lookup)
	require.NoError(t, err)
	assert.Equal(t, "new description", result.Description)
	assert.Equal(t, []string{"apt:apt28", "manual"}, result.Tags)

	doc, _ := updateBody["doc"].(map[string]interface{})
	require.NotNil(t, doc)
	assert.Equal(t, "new description", doc["description"])
}

func TestDelete_LocatesIndexThenDeletes(t *testing.T) {
	var deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodDelete:
			deleted = true
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "deleted"})
		case strings.HasSuffix(r.URL.Path, "/_search"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"hits": map[string]interface{}{
					"hits": []map[string]interface{}{
						{"_id": "ioc-6", "_index": "siem-iocs-2026.07", "_source": map[string]interface{}{"value": "10.0.0.6"}},
					},
				},
			})
		}
	}))
	defer srv.Close()

	store := docstore.New(srv.URL, logger.NewNoop())
	svc := New(store, logger.NewNoop(), nil)

	err := svc.Delete(context.Background(), "ioc-6")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestAPTNamesForSourceType(t *testing.T) {
	assert.ElementsMatch(t, []string{"APT28", "Gamaredon"}, aptNamesForSourceType(model.IoCSourceTypeMISP))
	assert.ElementsMatch(t, []string{"Sandworm", "Turla"}, aptNamesForSourceType(model.IoCSourceTypeOpenCTI))
	assert.Len(t, aptNamesForSourceType(model.IoCSourceTypeMock), 4)
	assert.Nil(t, aptNamesForSourceType(model.IoCSourceTypeInternal))
}
