// Package indicator is the threat-indicator (IoC) service: CRUD over
// documents stored in the time-sharded siem-iocs-* indices, APT-group
// linkage, and periodic feed ingestion. Grounded on indicators/services.py
// (IndicatorService) and ioc_sources/services.py (fetch_and_store_iocs_from_source).
//
// The original wires an APTGroupService in directly and comments that it
// deliberately avoids a top-level import of it to dodge a dependency
// cycle (see the "НЕ РОБИМО" / TYPE_CHECKING guard in indicators/services.py).
// Here that's expressed as three narrow interfaces injected by the caller
// instead of a runtime-deferred import.
package indicator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"netedge-siem/internal/docstore"
	"netedge-siem/internal/model"
	"netedge-siem/pkg/logger"
	"netedge-siem/pkg/redisutil"
)

const iocsIndexPrefix = "siem-iocs"

const findByValueCacheTTL = 30 * time.Second

// APTGroupExistence checks whether an APT group id is known, used to drop
// dangling attributions before an IoC is written.
type APTGroupExistence interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// APTGroupEnsurer resolves APT group names to ids, creating any that don't
// exist yet. Used by feed ingestion, which references APT groups by name.
type APTGroupEnsurer interface {
	EnsureGroupsExist(ctx context.Context, names []string) (map[string]int64, error)
}

// APTGroupLookup resolves an APT group id to its group, used to derive
// apt:<safe-name> tags (DESIGN NOTES §9: "pass just lookup_apt_by_id(id)
// → APTGroup? into the indicator service"). A nil group and nil error
// means the id doesn't exist.
type APTGroupLookup interface {
	GetAPTGroup(ctx context.Context, id int64) (*model.APTGroup, error)
}

// Service is the indicator service.
type Service struct {
	store *docstore.Client
	log   logger.Logger
	cache *redisutil.LookupCache
}

// New creates an indicator service over store. cache may be nil to disable
// find-by-value caching (e.g. in tests).
func New(store *docstore.Client, log logger.Logger, cache *redisutil.LookupCache) *Service {
	return &Service{store: store, log: log, cache: cache}
}

// AddManualIoC validates attributed APT group ids, derives apt:<safe-name>
// tags from the surviving ids, stamps bookkeeping timestamps and indexes
// the IoC. attributed_apt_group_ids referencing an unknown group are
// dropped with a warning rather than failing the call.
func (s *Service) AddManualIoC(ctx context.Context, ioc model.IoC, apts APTGroupExistence, lookup APTGroupLookup) (*model.IoC, error) {
	var valid []int64
	for _, id := range ioc.AttributedAPTGroupIDs {
		ok, err := apts.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check apt group %d: %w", id, err)
		}
		if !ok {
			s.log.Warn("apt group referenced by ioc not found, skipping", "apt_id", id, "ioc_value", ioc.Value)
			continue
		}
		valid = append(valid, id)
	}
	ioc.AttributedAPTGroupIDs = sortDedupeInt64(valid)

	tags, err := s.deriveTags(ctx, ioc.Tags, ioc.AttributedAPTGroupIDs, lookup)
	if err != nil {
		return nil, err
	}
	ioc.Tags = tags

	now := time.Now().UTC()
	ts := ioc.LastSeen
	if ts.IsZero() {
		ts = ioc.FirstSeen
	}
	if ts.IsZero() {
		ts = now
	}
	ioc.Timestamp = ts
	ioc.CreatedAtSIEM = now
	ioc.UpdatedAtSIEM = now
	ioc.IsActive = true

	index := docstore.IndexName(iocsIndexPrefix, ts)
	id, err := s.store.IndexDocument(ctx, index, ioc)
	if err != nil {
		s.log.Error("failed to index ioc", "value", ioc.Value, "error", err)
		return nil, err
	}
	ioc.ID = id
	return &ioc, nil
}

// FindByValue looks up IoCs by exact value, optionally narrowed by type.
// When the service has a cache, results are cached for a short TTL. The
// correlation engine does not call this; it queries the document store
// directly.
func (s *Service) FindByValue(ctx context.Context, value, iocType string) ([]model.IoC, error) {
	cacheKey := value + "|" + iocType
	if s.cache != nil {
		var cached []model.IoC
		if s.cache.Get(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	must := []map[string]interface{}{{"term": map[string]interface{}{"value.keyword": value}}}
	if iocType != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"type": iocType}})
	}
	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"must": must}},
		"size":  100,
	}
	resp, err := s.store.Search(ctx, "siem-iocs-*", body)
	if err != nil {
		return nil, err
	}
	iocs := parseIoCHits(resp)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, iocs); err != nil {
			s.log.Warn("failed to cache ioc lookup", "value", value, "error", err)
		}
	}
	return iocs, nil
}

// ByAPTGroup lists IoCs attributed to the given APT group, paginated.
func (s *Service) ByAPTGroup(ctx context.Context, aptGroupID int64, skip, limit int) ([]model.IoC, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{"attributed_apt_group_ids": aptGroupID}},
		"from":  skip,
		"size":  limit,
		"sort": []map[string]interface{}{
			{"updated_at_siem": map[string]interface{}{"order": "desc"}},
			{"created_at_siem": map[string]interface{}{"order": "desc"}},
		},
	}
	resp, err := s.store.Search(ctx, "siem-iocs-*", body)
	if err != nil {
		return nil, err
	}
	return parseIoCHits(resp), nil
}

// List returns all IoCs, newest-updated first, paginated.
func (s *Service) List(ctx context.Context, skip, limit int) ([]model.IoC, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
		"from":  skip,
		"size":  limit,
		"sort": []map[string]interface{}{
			{"updated_at_siem": map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
			{"created_at_siem": map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
		},
	}
	resp, err := s.store.Search(ctx, "siem-iocs-*", body)
	if err != nil {
		return nil, err
	}
	return parseIoCHits(resp), nil
}

// CreatedToday returns IoCs added to the SIEM today (UTC calendar day).
func (s *Service) CreatedToday(ctx context.Context, skip, limit int) ([]model.IoC, error) {
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24 * time.Hour)

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"created_at_siem": map[string]interface{}{
					"gte": startOfDay.Format(time.RFC3339Nano),
					"lt":  endOfDay.Format(time.RFC3339Nano),
				},
			},
		},
		"from": skip,
		"size": limit,
		"sort": []map[string]interface{}{{"created_at_siem": map[string]interface{}{"order": "desc"}}},
	}
	resp, err := s.store.Search(ctx, "siem-iocs-*", body)
	if err != nil {
		return nil, err
	}
	return parseIoCHits(resp), nil
}

// SummaryByType returns a count of active IoCs grouped by type.
func (s *Service) SummaryByType(ctx context.Context) (map[string]int64, error) {
	body := map[string]interface{}{
		"size":  0,
		"query": map[string]interface{}{"term": map[string]interface{}{"is_active": true}},
		"aggs": map[string]interface{}{
			"by_type": map[string]interface{}{"terms": map[string]interface{}{"field": "type", "size": 50}},
		},
	}
	resp, err := s.store.Search(ctx, "siem-iocs-*", body)
	if err != nil {
		return nil, err
	}
	return parseTermsAgg(resp, "by_type"), nil
}

// UniqueTags returns the distinct set of tags across all IoCs.
func (s *Service) UniqueTags(ctx context.Context) ([]string, error) {
	body := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"tags": map[string]interface{}{"terms": map[string]interface{}{"field": "tags", "size": 500}},
		},
	}
	resp, err := s.store.Search(ctx, "siem-iocs-*", body)
	if err != nil {
		return nil, err
	}
	counts := parseTermsAgg(resp, "tags")
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	return tags, nil
}

// LinkToAPT attaches aptGroupID to the IoC identified by iocID, appending
// to attributed_apt_group_ids only if absent, recomputing derived tags
// from the resulting id set, and refreshing updated_at_siem — mirroring
// indicators/services.py's link_ioc_to_apt plus its tag-derivation pass.
func (s *Service) LinkToAPT(ctx context.Context, iocID string, aptGroupID int64, apts APTGroupExistence, lookup APTGroupLookup) (*model.IoC, error) {
	ok, err := apts.Exists(ctx, aptGroupID)
	if err != nil {
		return nil, fmt.Errorf("check apt group %d: %w", aptGroupID, err)
	}
	if !ok {
		return nil, fmt.Errorf("apt group %d not found", aptGroupID)
	}

	index, err := s.indexForID(ctx, iocID)
	if err != nil {
		return nil, err
	}
	current, err := s.getByIDInIndex(ctx, index, iocID)
	if err != nil {
		return nil, err
	}

	ids := sortDedupeInt64(append(append([]int64{}, current.AttributedAPTGroupIDs...), aptGroupID))
	tags, err := s.deriveTags(ctx, current.Tags, ids, lookup)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"doc": map[string]interface{}{
			"attributed_apt_group_ids": ids,
			"tags":                     tags,
			"updated_at_siem":          time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	if err := s.store.UpdateByID(ctx, index, iocID, body); err != nil {
		return nil, fmt.Errorf("link ioc %s to apt group %d: %w", iocID, aptGroupID, err)
	}
	return s.getByIDInIndex(ctx, index, iocID)
}

// UnlinkAPTFromAll removes aptGroupID from every IoC that references it,
// mirroring remove_apt_id_from_all_iocs. Returns the number of IoC documents
// Elasticsearch reports as updated, so a caller deleting the APT group can
// report how many indicators it scrubbed.
func (s *Service) UnlinkAPTFromAll(ctx context.Context, aptGroupID int64) (int, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{"attributed_apt_group_ids": aptGroupID}},
		"script": map[string]interface{}{
			"lang": "painless",
			"source": "if (ctx._source.attributed_apt_group_ids != null && ctx._source.attributed_apt_group_ids.contains(params.apt_id)) { " +
				"ArrayList newIds = new ArrayList(); for (def id : ctx._source.attributed_apt_group_ids) { if (id != params.apt_id) { newIds.add(id); } } " +
				"ctx._source.attributed_apt_group_ids = newIds; ctx._source.updated_at_siem = params.now; } else { ctx.op = 'noop'; }",
			"params": map[string]interface{}{"apt_id": aptGroupID, "now": time.Now().UTC().Format(time.RFC3339Nano)},
		},
	}
	return s.store.UpdateByQuery(ctx, "siem-iocs-*", body)
}

// Update partially merges updates into the IoC identified by iocID —
// present keys overwrite, absent keys are left untouched — then
// recomputes derived tags from the resulting attributed_apt_group_ids and
// refreshes updated_at_siem, mirroring indicators/services.py's update.
func (s *Service) Update(ctx context.Context, iocID string, updates map[string]interface{}, lookup APTGroupLookup) (*model.IoC, error) {
	index, err := s.indexForID(ctx, iocID)
	if err != nil {
		return nil, err
	}
	current, err := s.getByIDInIndex(ctx, index, iocID)
	if err != nil {
		return nil, err
	}

	merged, err := mergeIoCUpdates(*current, updates)
	if err != nil {
		return nil, fmt.Errorf("merge ioc %s update: %w", iocID, err)
	}

	merged.AttributedAPTGroupIDs = sortDedupeInt64(merged.AttributedAPTGroupIDs)
	merged.Tags, err = s.deriveTags(ctx, merged.Tags, merged.AttributedAPTGroupIDs, lookup)
	if err != nil {
		return nil, err
	}
	merged.UpdatedAtSIEM = time.Now().UTC()

	if err := s.store.UpdateByID(ctx, index, iocID, map[string]interface{}{"doc": merged}); err != nil {
		return nil, fmt.Errorf("update ioc %s: %w", iocID, err)
	}
	merged.ID = iocID
	return &merged, nil
}

// Delete locates the index hosting iocID via search-by-id, then deletes
// the document, mirroring indicators/services.py's delete.
func (s *Service) Delete(ctx context.Context, iocID string) error {
	index, err := s.indexForID(ctx, iocID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteByID(ctx, index, iocID); err != nil {
		return fmt.Errorf("delete ioc %s: %w", iocID, err)
	}
	return nil
}

func (s *Service) indexForID(ctx context.Context, id string) (string, error) {
	body := map[string]interface{}{"query": map[string]interface{}{"ids": map[string]interface{}{"values": []string{id}}}}
	resp, err := s.store.Search(ctx, "siem-iocs-*", body)
	if err != nil {
		return "", err
	}
	hit, ok := firstHit(resp)
	if !ok {
		return "", fmt.Errorf("ioc %s not found", id)
	}
	index, _ := hit["_index"].(string)
	return index, nil
}

func (s *Service) getByIDInIndex(ctx context.Context, index, id string) (*model.IoC, error) {
	body := map[string]interface{}{"query": map[string]interface{}{"ids": map[string]interface{}{"values": []string{id}}}}
	resp, err := s.store.Search(ctx, index, body)
	if err != nil {
		return nil, err
	}
	iocs := parseIoCHits(resp)
	if len(iocs) == 0 {
		return nil, fmt.Errorf("ioc %s not found after update", id)
	}
	return &iocs[0], nil
}

// deriveTags computes the IoC's stored tag set: tags plus apt:<safe-name>
// for every id in aptIDs whose group resolves, sorted and deduplicated
// (spec §4.6 "Derived tags", §8 invariant on i.tags).
func (s *Service) deriveTags(ctx context.Context, tags []string, aptIDs []int64, lookup APTGroupLookup) ([]string, error) {
	set := make(map[string]struct{}, len(tags)+len(aptIDs))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	for _, id := range aptIDs {
		group, err := lookup.GetAPTGroup(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lookup apt group %d for tag derivation: %w", id, err)
		}
		if group == nil {
			continue
		}
		set[aptTag(group.Name)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// aptTag renders an APT group name as its apt:<safe-name> tag: lowercased,
// with every non-alphanumeric rune replaced by '_'.
func aptTag(name string) string {
	var b strings.Builder
	b.WriteString("apt:")
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// sortDedupeInt64 returns ids sorted ascending with duplicates removed.
func sortDedupeInt64(ids []int64) []int64 {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// mergeIoCUpdates applies a partial field update onto current the way the
// original's dict.update() does: updates's keys overwrite current's,
// everything else is left alone.
func mergeIoCUpdates(current model.IoC, updates map[string]interface{}) (model.IoC, error) {
	encoded, err := json.Marshal(current)
	if err != nil {
		return model.IoC{}, err
	}
	base := map[string]interface{}{}
	if err := json.Unmarshal(encoded, &base); err != nil {
		return model.IoC{}, err
	}
	for k, v := range updates {
		base[k] = v
	}

	mergedEncoded, err := json.Marshal(base)
	if err != nil {
		return model.IoC{}, err
	}
	var merged model.IoC
	if err := json.Unmarshal(mergedEncoded, &merged); err != nil {
		return model.IoC{}, err
	}
	return merged, nil
}

func firstHit(resp map[string]interface{}) (map[string]interface{}, bool) {
	hitsRaw, _ := resp["hits"].(map[string]interface{})
	hitsList, _ := hitsRaw["hits"].([]interface{})
	if len(hitsList) == 0 {
		return nil, false
	}
	hit, ok := hitsList[0].(map[string]interface{})
	return hit, ok
}

func parseIoCHits(resp map[string]interface{}) []model.IoC {
	hitsRaw, _ := resp["hits"].(map[string]interface{})
	hitsList, _ := hitsRaw["hits"].([]interface{})
	out := make([]model.IoC, 0, len(hitsList))
	for _, h := range hitsList {
		hit, ok := h.(map[string]interface{})
		if !ok {
			continue
		}
		source, _ := hit["_source"].(map[string]interface{})
		id, _ := hit["_id"].(string)
		b, err := json.Marshal(source)
		if err != nil {
			continue
		}
		var ioc model.IoC
		if err := json.Unmarshal(b, &ioc); err != nil {
			continue
		}
		ioc.ID = id
		out = append(out, ioc)
	}
	return out
}

func parseTermsAgg(resp map[string]interface{}, aggName string) map[string]int64 {
	out := map[string]int64{}
	aggs, _ := resp["aggregations"].(map[string]interface{})
	agg, _ := aggs[aggName].(map[string]interface{})
	buckets, _ := agg["buckets"].([]interface{})
	for _, b := range buckets {
		bucket, ok := b.(map[string]interface{})
		if !ok {
			continue
		}
		key, _ := bucket["key"].(string)
		count, _ := bucket["doc_count"].(float64)
		out[key] = int64(count)
	}
	return out
}
