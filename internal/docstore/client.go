// Package docstore is the time-sharded document-store writer and search
// passthrough. It is grounded on the reference Elasticsearch writer
// (elasticsearch_writer.py) and follows the teacher's pkg/database thin
// wrapper-over-driver shape, retargeted at an HTTP document store instead
// of a SQL driver.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"netedge-siem/pkg/logger"
)

// compatibleWith8 is sent on every request so the client interoperates with
// Elasticsearch 8.x servers regardless of the server's default media type.
const compatibleWith8 = "application/vnd.elasticsearch+json;compatible-with=8"

// Client is a minimal HTTP document-store client: no retries, failures are
// reported to the caller as a boolean plus a structured log (spec §4.5).
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// New creates a document-store client against baseURL (e.g. "http://es:9200").
func New(baseURL string, log logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// IndexName computes "<prefix>-YYYY.MM.DD" from ts, interpreted in UTC.
func IndexName(prefix string, ts time.Time) string {
	return prefix + "-" + ts.UTC().Format("2006.01.02")
}

// WriteEvent indexes a document under indexPrefix, deriving the target
// index from the document's timestamp. doc must already be JSON-marshalable.
// The writer uses store-generated ids; deterministic ids are not required.
func (c *Client) WriteEvent(ctx context.Context, indexPrefix string, ts time.Time, doc interface{}) bool {
	index := IndexName(indexPrefix, ts)
	body, err := json.Marshal(doc)
	if err != nil {
		c.log.Error("docstore serialization failed", "index", index, "error", err)
		return false
	}

	url := fmt.Sprintf("%s/%s/_doc", c.baseURL, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.log.Error("docstore request build failed", "index", index, "error", err)
		return false
	}
	req.Header.Set("Content-Type", compatibleWith8)
	req.Header.Set("Accept", compatibleWith8)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("docstore connection failed", "index", index, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.log.Error("docstore write rejected", "index", index, "status", resp.StatusCode)
		return false
	}
	return true
}

// IndexDocument indexes doc into the concrete index name (not a prefix)
// and returns the store-generated document id. Used where a caller needs
// the id back immediately, such as the indicator service reporting the
// new IoC's ioc_id to its caller.
func (c *Client) IndexDocument(ctx context.Context, index string, doc interface{}) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("serialize document: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_doc", c.baseURL, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build index request: %w", err)
	}
	req.Header.Set("Content-Type", compatibleWith8)
	req.Header.Set("Accept", compatibleWith8)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("index connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("index rejected with status %d", resp.StatusCode)
	}

	var decoded struct {
		ID     string `json:"_id"`
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode index response: %w", err)
	}
	return decoded.ID, nil
}

// Search issues a raw search body against the given index pattern (e.g.
// "siem-syslog-events-*") and returns the decoded response. Used by the
// correlation engine and indicator service for aggregation/lookup queries.
func (c *Client) Search(ctx context.Context, indexPattern string, body map[string]interface{}) (map[string]interface{}, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("serialize search body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_search", c.baseURL, indexPattern)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", compatibleWith8)
	req.Header.Set("Accept", compatibleWith8)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search rejected with status %d", resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return out, nil
}

// UpdateByQuery runs a scripted update against every document matching body's
// query, returning the number of documents Elasticsearch reports as updated.
// conflicts is always "proceed", leaving concurrent-write resolution to the
// store rather than failing the whole batch on a version conflict.
func (c *Client) UpdateByQuery(ctx context.Context, indexPattern string, body map[string]interface{}) (int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("serialize update_by_query body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_update_by_query?conflicts=proceed", c.baseURL, indexPattern)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("build update_by_query request: %w", err)
	}
	req.Header.Set("Content-Type", compatibleWith8)
	req.Header.Set("Accept", compatibleWith8)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("update_by_query connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("update_by_query rejected with status %d", resp.StatusCode)
	}

	var result struct {
		Updated int `json:"updated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode update_by_query response: %w", err)
	}
	return result.Updated, nil
}

// UpdateByID applies a partial/scripted update to a single document.
func (c *Client) UpdateByID(ctx context.Context, index, id string, body map[string]interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("serialize update body: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_update/%s", c.baseURL, index, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", compatibleWith8)
	req.Header.Set("Accept", compatibleWith8)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("update rejected with status %d", resp.StatusCode)
	}
	return nil
}

// DeleteByID deletes a single document from index.
func (c *Client) DeleteByID(ctx context.Context, index, id string) error {
	url := fmt.Sprintf("%s/%s/_doc/%s", c.baseURL, index, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Accept", compatibleWith8)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete rejected with status %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck pings the store's root endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("docstore health check failed with status %d", resp.StatusCode)
	}
	return nil
}
