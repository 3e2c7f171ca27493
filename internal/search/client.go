package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/telemetry"
)

// Index names
const (
	IndexTracks = "tracks"
	IndexUsers  = "users"
)

// ErrUnavailable is returned by operations that need Elasticsearch when it is not configured
var ErrUnavailable = errors.New("search: elasticsearch not configured")

// Client wraps the Elasticsearch client with Soundbay's indices
type Client struct {
	es *elasticsearch.Client
}

// NewClient builds a client for cfg. Outbound requests are traced.
func NewClient(cfg config.SearchConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrUnavailable
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ElasticsearchURL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: telemetry.NewInstrumentedTransport(http.DefaultTransport),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	return &Client{es: es}, nil
}

// Ping checks the cluster answers
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "pinging cluster")
}

func responseError(res *esapi.Response, action string) error {
	if !res.IsError() {
		return nil
	}
	var errResp map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("error %s: [%s]", action, res.Status())
	}
	return fmt.Errorf("error %s: [%s] %v", action, res.Status(), errResp["error"])
}

func (c *Client) indexDocument(ctx context.Context, index, id string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", index, err)
	}
	res, err := c.es.Index(index, bytes.NewReader(body),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index %s document: %w", index, err)
	}
	defer res.Body.Close()
	return responseError(res, "indexing "+index+" document")
}

// deleteDocument treats a missing document as already deleted
func (c *Client) deleteDocument(ctx context.Context, index, id string) error {
	res, err := c.es.Delete(index, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete %s document: %w", index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError(res, "deleting "+index+" document")
}

func (c *Client) IndexTrack(ctx context.Context, doc TrackDoc) error {
	return c.indexDocument(ctx, IndexTracks, doc.ID, doc)
}

func (c *Client) IndexUser(ctx context.Context, doc UserDoc) error {
	return c.indexDocument(ctx, IndexUsers, doc.ID, doc)
}

func (c *Client) DeleteTrack(ctx context.Context, trackID string) error {
	return c.deleteDocument(ctx, IndexTracks, trackID)
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.deleteDocument(ctx, IndexUsers, userID)
}

// bulkIndex writes docs keyed by id in one request
func (c *Client) bulkIndex(ctx context.Context, index string, ids []string, docs []interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, doc := range docs {
		action := map[string]interface{}{"index": map[string]interface{}{"_index": index, "_id": ids[i]}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()), c.es.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to bulk index %s: %w", index, err)
	}
	defer res.Body.Close()
	if err := responseError(res, "bulk indexing "+index); err != nil {
		return err
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkResp.Errors {
		return fmt.Errorf("bulk indexing %s reported item errors", index)
	}
	return nil
}

// Hits is a page of matching document ids, best match first
type Hits struct {
	IDs   []string `json:"ids"`
	Total int64    `json:"total"`
}

// SearchTracks runs a fuzzy multi-field match over the tracks index
func (c *Client) SearchTracks(ctx context.Context, query string, limit, offset int) (*Hits, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"title^3", "tags^2", "genre^2", "username", "display_name", "description"},
				"fuzziness": "AUTO",
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"like_count": map[string]interface{}{"order": "desc"}},
		},
		"from":    offset,
		"size":    limit,
		"_source": false,
	}
	return c.search(ctx, IndexTracks, body)
}

// SearchUsers matches username, display name and bio
func (c *Client) SearchUsers(ctx context.Context, query string, limit, offset int) (*Hits, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{"match": map[string]interface{}{"username": map[string]interface{}{
						"query": query, "boost": 2.0, "fuzziness": "AUTO", "prefix_length": 1,
					}}},
					{"match": map[string]interface{}{"display_name": map[string]interface{}{
						"query": query, "boost": 1.5, "fuzziness": "AUTO",
					}}},
					{"match": map[string]interface{}{"bio": map[string]interface{}{
						"query": query, "boost": 0.5, "fuzziness": "AUTO",
					}}},
				},
				"minimum_should_match": 1,
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"follower_count": map[string]interface{}{"order": "desc"}},
		},
		"from":    offset,
		"size":    limit,
		"_source": false,
	}
	return c.search(ctx, IndexUsers, body)
}

func (c *Client) search(ctx context.Context, index string, query map[string]interface{}) (*Hits, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(queryJSON)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()
	if err := responseError(res, "searching "+index); err != nil {
		return nil, err
	}

	var searchResp struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := &Hits{Total: searchResp.Hits.Total.Value, IDs: make([]string, 0, len(searchResp.Hits.Hits))}
	for _, h := range searchResp.Hits.Hits {
		hits.IDs = append(hits.IDs, h.ID)
	}
	return hits, nil
}
