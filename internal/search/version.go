package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/soundbay/backend/internal/logger"
	"go.uber.org/zap"
)

// IndexVersion is stored in each index's _meta. Bump it whenever a mapping
// changes so EnsureIndices rebuilds the index.
const IndexVersion = 1

func keyword() map[string]interface{} { return map[string]interface{}{"type": "keyword"} }

func text() map[string]interface{} {
	return map[string]interface{}{"type": "text", "analyzer": "standard"}
}

func mappings() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		IndexTracks: {
			"id":               keyword(),
			"user_id":          keyword(),
			"title":            text(),
			"description":      text(),
			"genre":            map[string]interface{}{"type": "text", "fields": map[string]interface{}{"keyword": keyword()}},
			"tags":             text(),
			"username":         text(),
			"display_name":     text(),
			"duration_seconds": map[string]interface{}{"type": "float"},
			"play_count":       map[string]interface{}{"type": "integer"},
			"like_count":       map[string]interface{}{"type": "integer"},
			"created_at":       map[string]interface{}{"type": "date"},
		},
		IndexUsers: {
			"id":             keyword(),
			"username":       map[string]interface{}{"type": "text", "fields": map[string]interface{}{"keyword": keyword()}},
			"display_name":   text(),
			"bio":            text(),
			"genres":         keyword(),
			"follower_count": map[string]interface{}{"type": "integer"},
			"created_at":     map[string]interface{}{"type": "date"},
		},
	}
}

// EnsureIndices creates missing indices and rebuilds outdated ones. It
// reports whether any index was (re)created and so needs a reindex.
func (c *Client) EnsureIndices(ctx context.Context) (bool, error) {
	created := false
	for index, props := range mappings() {
		version, exists, err := c.indexVersion(ctx, index)
		if err != nil {
			return created, err
		}
		if exists && version >= IndexVersion {
			continue
		}
		if exists {
			logger.Log.Info("Rebuilding outdated search index",
				zap.String("index", index),
				zap.Int("version", version),
				zap.Int("want", IndexVersion))
			if err := c.deleteIndex(ctx, index); err != nil {
				return created, err
			}
		}
		if err := c.createIndex(ctx, index, props); err != nil {
			return created, err
		}
		created = true
	}
	return created, nil
}

// indexVersion reads _meta.version from the index mapping
func (c *Client) indexVersion(ctx context.Context, index string) (int, bool, error) {
	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithIndex(index),
		c.es.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get %s mapping: %w", index, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, false, nil
	}
	if err := responseError(res, "getting "+index+" mapping"); err != nil {
		return 0, false, err
	}

	var mappingResp map[string]struct {
		Mappings struct {
			Meta struct {
				Version int `json:"version"`
			} `json:"_meta"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&mappingResp); err != nil {
		// unreadable mapping; rebuild it
		return 0, true, nil
	}
	return mappingResp[index].Mappings.Meta.Version, true, nil
}

func (c *Client) createIndex(ctx context.Context, index string, props map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"mappings": map[string]interface{}{
			"_meta":      map[string]interface{}{"version": IndexVersion},
			"properties": props,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}
	res, err := c.es.Indices.Create(index,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "creating index "+index)
}

func (c *Client) deleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete([]string{index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	defer res.Body.Close()
	return responseError(res, "deleting index "+index)
}
