package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"subscription_live/internal/models"
)

// ErrUnavailable means no search cluster is configured.
var ErrUnavailable = errors.New("search unavailable")

// Index keeps the products index of Elasticsearch in sync with the catalog.
type Index struct {
	client *elasticsearch.Client
	name   string
}

// NewIndex returns nil when client is nil, so callers can treat a missing
// cluster as "no index".
func NewIndex(client *elasticsearch.Client, name string) *Index {
	if client == nil {
		return nil
	}
	return &Index{client: client, name: name}
}

type document struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Features    []string `json:"features"`
	Price       float64  `json:"price"`
	IsActive    bool     `json:"is_active"`
}

func (i *Index) IndexProduct(ctx context.Context, p models.Product) error {
	if i == nil {
		return ErrUnavailable
	}

	data, err := json.Marshal(document{
		ID:          p.ID.String(),
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Category:    p.Category,
		Features:    p.Features,
		Price:       p.Price,
		IsActive:    p.IsActive,
	})
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.name,
		DocumentID: p.ID.String(),
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("index product: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index product %s: %s", p.Name, res.String())
	}
	log.Printf("✅ Product indexed in Elasticsearch: %s", p.Name)
	return nil
}

func (i *Index) DeleteProduct(ctx context.Context, id string) error {
	if i == nil {
		return ErrUnavailable
	}

	req := esapi.DeleteRequest{Index: i.name, DocumentID: id, Refresh: "true"}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("delete product from index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete product %s: %s", id, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns the ids of active products matching q, best match first.
func (i *Index) Search(ctx context.Context, q string, limit int) ([]string, error) {
	if i == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 20
	}

	var buf bytes.Buffer
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     strings.TrimSpace(q),
						"fields":    []string{"name^3", "category^2", "description", "features"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"is_active": true},
				},
			},
		},
	}
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	req := esapi.SearchRequest{Index: []string{i.name}, Body: &buf}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Printf("❌ Elasticsearch error: %s", res.String())
		return nil, fmt.Errorf("search failed with status %d", res.StatusCode)
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]string, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		ids = append(ids, hit.Source.ID)
	}
	return ids, nil
}
