package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"diningflow/internal/domain"
)

// OpenSearch queries an OpenSearch-compatible index over HTTP. The
// query scores matching documents randomly so repeated requests get
// varied picks instead of the same top hits every time.
type OpenSearch struct {
	endpoint string
	index    string
	client   *http.Client
}

func NewOpenSearch(endpoint, index string, timeout time.Duration) *OpenSearch {
	return &OpenSearch{
		endpoint: strings.TrimRight(endpoint, "/"),
		index:    index,
		client:   &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				RestaurantID string `json:"RestaurantID"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *OpenSearch) Find(ctx context.Context, cuisine, location string, limit int) ([]string, error) {
	must := []any{
		map[string]any{"term": map[string]any{"Cuisine": strings.ToLower(cuisine)}},
	}
	if location != "" {
		must = append(must, map[string]any{"match": map[string]any{"Location": location}})
	}
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"function_score": map[string]any{
				"query":        map[string]any{"bool": map[string]any{"must": must}},
				"random_score": map[string]any{"seed": rand.Int63n(1_000_000)},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/_search", c.endpoint, c.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Network failure or timeout: transient, let redelivery retry.
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]string, 0, limit)
	seen := make(map[string]struct{})
	for _, hit := range parsed.Hits.Hits {
		rid := hit.Source.RestaurantID
		if rid == "" {
			continue
		}
		if _, dup := seen[rid]; dup {
			continue
		}
		seen[rid] = struct{}{}
		ids = append(ids, rid)
		if len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("search returned HTTP %d: %s", resp.StatusCode, string(snippet))
	// A rejected query will be rejected again; only server-side trouble
	// is worth a redelivery.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return domain.Terminal(err)
	}
	return err
}
