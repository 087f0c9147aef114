// Package graph talks to the external lineage graph service over HTTP.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/helixdata/metasearch/internal/domain/lineage"
	"github.com/helixdata/metasearch/internal/domain/urn"
	"github.com/helixdata/metasearch/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Config holds the graph service connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is an HTTP client for the lineage graph service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a graph service client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("graph service base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type lineageRequest struct {
	URN       string `json:"urn"`
	Direction string `json:"direction"`
	Offset    int    `json:"offset"`
	Count     int    `json:"count"`
	MaxHops   int    `json:"maxHops"`
}

type lineageRelationship struct {
	Entity string     `json:"entity"`
	Type   string     `json:"type,omitempty"`
	Degree int        `json:"degree"`
	Paths  [][]string `json:"paths,omitempty"`
}

type lineageResponse struct {
	Relationships []lineageRelationship `json:"relationships"`
	Start         int                   `json:"start"`
	Count         int                   `json:"count"`
	Total         int                   `json:"total"`
}

// GetLineage fetches the hop-limited lineage graph around one entity.
func (c *Client) GetLineage(
	ctx context.Context, source urn.URN, direction lineage.Direction,
	offset, count, maxHops int,
) (lineage.Result, error) {
	payload, err := json.Marshal(lineageRequest{
		URN:       source.String(),
		Direction: string(direction),
		Offset:    offset,
		Count:     count,
		MaxHops:   maxHops,
	})
	if err != nil {
		return lineage.Result{}, fmt.Errorf("encode lineage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/lineage", bytes.NewReader(payload))
	if err != nil {
		return lineage.Result{}, fmt.Errorf("build lineage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.LineageGraphRequestsTotal.WithLabelValues("error").Inc()
		return lineage.Result{}, fmt.Errorf("graph service: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		metrics.LineageGraphRequestsTotal.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return lineage.Result{}, fmt.Errorf("graph service returned status %d: %s",
			resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded lineageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.LineageGraphRequestsTotal.WithLabelValues("error").Inc()
		return lineage.Result{}, fmt.Errorf("decode lineage response: %w", err)
	}
	metrics.LineageGraphRequestsTotal.WithLabelValues("success").Inc()
	return toDomain(decoded)
}

func toDomain(resp lineageResponse) (lineage.Result, error) {
	relationships := make([]lineage.Relationship, 0, len(resp.Relationships))
	for _, rel := range resp.Relationships {
		entity, err := urn.Parse(rel.Entity)
		if err != nil {
			return lineage.Result{}, fmt.Errorf("lineage relationship: %w", err)
		}
		var paths [][]urn.URN
		for _, rawPath := range rel.Paths {
			path := make([]urn.URN, 0, len(rawPath))
			for _, raw := range rawPath {
				node, err := urn.Parse(raw)
				if err != nil {
					return lineage.Result{}, fmt.Errorf("lineage path: %w", err)
				}
				path = append(path, node)
			}
			paths = append(paths, path)
		}
		relationships = append(relationships, lineage.Relationship{
			Entity: entity,
			Type:   rel.Type,
			Degree: rel.Degree,
			Paths:  paths,
		})
	}
	return lineage.Result{
		Relationships: relationships,
		Start:         resp.Start,
		Count:         resp.Count,
		Total:         resp.Total,
	}, nil
}
