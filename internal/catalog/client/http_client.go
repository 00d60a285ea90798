package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	catalogdomain "github.com/smallbiznis/commissary/internal/catalog/domain"
	"github.com/smallbiznis/commissary/internal/config"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) catalogdomain.Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.CatalogBaseURL, "/"),
		apiKey:  cfg.CatalogAPIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.Named("catalog.client"),
	}
}

type createProductResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateProduct(ctx context.Context, product catalogdomain.Product) (string, error) {
	if c.baseURL == "" {
		return "", catalogdomain.ErrCatalogUnavailable
	}

	body, err := json.Marshal(product)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/products", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", catalogdomain.ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("catalog create rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("product", product.Name),
		)
		return "", fmt.Errorf("%w: status %d", catalogdomain.ErrCatalogUnavailable, resp.StatusCode)
	}

	var created createProductResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	return strings.TrimSpace(created.ID), nil
}
