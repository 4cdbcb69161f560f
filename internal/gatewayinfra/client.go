// Package gatewayinfra implements the remote data gateway over HTTP. All
// response-shape tolerance lives here: bodies are decoded once into uniform
// model types, so the repositories never see transport or envelope details.
package gatewayinfra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-offline-sync/model"
	"github.com/goliatone/go-offline-sync/repository"
)

// Interface assertion to ensure Client implements repository.RemoteGateway.
var _ repository.RemoteGateway = (*Client)(nil)

// Config configures the HTTP gateway client.
type Config struct {
	// BaseURL of the backing service, e.g. "https://api.example.com".
	BaseURL string
	// Token is sent as a bearer credential when set.
	Token string
	// UserID identifies the authenticated owner. Token issuance and storage
	// are outside this module; the platform layer supplies the resolved id.
	UserID string
	// Timeout for individual requests. Default: 10s.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is the HTTP repository.RemoteGateway implementation.
type Client struct {
	base   *url.URL
	token  string
	userID string
	http   *http.Client
	log    *slog.Logger
}

// New creates a gateway client from cfg.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:   base,
		token:  cfg.Token,
		userID: cfg.UserID,
		http:   httpClient,
		log:    logger,
	}, nil
}

// entityPath maps an entity type to its endpoint base.
func entityPath(entity model.EntityType) string {
	switch entity {
	case model.EntityCalorie:
		return "/calories/entries"
	default:
		return "/budget/transactions"
	}
}

func (c *Client) CreateItem(ctx context.Context, entity model.EntityType, item model.Item) (model.Item, error) {
	// The server assigns the canonical id; a temporary one never leaves the
	// device.
	if item.IsLocal() {
		item.ID = ""
	}

	body, err := c.post(ctx, entityPath(entity)+"/add", item)
	if err != nil {
		return model.Item{}, err
	}

	created, duplicate, ok := decodeMutation(body)
	if !ok {
		return model.Item{}, fmt.Errorf("create rejected by server")
	}
	if duplicate {
		// The server deduplicated on its side; treat as success with the
		// record it already holds.
		c.log.Debug("server reported duplicate on create", "entity", string(entity), "id", created.ID)
	}
	return created, nil
}

func (c *Client) UpdateItem(ctx context.Context, entity model.EntityType, item model.Item) error {
	body, err := c.post(ctx, entityPath(entity)+"/update", item)
	if err != nil {
		return err
	}
	if !decodeSuccess(body) {
		return fmt.Errorf("update rejected by server")
	}
	return nil
}

func (c *Client) DeleteItem(ctx context.Context, entity model.EntityType, id string) error {
	body, err := c.post(ctx, entityPath(entity)+"/delete", map[string]string{"id": id})
	if err != nil {
		return err
	}
	if !decodeSuccess(body) {
		return fmt.Errorf("delete rejected by server")
	}
	return nil
}

func (c *Client) QueryItems(ctx context.Context, entity model.EntityType, ownerID string, period model.Period) ([]model.Item, error) {
	body, err := c.post(ctx, entityPath(entity), map[string]string{
		"user_id": ownerID,
		"period":  string(period),
	})
	if err != nil {
		return nil, err
	}

	res := model.DecodeItems(body)
	if res.Kind == model.RemoteEmpty && len(body) > 0 && !looksEmpty(body) {
		c.log.Warn("unexpected response shape treated as empty result", "entity", string(entity))
	}
	return res.Items, nil
}

func (c *Client) FetchAnalysis(ctx context.Context, ownerID, month string) (model.Analysis, error) {
	body, err := c.get(ctx, "/budget/analysis", url.Values{
		"user_id": {ownerID},
		"month":   {month},
	})
	if err != nil {
		return model.Analysis{}, err
	}

	analysis, ok := decodeAnalysis(body)
	if !ok {
		return model.Analysis{}, fmt.Errorf("analysis response missing payload")
	}
	return analysis, nil
}

func (c *Client) CurrentUserID(_ context.Context) (string, bool) {
	return c.userID, c.userID != ""
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path, nil), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path, query), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s returned status %d", req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func looksEmpty(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return trimmed == "" || trimmed == "[]" || trimmed == "{}" || trimmed == "null"
}
