package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PineconeConfig configures the Pinecone backend. BaseURL is the data-plane
// host; when empty it is resolved from Index through the controller API.
type PineconeConfig struct {
	APIKey            string
	BaseURL           string
	Index             string
	ControllerBaseURL string
	Timeout           time.Duration
}

// Pinecone talks to the Pinecone REST data plane. Namespaces map to Pinecone
// namespaces.
type Pinecone struct {
	cfg    PineconeConfig
	client *http.Client
	logger *zap.Logger

	mu      sync.RWMutex
	baseURL string
}

func NewPinecone(cfg PineconeConfig, logger *zap.Logger) (*Pinecone, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: pinecone api key is required", ErrNotConfigured)
	}
	if cfg.BaseURL == "" && cfg.Index == "" {
		return nil, fmt.Errorf("%w: pinecone base url or index name is required", ErrNotConfigured)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ControllerBaseURL == "" {
		cfg.ControllerBaseURL = "https://api.pinecone.io"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pinecone{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "pinecone")),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
	}, nil
}

func (p *Pinecone) host(ctx context.Context) (string, error) {
	p.mu.RLock()
	base := p.baseURL
	p.mu.RUnlock()
	if base != "" {
		return base, nil
	}

	controller := strings.TrimRight(p.cfg.ControllerBaseURL, "/")
	endpoint := fmt.Sprintf("%s/indexes/%s", controller, url.PathEscape(p.cfg.Index))
	var describe struct {
		Host string `json:"host"`
	}
	if err := p.send(ctx, http.MethodGet, endpoint, nil, &describe); err != nil {
		return "", fmt.Errorf("describing pinecone index: %w", err)
	}
	host := strings.TrimSpace(describe.Host)
	if host == "" {
		return "", fmt.Errorf("pinecone returned no host for index %q", p.cfg.Index)
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	host = strings.TrimRight(host, "/")

	p.mu.Lock()
	p.baseURL = host
	p.mu.Unlock()
	p.logger.Info("resolved pinecone host", zap.String("host", host))
	return host, nil
}

func (p *Pinecone) doJSON(ctx context.Context, path string, in, out any) error {
	base, err := p.host(ctx)
	if err != nil {
		return err
	}
	return p.send(ctx, http.MethodPost, base+path, in, out)
}

func (p *Pinecone) send(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pinecone %s %s: status=%d body=%s", method, endpoint, resp.StatusCode, string(raw))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (p *Pinecone) Upsert(ctx context.Context, namespace string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	vectors := make([]pineconeVector, len(points))
	for i, pt := range points {
		vectors[i] = pineconeVector{ID: pt.ID, Values: pt.Vector, Metadata: pt.Metadata}
	}
	req := struct {
		Vectors   []pineconeVector `json:"vectors"`
		Namespace string           `json:"namespace"`
	}{vectors, namespace}
	return p.doJSON(ctx, "/vectors/upsert", req, nil)
}

func (p *Pinecone) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	req := struct {
		Vector          []float32 `json:"vector"`
		TopK            int       `json:"topK"`
		Namespace       string    `json:"namespace"`
		IncludeMetadata bool      `json:"includeMetadata"`
	}{vector, topK, namespace, true}

	var resp struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := p.doJSON(ctx, "/query", req, &resp); err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return out, nil
}

func (p *Pinecone) UpdateMetadata(ctx context.Context, namespace, id string, fields map[string]any) error {
	req := struct {
		ID          string         `json:"id"`
		SetMetadata map[string]any `json:"setMetadata"`
		Namespace   string         `json:"namespace"`
	}{id, fields, namespace}
	return p.doJSON(ctx, "/vectors/update", req, nil)
}

func (p *Pinecone) Delete(ctx context.Context, namespace string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	req := struct {
		IDs       []string `json:"ids"`
		Namespace string   `json:"namespace"`
	}{ids, namespace}
	return p.doJSON(ctx, "/vectors/delete", req, nil)
}

func (p *Pinecone) DeleteNamespace(ctx context.Context, namespace string) error {
	req := struct {
		DeleteAll bool   `json:"deleteAll"`
		Namespace string `json:"namespace"`
	}{true, namespace}
	return p.doJSON(ctx, "/vectors/delete", req, nil)
}

func (p *Pinecone) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
