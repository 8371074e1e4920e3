package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/exp/slog"

	"tiklay/internal/app/client/config"
	"tiklay/internal/domain/remote"
	"tiklay/internal/domain/sync"
)

// StatusError ответ сервера с кодом 4xx или 5xx
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

type httpClient struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	userAgent string
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) *httpClient {
	client := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &httpClient{
		client:    client,
		log:       log.With("component", "http_client"),
		baseURL:   cfg.BaseURL(),
		userAgent: "Tiklay-Client/1.0",
	}
}

// HealthCheck проверяет доступность сервера; используется монитором связи
func (h *httpClient) HealthCheck(ctx context.Context) error {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return err
	}
	return h.parseResponse(resp, nil)
}

// Gateways шлюзы для всех синхронизируемых типов
func (h *httpClient) Gateways(types []string) sync.Gateways {
	gateways := make(sync.Gateways, len(types))
	for _, t := range types {
		gateways[t] = &Gateway{http: h, entityType: t}
	}
	return gateways
}

// Gateway коллекция одного типа на сервере
type Gateway struct {
	http       *httpClient
	entityType string
}

var _ sync.Gateway = (*Gateway)(nil)

func (g *Gateway) collection() string {
	return "/api/v1/" + url.PathEscape(g.entityType)
}

func (g *Gateway) item(id string) string {
	return g.collection() + "/" + url.PathEscape(id)
}

func (g *Gateway) Create(ctx context.Context, payload json.RawMessage) (sync.RemoteEntity, error) {
	resp, err := g.http.doRequest(ctx, http.MethodPost, g.collection(), payload)
	if err != nil {
		return sync.RemoteEntity{}, err
	}

	var out remote.EntityResponse
	if err := g.http.parseResponse(resp, &out); err != nil {
		return sync.RemoteEntity{}, err
	}
	return toRemote(out), nil
}

func (g *Gateway) Update(ctx context.Context, id string, payload json.RawMessage) (sync.RemoteEntity, error) {
	resp, err := g.http.doRequest(ctx, http.MethodPut, g.item(id), payload)
	if err != nil {
		return sync.RemoteEntity{}, err
	}

	var out remote.EntityResponse
	if err := g.http.parseResponse(resp, &out); err != nil {
		return sync.RemoteEntity{}, err
	}
	return toRemote(out), nil
}

// Delete считает 404 успешным удалением уже отсутствующей записи
func (g *Gateway) Delete(ctx context.Context, id string) (bool, error) {
	resp, err := g.http.doRequest(ctx, http.MethodDelete, g.item(id), nil)
	if err != nil {
		return false, err
	}

	var out remote.DeleteResponse
	if err := g.http.parseResponse(resp, &out); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return out.Deleted, nil
}

func (g *Gateway) GetAll(ctx context.Context) ([]sync.RemoteEntity, error) {
	resp, err := g.http.doRequest(ctx, http.MethodGet, g.collection(), nil)
	if err != nil {
		return nil, err
	}

	var out remote.ListResponse
	if err := g.http.parseResponse(resp, &out); err != nil {
		return nil, err
	}

	records := make([]sync.RemoteEntity, 0, len(out.Items))
	for _, item := range out.Items {
		records = append(records, toRemote(item))
	}
	return records, nil
}

func toRemote(e remote.EntityResponse) sync.RemoteEntity {
	return sync.RemoteEntity{
		ID:         e.ID,
		Payload:    e.Payload,
		ModifiedAt: e.UpdatedAt,
	}
}

func (h *httpClient) doRequest(ctx context.Context, method, path string, body json.RawMessage) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	h.log.Debug("sending request", "method", method, "url", req.URL.String())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (h *httpClient) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	h.log.Debug("response received", "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode >= 400 {
		// тело ошибки в формате huma: title и detail
		var errResp struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		se := &StatusError{Code: resp.StatusCode}
		if err := json.Unmarshal(body, &errResp); err == nil {
			se.Message = errResp.Detail
			if se.Message == "" {
				se.Message = errResp.Title
			}
		}
		return se
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
