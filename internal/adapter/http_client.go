package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/avetrov/offsync/internal/config"
	"github.com/avetrov/offsync/models"
)

type httpServerAdapter struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

// NewHTTPServerAdapter constructs a [ServerAdapter] speaking the REST entity
// API at cfg.BaseURL. Every call is bounded by cfg.RequestTimeout; a timeout
// surfaces as [ErrServerUnavailable].
func NewHTTPServerAdapter(cfg config.Adapter) ServerAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.RequestTimeout)

	return &httpServerAdapter{client: cli}
}

func (h *httpServerAdapter) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = strings.TrimSpace(token)
}

func (h *httpServerAdapter) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *httpServerAdapter) Create(ctx context.Context, entityType models.EntityType, req models.MutationRequest) (models.ServerRecord, error) {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/entities/" + string(entityType))
	if err != nil {
		return models.ServerRecord{}, fmt.Errorf("create request: %w", ErrServerUnavailable)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.ServerRecord{}, err
	}

	return decodeRecord(resp.Body())
}

func (h *httpServerAdapter) Update(ctx context.Context, entityType models.EntityType, id string, req models.MutationRequest) (models.ServerRecord, error) {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Put("/entities/" + string(entityType) + "/" + id)
	if err != nil {
		return models.ServerRecord{}, fmt.Errorf("update request: %w", ErrServerUnavailable)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.ServerRecord{}, err
	}

	return decodeRecord(resp.Body())
}

func (h *httpServerAdapter) Delete(ctx context.Context, entityType models.EntityType, id string, req models.MutationRequest) error {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Delete("/entities/" + string(entityType) + "/" + id)
	if err != nil {
		return fmt.Errorf("delete request: %w", ErrServerUnavailable)
	}

	return mapHTTPError(resp)
}

func (h *httpServerAdapter) Fetch(ctx context.Context, entityType models.EntityType, id string) (models.ServerRecord, error) {
	resp, err := h.authedRequest(ctx).Get("/entities/" + string(entityType) + "/" + id)
	if err != nil {
		return models.ServerRecord{}, fmt.Errorf("fetch request: %w", ErrServerUnavailable)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.ServerRecord{}, err
	}

	return decodeRecord(resp.Body())
}

func (h *httpServerAdapter) FetchAll(ctx context.Context, entityType models.EntityType) ([]models.ServerRecord, error) {
	resp, err := h.authedRequest(ctx).Get("/entities/" + string(entityType))
	if err != nil {
		return nil, fmt.Errorf("fetch all request: %w", ErrServerUnavailable)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var records []models.ServerRecord
	if err = json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, fmt.Errorf("decode fetch all response: %w", err)
	}

	return records, nil
}

func (h *httpServerAdapter) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)
	if token := h.Token(); token != "" {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return req
}

func decodeRecord(body []byte) (models.ServerRecord, error) {
	var rec models.ServerRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return models.ServerRecord{}, fmt.Errorf("decode server record: %w", err)
	}
	return rec, nil
}

// mapHTTPError classifies non-2xx responses into the sentinel errors of this
// package. A 409 body is decoded so the conflict carries the server's
// current record.
func mapHTTPError(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return nil
	}

	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized

	case code == http.StatusConflict:
		var cr models.ConflictResponse
		if err := json.Unmarshal(resp.Body(), &cr); err != nil {
			// Malformed conflict body: still a conflict, just without the
			// server state attached.
			return &ConflictError{}
		}
		return &ConflictError{CurrentVersion: cr.CurrentVersion, CurrentData: cr.CurrentData}

	case code >= http.StatusInternalServerError:
		return fmt.Errorf("http %d: %w", code, ErrServerUnavailable)

	default: // remaining 4xx
		body := strings.TrimSpace(string(resp.Body()))
		if body == "" {
			body = http.StatusText(code)
		}
		return fmt.Errorf("http %d: %s: %w", code, body, ErrRejected)
	}
}
