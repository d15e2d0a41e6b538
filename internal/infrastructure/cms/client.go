package cms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/pkg/logger"
)

const maxResponseBytes = 64 << 20

// StatusError is returned for non-2xx responses
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Config holds CMS connection settings
type Config struct {
	BaseURL          string
	Token            string
	PageSize         int
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client talks to the headless CMS items API
type Client struct {
	baseURL  *url.URL
	token    string
	pageSize int
	idField  string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
}

type listResponse struct {
	Data []json.RawMessage `json:"data"`
}

// NewClient creates a CMS-backed EntityStore
func NewClient(cfg Config, idField string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid cms base url %q", cfg.BaseURL)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if idField == "" {
		idField = entities.DefaultIDField
	}

	c := &Client{
		baseURL:  base,
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		idField:  idField,
		http:     &http.Client{Timeout: cfg.Timeout},
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "cms",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// client errors say nothing about the health of the CMS
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Code < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("CMS circuit breaker state changed", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})

	return c, nil
}

// IDField returns the identifier field
func (c *Client) IDField() string {
	return c.idField
}

// Ping checks that the CMS answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.endpoint(nil, "server", "ping"), nil)
	return err
}

// ListAll requests pages of kind until a short page is returned
func (c *Client) ListAll(ctx context.Context, kind entities.Kind) ([]entities.Record, error) {
	if kind == "" {
		return nil, repository.ErrUnknownKind
	}

	records := make([]entities.Record, 0)
	for offset := 0; ; offset += c.pageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(c.pageSize))
		query.Set("offset", strconv.Itoa(offset))
		query.Set("sort", c.idField)

		body, err := c.do(ctx, http.MethodGet, c.endpoint(query, "items", string(kind)), nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode %s page at offset %d: %w", kind, offset, err)
		}
		for _, raw := range page.Data {
			record, err := decodeRecord(raw)
			if err != nil {
				return nil, fmt.Errorf("decode %s record: %w", kind, err)
			}
			records = append(records, record)
		}

		if len(page.Data) < c.pageSize {
			return records, nil
		}
	}
}

// Upsert replaces the item with the record's identifier, creating it when absent
func (c *Client) Upsert(ctx context.Context, kind entities.Kind, record entities.Record) error {
	if kind == "" {
		return repository.ErrUnknownKind
	}
	id, ok := record.ID(c.idField)
	if !ok {
		return repository.ErrMissingID
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	_, err = c.do(ctx, http.MethodPut, c.endpoint(nil, "items", string(kind), id), payload)
	return err
}

func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := *c.baseURL
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	u.RawPath = ""
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if operator := entities.OperatorFromContext(ctx); operator != "" {
			req.Header.Set("X-Operator-ID", operator)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{Method: method, URL: target, Code: resp.StatusCode, Body: truncate(string(data), 256)}
		}
		return data, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	return body, err
}

func decodeRecord(raw []byte) (entities.Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var record entities.Record
	if err := decoder.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
