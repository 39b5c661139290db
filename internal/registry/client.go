// Package registry wraps the hospital registry's record service: a JSON POST
// API returning pages of flat patient records inside a {code, msg, result}
// envelope.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/pkg/errors"
	"github.com/medlink/hospital-sync/pkg/logger"
)

const successCode = "0"

// Client fetches record pages from the registry.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger
}

// NewClient builds a registry client with a bounded per-call timeout.
func NewClient(cfg config.RegistryConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  log,
	}
}

type pageRequest struct {
	PageSize   int    `json:"pageSize"`
	PageNum    int    `json:"pageNum"`
	UpdateTime string `json:"updateTime,omitempty"`
}

type envelope struct {
	Code   string          `json:"code"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

// UnmarshalJSON tolerates numeric codes; some registry deployments serve the
// code as a JSON number.
func (e *envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code   json.RawMessage `json:"code"`
		Msg    string          `json:"msg"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Msg = raw.Msg
	e.Result = raw.Result

	if len(raw.Code) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Code, &s); err == nil {
		e.Code = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.Code, &n); err != nil {
		return err
	}
	e.Code = n.String()
	return nil
}

// FetchPage retrieves one page of records, unfiltered.
func (c *Client) FetchPage(ctx context.Context, pageSize, page int) ([]model.Payload, error) {
	return c.fetch(ctx, pageRequest{PageSize: pageSize, PageNum: page})
}

// FetchUpdatedSince retrieves one page of records updated at or after the
// watermark timestamp.
func (c *Client) FetchUpdatedSince(ctx context.Context, watermark string, pageSize, page int) ([]model.Payload, error) {
	return c.fetch(ctx, pageRequest{PageSize: pageSize, PageNum: page, UpdateTime: watermark})
}

func (c *Client) fetch(ctx context.Context, req pageRequest) ([]model.Payload, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Unexpected(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Unexpected(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Communication(fmt.Sprintf("registry unreachable at %s", c.baseURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Communication(fmt.Sprintf("registry returned HTTP %d", resp.StatusCode), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Communication("failed to read registry response", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.MalformedResponse("registry response is not a valid envelope", err)
	}
	if env.Code != successCode {
		return nil, errors.RemoteFunction(env.Code, env.Msg)
	}

	var records []model.Payload
	if len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, &records); err != nil {
			return nil, errors.MalformedResponse("registry result is not a record list", err)
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"page":     req.PageNum,
		"records":  len(records),
		"duration": time.Since(start).String(),
	}).Debug("registry page fetched")

	return records, nil
}

// CountTotalExpected reads the per-record running total the registry attaches
// to each row, taking the max across the page. Zero when absent.
func CountTotalExpected(records []model.Payload) int {
	total := 0
	for _, rec := range records {
		v := rec.Get(model.FieldTotal)
		if v == "" {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > total {
			total = n
		}
	}
	return total
}
