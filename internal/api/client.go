// Package api talks to the video generation service over its REST contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidgen/internal/model"
	"vidgen/internal/version"
)

const (
	generatePath  = "/api/v1/video/generate"
	videoPath     = "/api/v1/video/"
	templatesPath = "/video/templates"

	defaultTimeout         = 30 * time.Second
	defaultDownloadTimeout = 10 * time.Minute
	errorBodyLimit         = 4096
)

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	DownloadTimeout time.Duration
	HTTPClient      *http.Client
	Logger          zerolog.Logger
}

type Client struct {
	baseURL  string
	http     *http.Client
	download *http.Client
	logger   zerolog.Logger
}

type generateRequest struct {
	URL         string `json:"url"`
	AspectRatio string `json:"aspect_ratio"`
	Duration    int    `json:"duration"`
	Template    string `json:"template,omitempty"`
}

type generateResponse struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type templatesResponse struct {
	Templates []model.Template `json:"templates"`
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base URL must be absolute, got %q", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	downloadTimeout := opts.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = defaultDownloadTimeout
	}

	c := &Client{
		baseURL: base,
		logger:  opts.Logger,
	}
	if opts.HTTPClient != nil {
		c.http = opts.HTTPClient
		c.download = opts.HTTPClient
	} else {
		c.http = &http.Client{Timeout: timeout}
		c.download = &http.Client{Timeout: downloadTimeout}
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// MediaURL is the download locator for id. It does no I/O.
func (c *Client) MediaURL(id model.JobID) string {
	return c.videoURL(id, "/download")
}

func (c *Client) FetchStatus(ctx context.Context, id model.JobID) (model.Snapshot, error) {
	const op = "fetch status"
	if strings.TrimSpace(string(id)) == "" {
		return model.Snapshot{}, fmt.Errorf("%s: video id is required", op)
	}

	resp, err := c.do(ctx, c.http, http.MethodGet, c.videoURL(id, ""), nil, op)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.Snapshot{}, &NotFoundError{Op: op, ID: id}
	}
	if err := checkStatus(op, resp); err != nil {
		return model.Snapshot{}, err
	}

	var snap model.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return model.Snapshot{}, &TransportError{Op: op, Err: fmt.Errorf("decode status: %w", err)}
	}
	return snap, nil
}

func (c *Client) StartGeneration(ctx context.Context, productURL string, opts model.GenerateOptions) (model.JobID, error) {
	const op = "start generation"
	target := strings.TrimSpace(productURL)
	if target == "" {
		return "", fmt.Errorf("product URL is required")
	}
	if u, err := url.Parse(target); err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("product URL must be absolute, got %q", productURL)
	}
	norm := opts.Normalize()
	if err := norm.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		URL:         target,
		AspectRatio: norm.AspectRatio,
		Duration:    norm.DurationSeconds,
		Template:    norm.Template,
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}

	resp, err := c.do(ctx, c.http, http.MethodPost, c.baseURL+generatePath, body, op)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(op, resp); err != nil {
		return "", err
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	id, err := model.ParseJobID(out.VideoID)
	if err != nil {
		return "", &TransportError{Op: op, Err: errors.New("response did not include video_id")}
	}
	c.logger.Info().Str("video_id", id.String()).Str("status", out.Status).Msg("generation started")
	return id, nil
}

func (c *Client) FetchTemplates(ctx context.Context) ([]model.Template, error) {
	const op = "fetch templates"
	resp, err := c.do(ctx, c.http, http.MethodGet, c.baseURL+templatesPath, nil, op)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}

	var out templatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode templates: %w", err)}
	}
	if out.Templates == nil {
		out.Templates = []model.Template{}
	}
	return out.Templates, nil
}

// FetchMedia returns the media body; the caller must close it.
func (c *Client) FetchMedia(ctx context.Context, id model.JobID) (io.ReadCloser, error) {
	const op = "download video"
	if strings.TrimSpace(string(id)) == "" {
		return nil, fmt.Errorf("%s: video id is required", op)
	}

	resp, err := c.do(ctx, c.download, http.MethodGet, c.videoURL(id, "/download"), nil, op)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &NotFoundError{Op: op, ID: id}
	}
	if err := checkStatus(op, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) videoURL(id model.JobID, suffix string) string {
	return c.baseURL + videoPath + url.PathEscape(string(id)) + suffix
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, endpoint string, body []byte, op string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug().Str("request_id", requestID).Str("op", op).Err(err).Msg("request failed")
		return nil, &TransportError{Op: op, Err: err}
	}
	c.logger.Debug().
		Str("request_id", requestID).
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msgf("%s %s", method, req.URL.Path)
	return resp, nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(detail)}
}
