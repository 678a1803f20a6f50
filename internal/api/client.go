// Package api uploads exported impact histories to a collector's HTTP API.
package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// UploadPath is where the collector accepts history files.
const UploadPath = "/api/v1/impacts/upload"

// UploadMetadata describes one exported history file.
type UploadMetadata struct {
	Service   string
	StartedAt time.Time
	Impacts   int
	Tag       string
}

// Client talks to the collector.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the collector is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, "healthcheck")
}

func (c *Client) do(req *http.Request, what string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", what, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", what, resp.StatusCode)
	}
	return nil
}

// fields lists the form values sent ahead of the file part.
func (c *Client) fields(name string, meta UploadMetadata) [][2]string {
	return [][2]string{
		{"secret", c.apiKey},
		{"filename", name},
		{"service", meta.Service},
		{"startedAt", meta.StartedAt.UTC().Format(time.RFC3339)},
		{"impacts", strconv.Itoa(meta.Impacts)},
		{"tag", meta.Tag},
	}
}

// writeForm encodes the multipart body. It runs on its own goroutine so the
// file streams straight into the request.
func writeForm(w *multipart.Writer, fields [][2]string, name string, src io.Reader) error {
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return w.Close()
}

// Upload streams a history export as a multipart form.
func (c *Client) Upload(ctx context.Context, filePath string, meta UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	name := filepath.Base(filePath)
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	formErr := make(chan error, 1)
	go func() {
		err := writeForm(form, c.fields(name, meta), name, file)
		pw.CloseWithError(err)
		formErr <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UploadPath, pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	if err := c.do(req, "upload"); err != nil {
		return err
	}
	return <-formErr
}
