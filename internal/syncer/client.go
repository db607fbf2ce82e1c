package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"corpusd/internal/api"
	"corpusd/internal/content"
)

// ErrRateLimited indicates the server asked the client to back off.
// It is retried with exponential backoff; other upload failures are not.
var ErrRateLimited = errors.New("server rate limited the request")

// multipartField is the form field name every part is sent under. The
// server depends on it; do not rename.
const multipartField = "files"

// Client talks to the corpusd content API.
type Client struct {
	baseURL    string
	account    string
	httpClient *http.Client
	maxRetries uint64
}

// NewClient creates a content API client for the given server base URL and
// account identifier.
func NewClient(baseURL, account string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		account:    account,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 4,
	}
}

// Upload sends one batch to the server. force selects PUT (full re-index)
// over PATCH (incremental). A 429 response is retried with exponential
// backoff before being surfaced as ErrRateLimited.
func (c *Client) Upload(ctx context.Context, batch Batch, typeFilter string, force bool) ([]api.FileStatus, error) {
	method := http.MethodPatch
	if force {
		method = http.MethodPut
	}

	q := url.Values{}
	q.Set("client", c.account)
	if typeFilter != "" {
		q.Set("type", typeFilter)
	}
	endpoint := c.baseURL + "/content?" + q.Encode()

	var statuses []api.FileStatus
	operation := func() error {
		body, contentType, err := encodeBatch(batch)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("upload request failed: %w", err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return ErrRateLimited // retried
		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return backoff.Permanent(fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
		}

		var out api.IngestResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode upload response: %w", err))
		}
		statuses = out.Files
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Purge deletes every index entry of the given content type for this account.
func (c *Client) Purge(ctx context.Context, t content.Type) error {
	endpoint := fmt.Sprintf("%s/content/type/%s?client=%s", c.baseURL, t, url.QueryEscape(c.account))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("purge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("purge returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// encodeBatch renders a batch as a multipart/form-data body. Every part is
// sent under the "files" field with the relative path as its filename and
// the MIME type of its content type; deletion markers have an empty body.
func encodeBatch(batch Batch) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range batch.Parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, multipartField, p.Path))
		h.Set("Content-Type", p.MIME)
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", p.Path, err)
		}
		if _, err := pw.Write(p.Body); err != nil {
			return nil, "", fmt.Errorf("write part %s: %w", p.Path, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
