// Package robot is a client for a remote qrvision host. It authenticates
// with an API key pair and exposes the host's cameras and vision services
// behind the same interfaces the local host uses.
package robot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/qrvision/internal/server"
	"github.com/MeKo-Tech/qrvision/internal/vision"
)

// DefaultTimeout bounds every request when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUnauthorized is returned when the host rejects the API key.
	ErrUnauthorized = errors.New("robot: unauthorized")
	// ErrClosed is returned by calls on a closed client.
	ErrClosed = errors.New("robot: client closed")
)

// Options configures Dial.
type Options struct {
	APIKey     string
	APIKeyID   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// StatusError is a non-success response from the host.
type StatusError struct {
	Op     string
	Status int
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("robot: %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("robot: %s: status %d: %s", e.Op, e.Status, e.Msg)
}

// Client is a connection to a remote host.
type Client struct {
	base      *url.URL
	opts      Options
	http      *http.Client
	resources []vision.ResourceName
	closed    bool
}

// Dial checks that the host is healthy and that the credentials are accepted.
func Dial(ctx context.Context, address string, opts Options) (*Client, error) {
	base, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	c := &Client{base: base, opts: opts, http: hc}

	if err := c.getJSON(ctx, "health", "/health", nil, nil); err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", base, err)
	}
	var res server.ResourcesResponse
	if err := c.getJSON(ctx, "resources", "/api/v1/resources", nil, &res); err != nil {
		return nil, err
	}
	for _, r := range res.Resources {
		api, err := vision.ParseAPI(r.API)
		if err != nil {
			continue
		}
		c.resources = append(c.resources, vision.ResourceName{API: api, Name: r.Name})
	}
	return c, nil
}

// parseAddress adds http:// to a bare host[:port].
func parseAddress(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("robot: empty address")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("robot: invalid address %q: %w", address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("robot: invalid address %q", address)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

// Address returns the base URL of the host.
func (c *Client) Address() string { return c.base.String() }

// ResourceNames returns the resources listed when dialing.
func (c *Client) ResourceNames() []vision.ResourceName {
	return append([]vision.ResourceName(nil), c.resources...)
}

// Camera returns a handle to a remote camera. The name is not checked until
// the first call.
func (c *Client) Camera(name string) *Camera {
	return &Camera{client: c, name: name}
}

// Vision returns a handle to a remote vision service.
func (c *Client) Vision(name string) *VisionClient {
	return &VisionClient{client: c, name: name}
}

// UploadFile sends the file at path to the part's data store.
func (c *Client) UploadFile(ctx context.Context, partID string, tags []string, path string) (server.UploadMetadata, error) {
	f, err := os.Open(path) //nolint:gosec // G304: caller-chosen upload path
	if err != nil {
		return server.UploadMetadata{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("part_id", partID); err != nil {
		return server.UploadMetadata{}, err
	}
	if len(tags) > 0 {
		if err := mw.WriteField("tags", strings.Join(tags, ",")); err != nil {
			return server.UploadMetadata{}, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return server.UploadMetadata{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return server.UploadMetadata{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return server.UploadMetadata{}, err
	}

	var resp server.UploadResponse
	if err := c.do(ctx, "upload", http.MethodPost, "/api/v1/data/upload", nil,
		&body, mw.FormDataContentType(), &resp); err != nil {
		return server.UploadMetadata{}, err
	}
	return resp.File, nil
}

// Close marks the client closed. Idle connections are released.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.do(ctx, op, http.MethodGet, path, query, nil, "", out)
}

// do sends one request and decodes a JSON body into out. out may be nil.
func (c *Client) do(
	ctx context.Context,
	op, method, path string,
	query url.Values,
	body io.Reader,
	contentType string,
	out any,
) error {
	resp, err := c.send(ctx, op, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("robot: %s: decode response: %w", op, err)
	}
	return nil
}

// send performs the request and turns non-2xx responses into errors.
// The caller closes the body of a successful response.
func (c *Client) send(
	ctx context.Context,
	op, method, path string,
	query url.Values,
	body io.Reader,
	contentType string,
) (*http.Response, error) {
	if c.closed {
		return nil, ErrClosed
	}
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("robot: %s: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.opts.APIKey != "" {
		req.Header.Set(server.HeaderAPIKeyID, c.opts.APIKeyID)
		req.Header.Set(server.HeaderAPIKey, c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("robot: %s: %w", op, err)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return nil, statusError(op, resp)
}

func statusError(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, op)
	}
	var body server.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{Op: op, Status: resp.StatusCode, Msg: msg}
}

// IsNotFound reports whether err is a 404 from the host.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// cancelOnClose releases the request context with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
