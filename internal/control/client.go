// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package control

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/canvas/internal/surface"
)

// Client talks to a control socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient returns a client for the control socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 5 * time.Second,
		},
	}
}

// Health queries /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	return resp, err
}

// Status queries /status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &resp)
	return resp, err
}

// Views returns the rendered surface.
func (c *Client) Views(ctx context.Context, paths, color bool) (string, error) {
	q := url.Values{}
	q.Set("paths", strconv.FormatBool(paths))
	q.Set("color", strconv.FormatBool(color))

	body, err := c.raw(ctx, http.MethodGet, "/views", q)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Render asks every plugin for a fresh view.
func (c *Client) Render(ctx context.Context) (MessageResponse, error) {
	var resp MessageResponse
	err := c.do(ctx, http.MethodPost, "/render", nil, &resp)
	return resp, err
}

// Press presses the button at path in the view of the given plugin.
func (c *Client) Press(ctx context.Context, pluginID uint64, path []int) (MessageResponse, error) {
	q := url.Values{}
	q.Set("plugin", strconv.FormatUint(pluginID, 10))
	q.Set("path", surface.FormatPath(path))

	var resp MessageResponse
	err := c.do(ctx, http.MethodPost, "/press", q, &resp)
	return resp, err
}

// Shutdown asks the host to stop.
func (c *Client) Shutdown(ctx context.Context) (MessageResponse, error) {
	var resp MessageResponse
	err := c.do(ctx, http.MethodPost, "/shutdown", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	body, err := c.raw(ctx, method, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return oops.In("control").With("endpoint", path).Wrapf(err, "decode response")
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	errb := oops.In("control").With("socket", c.socketPath).With("endpoint", path)

	u := url.URL{Scheme: "http", Host: "canvas", Path: path, RawQuery: q.Encode()}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, errb.Wrapf(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errb.Wrapf(err, "connect to host")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errb.Wrapf(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		var msg MessageResponse
		if json.Unmarshal(body, &msg) == nil && msg.Error != "" {
			return nil, errb.With("status", resp.StatusCode).Errorf("%s", msg.Error)
		}
		return nil, errb.With("status", resp.StatusCode).Errorf("unexpected status %s", resp.Status)
	}
	return body, nil
}
