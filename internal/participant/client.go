// Package participant implements the client role: the HTTP transport to
// the coordinator, a filesystem watcher, and the reconciler state machine
// that drives one logical directory end to end.
package participant

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"syncd/internal/syncerr"
	"syncd/internal/wire"
)

// Client is the HTTP transport to one coordinator, grounded on the
// teacher's shared/pkg/client but narrowed to the four sync operations.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	participantID string
}

// NewClient returns a Client targeting baseURL (e.g. http://host:8080) on
// behalf of participantID.
func NewClient(baseURL, participantID string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    20,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		participantID: participantID,
	}
}

// Negotiate runs C3 on the coordinator and returns the plan from this
// participant's point of view. Fixed 30s timeout per spec.md §4.4. The
// response can list every file in a directory, so this is the one request
// that asks for gzip.
func (c *Client) Negotiate(ctx context.Context, req wire.SyncRequest) (*wire.SyncResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var resp wire.SyncResponse
	if err := c.doJSONGzip(ctx, "POST", "/api/v1/sync", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload pushes one file's content to the coordinator. Fixed 30s timeout.
func (c *Client) Upload(ctx context.Context, req wire.UploadRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return c.doJSON(ctx, "POST", "/api/v1/upload", req, nil)
}

// Download pulls one file's bytes plus its declared hash. Fixed 10s
// timeout. The caller is responsible for verifying the returned hash
// against the bytes (spec.md §4.4 round-trip law).
func (c *Client) Download(ctx context.Context, directoryName, path string, shared bool) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	q := url.Values{}
	q.Set("participant_id", c.participantID)
	q.Set("directory_name", directoryName)
	q.Set("shared", fmt.Sprintf("%t", shared))
	q.Set("path", path)
	reqURL := c.baseURL + "/api/v1/download?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", syncerr.New(syncerr.TransportUnavailable, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", decodeErrorResponse(resp)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", syncerr.NewPath(syncerr.TransportUnavailable, path, err)
	}

	return content, resp.Header.Get(wire.HeaderHash), nil
}

// Delete informs the coordinator of a local tombstone.
func (c *Client) Delete(ctx context.Context, req wire.DeleteRequest) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return c.doJSON(ctx, "POST", "/api/v1/delete", req, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	return c.do(ctx, method, path, body, out, false)
}

// doJSONGzip is doJSON plus Accept-Encoding: gzip, for responses worth
// compressing on the wire.
func (c *Client) doJSONGzip(ctx context.Context, method, path string, body, out interface{}) error {
	return c.do(ctx, method, path, body, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, gzipOK bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return syncerr.New(syncerr.ProtocolSchema, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return syncerr.New(syncerr.TransportUnavailable, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if gzipOK {
		httpReq.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp)
	}

	if out == nil {
		return nil
	}

	reader := resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return syncerr.New(syncerr.ProtocolSchema, err)
		}
		defer gr.Close()
		if err := json.NewDecoder(gr).Decode(out); err != nil {
			return syncerr.New(syncerr.ProtocolSchema, err)
		}
		return nil
	}

	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return syncerr.New(syncerr.ProtocolSchema, err)
	}
	return nil
}

func classifyTransportErr(err error) error {
	if ue, ok := err.(*url.Error); ok && ue.Timeout() {
		return syncerr.New(syncerr.TransportTimeout, err)
	}
	return syncerr.New(syncerr.TransportUnavailable, err)
}

func decodeErrorResponse(resp *http.Response) error {
	var body wire.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		if resp.StatusCode == http.StatusConflict {
			return syncerr.New(syncerr.IntegrityMismatch, fmt.Errorf("%s", body.Error))
		}
		return syncerr.New(syncerr.TransportUnavailable, fmt.Errorf("%s", body.Error))
	}
	return syncerr.New(syncerr.TransportUnavailable, fmt.Errorf("coordinator returned %d", resp.StatusCode))
}

func encodeContent(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}
