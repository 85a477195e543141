package keyhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/medisync/recordcrypt/api"
	"github.com/medisync/recordcrypt/interfaces"
)

// Client is a typed HTTP client for the key storage API. It implements
// interfaces.RemoteKeyStore for a single user and is safe for concurrent
// use.
type Client struct {
	serverURL string
	user      interfaces.UserID
	authToken string
	client    *http.Client
}

// NewClient creates a key storage client for the given user. An empty
// authToken sends requests without an Authorization header. A nil httpClient
// falls back to http.DefaultClient.
func NewClient(serverURL string, user interfaces.UserID, authToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		serverURL: serverURL,
		user:      user,
		authToken: authToken,
		client:    httpClient,
	}
}

// HasKey reports whether the server holds a key record for this client.
func (c *Client) HasKey(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/keys/%s/status", c.user), nil)
	if err != nil {
		return false, err
	}

	var status api.KeyStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return false, fmt.Errorf("could not parse status response: %w", err)
	}
	return status.HasServerKey, nil
}

// Retrieve fetches the server-held key record.
func (c *Client) Retrieve(ctx context.Context) (*interfaces.KeyRecord, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/keys/%s", c.user), nil)
	if err != nil {
		return nil, err
	}

	var record interfaces.KeyRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("could not parse key record: %w", err)
	}
	return &record, nil
}

// Store pushes the key record to the server.
func (c *Client) Store(ctx context.Context, record *interfaces.KeyRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not encode key record: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, fmt.Sprintf("/api/keys/%s", c.user), payload)
	return err
}

// Delete removes the server-held key record. A missing record is not an
// error.
func (c *Client) Delete(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/keys/%s", c.user), nil)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach key storage server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read server response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return body, nil
	case http.StatusNotFound:
		return nil, interfaces.ErrKeyNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, interfaces.ErrServerUnauthorized
	default:
		return nil, fmt.Errorf("key storage server returned %d: %s", resp.StatusCode, string(body))
	}
}
