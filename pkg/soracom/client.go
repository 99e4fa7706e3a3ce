// Package soracom implements a minimal client for the Soracom Harvest Data
// API: auth key authentication, ordered data entries retrieval and point
// deletion, plus the payload decoding applied to fetched entries.
package soracom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const userAgent = "soratab"

// Credentials is the auth key pair for the Soracom API.
type Credentials struct {
	AuthKeyID     string
	AuthKeySecret string
}

// Data is a single Harvest Data entry.
type Data struct {
	Time        int64  `json:"time"`        // unix time in milliseconds
	ContentType string `json:"contentType"` // mime type of the entry
	Content     string `json:"content"`     // raw or decoded content
}

// Client talks to the Soracom Harvest Data API for a single coverage region.
// Auth has to be called before DataEntries or DeleteDataEntry. All calls are
// synchronous; the timeout of the underlying http client is the only bound on
// a slow remote.
type Client struct {
	creds    Credentials
	endpoint Endpoint
	client   *http.Client

	apiKey string
	token  string

	// set by Auth from the api response, informational only
	UserName   string
	OperatorID string
}

// NewClient makes a client for the given credentials and coverage endpoint.
func NewClient(creds Credentials, endpoint Endpoint) *Client {
	return &Client{
		creds:    creds,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithHTTP makes a client with a caller-provided http client,
// used to control timeouts and in tests.
func NewClientWithHTTP(creds Credentials, endpoint Endpoint, httpClient *http.Client) *Client {
	return &Client{creds: creds, endpoint: endpoint, client: httpClient}
}

// Auth exchanges the auth key pair for an api key and token used by the
// following calls. Rejected credentials return ErrAuth.
func (c *Client) Auth(ctx context.Context) error {
	reqID := uuid.New().String()
	body, err := json.Marshal(map[string]string{
		"authKeyId": c.creds.AuthKeyID,
		"authKey":   c.creds.AuthKeySecret,
	})
	if err != nil {
		return fmt.Errorf("can't marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String()+"/v1/auth", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("can't make auth request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[DEBUG] auth request %s to %s", reqID, c.endpoint)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[WARN] auth request %s rejected, status %d", reqID, resp.StatusCode)
		return ErrAuth
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Token      string `json:"token"`
		UserName   string `json:"userName"`
		OperatorID string `json:"operatorId"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return fmt.Errorf("can't decode auth response: %w", err)
	}

	c.apiKey = authResp.APIKey
	c.token = authResp.Token
	c.UserName = authResp.UserName
	c.OperatorID = authResp.OperatorID
	log.Printf("[DEBUG] auth request %s completed, operator %s", reqID, c.OperatorID)
	return nil
}

// DataEntries returns data entries sent from the SIM with the given imsi,
// newest first. No pagination, a single bounded fetch. from and to are unix
// milliseconds; zero values default to 24h ago and now. A zero limit defaults
// to 100; limits outside [1, 1000] return ErrInvalidLimit. Content of every
// entry is passed through DecodeContent.
func (c *Client) DataEntries(ctx context.Context, imsi string, from, to int64, limit uint32) ([]Data, error) {
	if from == 0 {
		from = time.Now().Add(-24 * time.Hour).UnixMilli()
	}
	if to == 0 {
		to = time.Now().UnixMilli()
	}
	if limit == 0 {
		limit = 100
	}
	if limit < 1 || limit > 1000 {
		return nil, ErrInvalidLimit
	}

	u := fmt.Sprintf("%s/v1/data/Subscriber/%s", c.endpoint, url.PathEscape(imsi))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("can't make data request: %w", err)
	}
	q := req.URL.Query()
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))
	q.Set("sort", "desc")
	q.Set("limit", strconv.FormatUint(uint64(limit), 10))
	req.URL.RawQuery = q.Encode()
	c.setAuthHeaders(req)

	reqID := uuid.New().String()
	log.Printf("[DEBUG] data request %s, imsi %s, range [%d, %d], limit %d", reqID, imsi, from, to, limit)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("data request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("data request %s failed, status %d: %s", reqID, resp.StatusCode, string(body))
	}

	var entries []Data
	if err = json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("can't decode data response: %w", err)
	}

	for i, e := range entries {
		entries[i].Content = DecodeContent(e.Content)
	}
	log.Printf("[DEBUG] data request %s returned %d entries", reqID, len(entries))
	return entries, nil
}

// DeleteDataEntry removes a single entry identified by imsi and its
// timestamp (unix milliseconds). Deleting a missing entry is not an error.
func (c *Client) DeleteDataEntry(ctx context.Context, imsi string, tm int64) error {
	u := fmt.Sprintf("%s/v1/data/Subscriber/%s/%d", c.endpoint, url.PathEscape(imsi), tm)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("can't make delete request: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete request failed, status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Soracom-Api-Key", c.apiKey)
	req.Header.Set("X-Soracom-Token", c.token)
	req.Header.Set("X-Soracom-Lang", "en")
}
