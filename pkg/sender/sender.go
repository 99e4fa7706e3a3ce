// Package sender pushes messages into Soracom Harvest Data from a
// Soracom-connected device, over HTTP or UDP. The ingestion endpoints only
// accept traffic arriving through the Soracom network.
package sender

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Harvest ingestion endpoints.
const (
	DefaultHTTPEndpoint = "http://harvest.soracom.io"
	DefaultUDPEndpoint  = "harvest.soracom.io:8514"
)

const userAgent = "soratab-harvest-send"

// Sender posts messages to the Harvest ingestion endpoints. Zero value uses
// the default endpoints and a 10s http timeout.
type Sender struct {
	HTTPEndpoint string
	UDPEndpoint  string
	Client       *http.Client
}

// SendHTTP posts the body as application/json to the Harvest HTTP endpoint.
// Equivalent of:
//
//	curl -X POST -H "content-type:application/json" -d "body" http://harvest.soracom.io
func (s *Sender) SendHTTP(ctx context.Context, body string) error {
	endpoint := s.HTTPEndpoint
	if endpoint == "" {
		endpoint = DefaultHTTPEndpoint
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("can't make harvest request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("harvest send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("harvest send failed, status %d", resp.StatusCode)
	}
	return nil
}

// SendUDP writes the data as a single datagram to the Harvest UDP endpoint.
// Equivalent of:
//
//	echo -n "data" | nc -u -w5 harvest.soracom.io 8514
func (s *Sender) SendUDP(data string) error {
	endpoint := s.UDPEndpoint
	if endpoint == "" {
		endpoint = DefaultUDPEndpoint
	}

	conn, err := net.Dial("udp", endpoint)
	if err != nil {
		return fmt.Errorf("can't dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	if err = conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return fmt.Errorf("can't set write deadline: %w", err)
	}
	if _, err = conn.Write([]byte(data)); err != nil {
		return fmt.Errorf("can't send udp message: %w", err)
	}
	return nil
}
