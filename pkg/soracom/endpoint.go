package soracom

import "strings"

// Endpoint is the Soracom API base URL for a coverage region.
type Endpoint string

// API endpoints per coverage.
const (
	EndpointGlobal Endpoint = "https://g.api.soracom.io"
	EndpointJapan  Endpoint = "https://api.soracom.io"
)

// ParseEndpoint converts a coverage name to the matching endpoint.
// Accepts "g"/"global" and "jp"/"japan", case-insensitive; anything else
// falls back to the global coverage.
func ParseEndpoint(coverage string) Endpoint {
	switch strings.ToLower(coverage) {
	case "jp", "japan":
		return EndpointJapan
	case "g", "global":
		return EndpointGlobal
	default:
		return EndpointGlobal
	}
}

func (e Endpoint) String() string { return string(e) }
