package soracom

import (
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"
)

// DecodeContent unwraps a base64-encoded Harvest payload. If content is a
// JSON object with a string "payload" property, and the payload decodes as
// base64 into valid UTF-8 made of ASCII printable characters only, the result
// is `{"value":"<decoded>"}`. In every other case content is returned as is.
func DecodeContent(content string) string {
	// match the "payload" key exactly, struct tags would also accept
	// case variants like "Payload"
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
		return content
	}
	raw, ok := wrapped["payload"]
	if !ok {
		return content
	}
	var payload string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return content
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return content
	}

	if !utf8.Valid(decoded) {
		return content
	}

	for _, b := range decoded {
		if b < 0x20 || b > 0x7e {
			return content
		}
	}

	// decoded text goes in verbatim, no re-escaping
	return `{"value":"` + string(decoded) + `"}`
}
