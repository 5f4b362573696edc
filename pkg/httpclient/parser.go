package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotJSON is returned when a body that should be JSON is something else,
// typically an HTML error page from a proxy.
var ErrNotJSON = errors.New("response is not JSON")

// ParseJSON decodes the body into BodyJSON. An empty body decodes to nil.
func ParseJSON(resp *Response) error {
	if len(resp.Body) == 0 {
		resp.BodyJSON = nil
		return nil
	}

	contentType := strings.ToLower(resp.ContentType)
	if contentType != "" && !strings.Contains(contentType, "json") && !strings.HasPrefix(contentType, "text/plain") {
		return fmt.Errorf("%w: content type %q", ErrNotJSON, resp.ContentType)
	}

	var result any
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	resp.BodyJSON = result
	return nil
}

// IsSuccessStatus returns true if the status code indicates success
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// IsRetryableStatus returns true if the status code indicates a retryable error
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 502, 503, 504:
		return true
	default:
		return false
	}
}
