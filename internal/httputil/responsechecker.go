// Package httputil holds small HTTP helpers shared by the fetcher and
// coordinator.
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"slices"
)

// CheckResponse takes an http.Response and a variadic of ints representing
// acceptable HTTP status codes. The error returned attempts to include some
// content from the server's response.
func CheckResponse(resp *http.Response, acceptableCodes ...int) error {
	if slices.Contains(acceptableCodes, resp.StatusCode) {
		return nil
	}
	limitBody, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err == nil {
		return fmt.Errorf("unexpected status code: %q for %q (body starts: %q)", resp.Status, resp.Request.URL.Redacted(), limitBody)
	}
	return fmt.Errorf("unexpected status code: %q for %q", resp.Status, resp.Request.URL.Redacted())
}
