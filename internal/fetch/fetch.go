// Package fetch implements a single conditional HTTP GET, classified into
// an Outcome and never retried here; retry policy lives one layer up, in
// internal/coordinator.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"syscall"

	"github.com/quay/zlog"

	"github.com/quay/claircore-geoindex/internal/httputil"
	"github.com/quay/claircore-geoindex/internal/stage"
)

// Kind tags an Outcome's variant.
type Kind int

const (
	KindFresh Kind = iota
	KindUnchanged
	KindHTTPError
	KindTransportError
)

// TransportKind further classifies a TransportError.
type TransportKind int

const (
	TransportTimeout TransportKind = iota
	TransportConnRefused
	TransportOther
)

// Outcome is the closed result of one Fetch call, a tagged union rendered
// as a struct whose Kind field says which of the per-kind fields below are
// meaningful. Fresh is the one accessor method; it returns ok==true only for
// KindFresh.
type Outcome struct {
	Kind      Kind
	Filename  string
	Extension string

	// KindFresh
	ETag     []byte // absent (nil) when the server omits the header
	TempPath string

	// KindHTTPError
	Status      int
	Description string

	// KindTransportError
	TransportKind TransportKind
	Detail        string
}

// Fresh returns the Fresh-variant fields if Kind == KindFresh.
func (o Outcome) Fresh() (etag []byte, tempPath string, ok bool) {
	if o.Kind != KindFresh {
		return nil, "", false
	}
	return o.ETag, o.TempPath, true
}

// Retryable reports whether the coordinator should add this pair to its
// retry set: HTTPError and TransportError are treated as transient.
func (o Outcome) Retryable() bool {
	return o.Kind == KindHTTPError || o.Kind == KindTransportError
}

// Fetch issues one conditional GET for <baseURL>/<filename><extension>.
// priorETag, if non-nil, is sent as If-None-Match. The response body, on a
// 200, is streamed to a fresh temp file, never buffered in memory, since
// country archives run to tens of MB.
func Fetch(ctx context.Context, cl *http.Client, baseURL, filename, extension string, priorETag []byte) (Outcome, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "fetch.Fetch", "filename", filename+extension)

	u, err := url.Parse(baseURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch: invalid base URL: %w", err)
	}
	u.Path = pathJoin(u.Path, filename+extension)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch: build request: %w", err)
	}
	if len(priorETag) > 0 {
		req.Header.Set("If-None-Match", string(priorETag))
	}

	resp, err := cl.Do(req)
	if err != nil {
		return classifyTransportError(filename, extension, err), nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return stageFresh(ctx, filename, extension, resp)
	case http.StatusNotModified:
		zlog.Debug(ctx).Msg("unchanged")
		return Outcome{Kind: KindUnchanged, Filename: filename, Extension: extension}, nil
	default:
		desc := httpErrorDescription(resp)
		zlog.Warn(ctx).Int("status", resp.StatusCode).Str("desc", desc).Msg("unexpected status")
		return Outcome{
			Kind:        KindHTTPError,
			Filename:    filename,
			Extension:   extension,
			Status:      resp.StatusCode,
			Description: desc,
		}, nil
	}
}

func stageFresh(ctx context.Context, filename, extension string, resp *http.Response) (Outcome, error) {
	tf, err := stage.NewTempFile("", "geoindex-"+filename+"-")
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch: create spool: %w", err)
	}
	var success bool
	defer func() {
		if !success {
			if cerr := tf.Close(); cerr != nil {
				zlog.Warn(ctx).Err(cerr).Msg("unable to clean up spool")
			}
		}
	}()

	if _, err := io.Copy(tf.File, resp.Body); err != nil {
		return Outcome{}, fmt.Errorf("fetch: stream body to spool: %w", err)
	}

	var etag []byte
	if v := resp.Header.Get("ETag"); v != "" {
		etag = []byte(v)
	}

	// Only the path travels onward in Outcome, so the fd must be closed here
	// rather than left open for the life of the process; success is set
	// first so the defer above doesn't also try to close (and delete) it.
	success = true
	if cerr := tf.File.Close(); cerr != nil {
		if rerr := os.Remove(tf.Name()); rerr != nil {
			zlog.Warn(ctx).Err(rerr).Msg("unable to clean up spool after close error")
		}
		return Outcome{}, fmt.Errorf("fetch: close spool: %w", cerr)
	}
	return Outcome{
		Kind:      KindFresh,
		Filename:  filename,
		Extension: extension,
		ETag:      etag,
		TempPath:  tf.Name(),
	}, nil
}

func classifyTransportError(filename, extension string, err error) Outcome {
	o := Outcome{Kind: KindTransportError, Filename: filename, Extension: extension, Detail: err.Error()}
	var netErr interface{ Timeout() bool }
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		o.TransportKind = TransportTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		o.TransportKind = TransportConnRefused
	default:
		o.TransportKind = TransportOther
	}
	return o
}

func httpErrorDescription(resp *http.Response) string {
	if err := httputil.CheckResponse(resp, http.StatusOK); err != nil {
		return err.Error()
	}
	return resp.Status
}

func pathJoin(base, name string) string {
	if len(base) == 0 {
		return "/" + name
	}
	if base[len(base)-1] == '/' {
		return base + name
	}
	return base + "/" + name
}
