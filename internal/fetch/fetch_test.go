package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestFetchFresh(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("1\tVaduz\n"))
	}))
	defer svr.Close()

	o, err := Fetch(context.Background(), svr.Client(), svr.URL, "LI", ".txt", nil)
	if err != nil {
		t.Fatal(err)
	}
	etag, path, ok := o.Fresh()
	if !ok {
		t.Fatalf("expected fresh outcome, got %+v", o)
	}
	if string(etag) != `"v1"` {
		t.Fatalf("got etag %q", etag)
	}
	defer os.Remove(path)
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "1\tVaduz\n" {
		t.Fatalf("got body %q", b)
	}
}

func TestFetchUnchanged(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != `"v1"` {
			t.Errorf("expected conditional header, got %q", r.Header.Get("If-None-Match"))
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer svr.Close()

	o, err := Fetch(context.Background(), svr.Client(), svr.URL, "LI", ".zip", []byte(`"v1"`))
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != KindUnchanged {
		t.Fatalf("expected unchanged, got %+v", o)
	}
	if o.Retryable() {
		t.Fatal("unchanged must not be retryable")
	}
}

func TestFetchHTTPError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer svr.Close()

	o, err := Fetch(context.Background(), svr.Client(), svr.URL, "LI", ".zip", nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != KindHTTPError || o.Status != http.StatusInternalServerError {
		t.Fatalf("got %+v", o)
	}
	if !o.Retryable() {
		t.Fatal("http error must be retryable")
	}
}

func TestFetchTransportError(t *testing.T) {
	// Port 1 on loopback with no listener refuses the connection immediately.
	o, err := Fetch(context.Background(), http.DefaultClient, "http://127.0.0.1:1", "LI", ".zip", nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != KindTransportError {
		t.Fatalf("got %+v", o)
	}
	if !o.Retryable() {
		t.Fatal("transport error must be retryable")
	}
}
