package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if accept := r.Header.Get("Accept"); accept != "text/plain" {
			t.Errorf("Accept = %q, want text/plain", accept)
		}
		w.Write([]byte("page text"))
	}))
	defer server.Close()

	c := NewClient("", nil)
	got, err := c.Fetch(context.Background(), server.URL+"/article")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if got != "page text" {
		t.Errorf("Fetch() = %q, want page body", got)
	}
}

func TestFetchThroughEndpoint(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		w.Write([]byte("reduced text"))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	got, err := c.Fetch(context.Background(), "https://example.com/post")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if got != "reduced text" {
		t.Errorf("Fetch() = %q", got)
	}
	// The target URL is appended to the reader endpoint.
	if gotPath != "/https://example.com/post" {
		t.Errorf("fetched path = %q, want target appended to endpoint", gotPath)
	}
}

func TestFetchErrors(t *testing.T) {
	t.Run("invalid url", func(t *testing.T) {
		c := NewClient("", nil)
		if _, err := c.Fetch(context.Background(), "not a url"); err == nil {
			t.Error("Fetch() accepted an invalid url")
		}
	})

	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		c := NewClient("", nil)
		if _, err := c.Fetch(context.Background(), server.URL); err == nil {
			t.Error("Fetch() succeeded on a 404")
		}
	})
}
