package fragment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"fragment-loader/internal/fetchqueue"
)

func TestClientFetchResolvesAgainstPage(t *testing.T) {
	var gotPath, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<section>intro</section>"))
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/article/index.html", server.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	body, err := client.Fetch(context.Background(), "fragments/intro.html")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "<section>intro</section>" {
		t.Fatalf("unexpected body %q", body)
	}
	if gotPath != "/article/fragments/intro.html" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if gotAgent != DefaultUserAgent {
		t.Fatalf("unexpected user agent %q", gotAgent)
	}
}

func TestClientFetchNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Fetch(context.Background(), "fragments/x.html")
	var statusErr *fetchqueue.HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %T %v", err, err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", statusErr.StatusCode)
	}
}

func TestClientFetchTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL + "/"
	server.Close()

	client, err := NewClient(base, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Fetch(context.Background(), "fragments/x.html")
	var transportErr *fetchqueue.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T %v", err, err)
	}
}

func TestClientFetchFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "fragments"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fragments", "intro.html"), []byte("<p>local</p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	client, err := NewClient(dir, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	body, err := client.Fetch(context.Background(), "fragments/intro.html")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "<p>local</p>" {
		t.Fatalf("unexpected body %q", body)
	}

	_, err = client.Fetch(context.Background(), "fragments/missing.html")
	if fetchqueue.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %v", err)
	}
}

func TestNewClientRejectsEmptyBase(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Fatal("expected error for empty base")
	}
}
