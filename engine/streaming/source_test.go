package streaming

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return out.Bytes()
}

func TestBytesSource(t *testing.T) {
	src := NewBytesSource("mem", []byte("abc"))
	size, known, err := src.Size(context.Background())
	if err != nil || !known || size != 3 {
		t.Fatalf("Size = (%d, %t, %v), want (3, true, nil)", size, known, err)
	}
	data, err := fetchPayload(context.Background(), src)
	if err != nil {
		t.Fatalf("fetchPayload error: %v", err)
	}
	if string(data) != "abc" {
		t.Fatalf("payload = %q, want \"abc\"", data)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.bin")
	payload := EncodeMesh(soupMesh(3))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("writing payload: %v", err)
	}

	src := NewFileSource(path)
	size, known, err := src.Size(context.Background())
	if err != nil || !known || size != int64(len(payload)) {
		t.Fatalf("Size = (%d, %t, %v), want (%d, true, nil)", size, known, err, len(payload))
	}
	data, err := fetchPayload(context.Background(), src)
	if err != nil {
		t.Fatalf("fetchPayload error: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("payload mismatch after file round trip")
	}
}

func TestHTTPSource(t *testing.T) {
	payload := EncodeMesh(soupMesh(5))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "0")
		}
		w.Write(payload)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.Client(), srv.URL)
	data, err := fetchPayload(context.Background(), src)
	if err != nil {
		t.Fatalf("fetchPayload error: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("payload mismatch after http round trip")
	}
}

func TestHTTPSourceSizeProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
	}))
	defer srv.Close()

	size, known, err := NewHTTPSource(srv.Client(), srv.URL).Size(context.Background())
	if err != nil {
		t.Fatalf("Size error: %v", err)
	}
	if !known || size != 4096 {
		t.Fatalf("Size = (%d, %t), want (4096, true)", size, known)
	}
}

func TestHTTPSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.Client(), srv.URL)
	if _, _, err := src.Size(context.Background()); err == nil {
		t.Fatal("Size on a 404 returned nil error")
	}
	if _, err := src.Open(context.Background()); err == nil {
		t.Fatal("Open on a 404 returned nil error")
	}
}

func TestFetchPayloadDecompressesGzip(t *testing.T) {
	payload := EncodeMesh(soupMesh(4))
	src := NewBytesSource("mesh.bin.gz", gzipped(t, payload))

	data, err := fetchPayload(context.Background(), src)
	if err != nil {
		t.Fatalf("fetchPayload error: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("payload mismatch after gzip round trip")
	}
}
