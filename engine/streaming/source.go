package streaming

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/spaghettifunk/lodestone/engine/core"
)

// Source abstracts where an asset payload comes from. Size is a cheap
// probe used for strategy selection before any bytes are pulled.
type Source interface {
	Name() string
	// Size returns the payload size in bytes. known is false when the
	// source cannot tell ahead of the download.
	Size(ctx context.Context) (size int64, known bool, err error)
	Open(ctx context.Context) (io.ReadCloser, error)
}

// BytesSource serves an in-memory payload.
type BytesSource struct {
	name string
	data []byte
}

func NewBytesSource(name string, data []byte) *BytesSource {
	return &BytesSource{name: name, data: data}
}

func (s *BytesSource) Name() string {
	return s.name
}

func (s *BytesSource) Size(context.Context) (int64, bool, error) {
	return int64(len(s.data)), true, nil
}

func (s *BytesSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// FileSource serves a payload from the local filesystem.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string {
	return s.path
}

func (s *FileSource) Size(context.Context) (int64, bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, false, fmt.Errorf("stat %s: %w", s.path, err)
	}
	return info.Size(), true, nil
}

func (s *FileSource) Open(context.Context) (io.ReadCloser, error) {
	return os.Open(s.path)
}

// HTTPSource probes the payload size with a HEAD request and downloads
// with GET. A server that does not advertise a content length simply
// yields an unknown size.
type HTTPSource struct {
	client *http.Client
	url    string
}

func NewHTTPSource(client *http.Client, url string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, url: url}
}

func (s *HTTPSource) Name() string {
	return s.url
}

func (s *HTTPSource) Size(ctx context.Context) (int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("probing %s: %w", s.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, false, fmt.Errorf("probing %s: unexpected status %s", s.url, resp.Status)
	}
	if resp.ContentLength < 0 {
		return 0, false, nil
	}
	return resp.ContentLength, true, nil
}

func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %s", s.url, resp.Status)
	}
	return resp.Body, nil
}

// fetchPayload downloads the whole payload, transparently decompressing
// gzip-compressed assets.
func fetchPayload(ctx context.Context, src Source) ([]byte, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	head, _ := br.Peek(2)
	var r io.Reader = br
	if len(head) == 2 && head[0] == 0x1f && head[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip header: %v", core.ErrDecode, err)
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src.Name(), err)
	}
	return data, nil
}
