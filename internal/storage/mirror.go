package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Mirror copies an upstream artifact into the store and returns the local
// locator. Locators already owned by the store are returned unchanged.
func (s *FileStore) Mirror(ctx context.Context, source string) (string, error) {
	if s.Owns(source) {
		return source, nil
	}
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return "", fmt.Errorf("storage: unsupported source %q", source)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", fmt.Errorf("storage: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: fetch artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage: fetch artifact: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxFetch+1))
	if err != nil {
		return "", fmt.Errorf("storage: read artifact: %w", err)
	}
	if int64(len(data)) > s.maxFetch {
		return "", errors.New("storage: artifact exceeds size limit")
	}
	contentType := resp.Header.Get("Content-Type")
	if ExtensionForMIME(contentType) == "" {
		contentType = MIMEForExtension(req.URL.Path)
	}
	if contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return s.Put(ctx, data, contentType)
}
