package objectstore

import (
	"context"
	"fmt"
	"net/http"
)

// Rehost downloads srcURL and stores it under key, returning the public URL
// the stored copy resolves to. Vendor-returned image URLs are short-lived;
// they are rehosted before anything persists a reference to them.
func Rehost(ctx context.Context, store ObjectStore, p Presigner, client *http.Client, srcURL, key string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("rehost %q: %w", srcURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rehost %q: %w", srcURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("rehost %q: unexpected status %s", srcURL, resp.Status)
	}
	contentType := resp.Header.Get("Content-Type")
	if _, err := store.Put(ctx, key, resp.Body, PutOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("rehost %q: store: %w", srcURL, err)
	}
	return p.PublicURL(key), nil
}
