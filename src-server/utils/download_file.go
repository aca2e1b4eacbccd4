package utils

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// DownloadFile fetches url, refusing bodies larger than maxBytes.
func DownloadFile(ctx context.Context, client *resty.Client, url string, maxBytes int64) ([]byte, error) {
	resp, err := client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("DownloadFile: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("DownloadFile: bad status code: %d", resp.StatusCode())
	}
	body := resp.Body()
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("DownloadFile: file is larger than %d bytes", maxBytes)
	}
	return body, nil
}
