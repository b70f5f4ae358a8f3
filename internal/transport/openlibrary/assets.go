package openlibrary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

// maxAssetBytes caps a fetched cover image.
const maxAssetBytes = 5 << 20

// AssetFetcher downloads cover images with a bounded client timeout.
type AssetFetcher struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAssetFetcher creates a cover asset fetcher.
func NewAssetFetcher(timeout time.Duration, logger *zap.Logger) *AssetFetcher {
	return &AssetFetcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch downloads the asset at rawURL.
func (f *AssetFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build asset request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset status %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty asset body: %w", domain.ErrProviderUnavailable)
	}
	return data, nil
}
