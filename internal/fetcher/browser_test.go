package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prodlens/prodlens/internal/safeurl"
	"github.com/prodlens/prodlens/internal/types"
)

func TestNavigationAllowedBlocksForbiddenHops(t *testing.T) {
	revalidate := func(ctx context.Context, rawURL string) (*safeurl.Target, error) {
		if strings.Contains(rawURL, "169.254.169.254") {
			return nil, &types.ValidationError{URL: rawURL, Reason: "link-local", Err: types.ErrForbiddenHost}
		}
		return allowAll(ctx, rawURL)
	}
	bf := &BrowserFetcher{revalidate: revalidate, logger: testLogger}

	if err := bf.navigationAllowed(context.Background(), "https://store.example.com/product"); err != nil {
		t.Errorf("public hop: unexpected error %v", err)
	}
	err := bf.navigationAllowed(context.Background(), "http://169.254.169.254/latest/meta-data/")
	if !errors.Is(err, types.ErrForbiddenHost) {
		t.Errorf("metadata hop: expected ErrForbiddenHost, got %v", err)
	}
}
