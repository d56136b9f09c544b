package index

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/frederic-klein/reqinstall/internal/dist"
	"github.com/frederic-klein/reqinstall/internal/logging"
	"github.com/frederic-klein/reqinstall/internal/reqerr"
)

// DefaultURL is the project listing root of the public Python package index.
const DefaultURL = "https://pypi.org/project"

// PackageIndex answers whether pinned releases exist on a remote package index.
type PackageIndex struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewPackageIndex creates an index client rooted at baseURL. A zero timeout
// leaves requests bounded only by their context.
func NewPackageIndex(baseURL string, timeout time.Duration) *PackageIndex {
	return &PackageIndex{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     logging.GetLogger("index"),
	}
}

// URL returns the configured base URL.
func (idx *PackageIndex) URL() string {
	return idx.baseURL
}

// ReleaseURL returns the existence query URL for a requirement.
func (idx *PackageIndex) ReleaseURL(req dist.Requirement) string {
	return fmt.Sprintf("%s/%s/%s/", idx.baseURL, url.PathEscape(req.Name), url.PathEscape(req.Version))
}

// Exists queries the index for one requirement. Any status other than 200
// means the release does not exist; transport failures are returned as errors.
func (idx *PackageIndex) Exists(ctx context.Context, req dist.Requirement) (bool, error) {
	releaseURL := idx.ReleaseURL(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseURL, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := idx.client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("querying package index for %s: %w", req, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused for the next sequential check.
	_, _ = io.Copy(io.Discard, resp.Body)

	idx.log.Debug().
		Str("package", req.Name).
		Str("version", req.Version).
		Int("status", resp.StatusCode).
		Msg("Checked release")

	return resp.StatusCode == http.StatusOK, nil
}

// CheckAll confirms every requirement exists, one request at a time and in
// slice order. It stops at the first requirement the index does not confirm.
func (idx *PackageIndex) CheckAll(ctx context.Context, reqs []dist.Requirement) error {
	for _, req := range reqs {
		ok, err := idx.Exists(ctx, req)
		if err != nil {
			return err
		}
		if !ok {
			idx.log.Info().
				Str("package", req.Name).
				Str("version", req.Version).
				Msg("Release not found on package index")
			return reqerr.NonExistentRequirement(req.Name, req.Version)
		}
	}
	return nil
}
