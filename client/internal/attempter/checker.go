package attempter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/policy"
)

const (
	maxVersionResponseSize = 100

	// versionCacheTTL keeps back-to-back forced checks from refetching
	versionCacheTTL = time.Minute
)

// Offer is what an update check found.
type Offer struct {
	UpdateAvailable bool
	Version         string
	// PollInterval is the check interval dictated by the server, zero if none.
	PollInterval time.Duration
}

// Checker performs an update check with the parameters decided by policy.
type Checker interface {
	Check(ctx context.Context, params policy.UpdateCheckParams) (Offer, error)
}

// LogChecker only logs the decided parameters and never finds an update.
type LogChecker struct{}

func (LogChecker) Check(_ context.Context, params policy.UpdateCheckParams) (Offer, error) {
	log.Infof("update check allowed: channel %q, target prefix %q, rollback allowed %t, interactive %t",
		params.TargetChannel, params.TargetVersionPrefix, params.RollbackAllowed, params.Interactive)
	return Offer{}, nil
}

// VersionChecker fetches the latest released version as plain text from a
// URL and offers it when it is newer than the running version.
type VersionChecker struct {
	url     string
	current *goversion.Version
	client  *http.Client
	cache   *gocache.Cache
}

// NewVersionChecker creates a checker for the version published at url.
// An unparsable current version is treated as 0.0.0.
func NewVersionChecker(url, currentVersion string) *VersionChecker {
	current, err := goversion.NewVersion(currentVersion)
	if err != nil {
		current, _ = goversion.NewVersion("0.0.0")
	}
	return &VersionChecker{
		url:     url,
		current: current,
		client:  &http.Client{Timeout: 30 * time.Second},
		cache:   gocache.New(versionCacheTTL, 2*versionCacheTTL),
	}
}

func (c *VersionChecker) Check(ctx context.Context, params policy.UpdateCheckParams) (Offer, error) {
	latest, err := c.fetchVersion(ctx)
	if err != nil {
		return Offer{}, err
	}

	if params.TargetVersionPrefix != "" && !strings.HasPrefix(latest.Original(), params.TargetVersionPrefix) {
		log.Infof("latest version %s does not match target prefix %q", latest, params.TargetVersionPrefix)
		return Offer{Version: latest.Original()}, nil
	}

	return Offer{
		UpdateAvailable: latest.GreaterThan(c.current),
		Version:         latest.Original(),
	}, nil
}

func (c *VersionChecker) fetchVersion(ctx context.Context) (*goversion.Version, error) {
	if cached, ok := c.cache.Get(c.url); ok {
		return cached.(*goversion.Version), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create version request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch version info: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Errorf("failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invalid status code: %d", resp.StatusCode)
	}

	if resp.ContentLength > maxVersionResponseSize {
		return nil, fmt.Errorf("too large response: %d", resp.ContentLength)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxVersionResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read version info: %w", err)
	}

	latest, err := goversion.NewVersion(strings.TrimSpace(string(content)))
	if err != nil {
		return nil, fmt.Errorf("parse version string: %w", err)
	}
	c.cache.SetDefault(c.url, latest)
	return latest, nil
}
