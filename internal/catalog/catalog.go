// Package catalog retrieves the list of published releases of the managed binary from GitHub.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/logger"
	"github.com/Helcaraxan/wasmenv/internal/progress"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

// EnvToken optionally holds a GitHub token. Authenticated requests have a much higher rate limit.
const EnvToken = "GITHUB_TOKEN"

type Client struct {
	log      *zap.Logger
	gh       *github.Client
	owner    string
	repo     string
	perPage  int
	maxPages int
	spinner  progress.Indicator
}

// New sets up a client for the configured repository. A nil httpClient uses http.DefaultClient.
func New(logBuilder *logger.Builder, c config.Catalog, httpClient *http.Client, spinner progress.Indicator) (*Client, error) {
	log := logBuilder.Domain(logger.CatalogDomain).With(zap.String("repository", c.Slug))

	rs := strings.Split(c.Slug, "/")
	if len(rs) != 2 || rs[0] == "" || rs[1] == "" {
		log.Error("Invalid repository slug.")
		return nil, fmt.Errorf("%w: repo slug %q is invalid as it does not contain an owner and repo name", errs.ErrPrecondition, c.Slug)
	}

	gh := github.NewClient(httpClient)
	if token := os.Getenv(EnvToken); token != "" {
		gh = gh.WithAuthToken(token)
	}
	if c.BaseURL != "" {
		var err error
		if gh, err = gh.WithEnterpriseURLs(c.BaseURL, c.BaseURL); err != nil {
			log.Error("Invalid GitHub base URL.", zap.String("base-url", c.BaseURL), zap.Error(err))
			return nil, fmt.Errorf("%w: invalid GitHub base URL %q: %w", errs.ErrPrecondition, c.BaseURL, err)
		}
	}
	gh.UserAgent = config.ClientIdentifier

	if spinner == nil {
		spinner = progress.Nop{}
	}
	perPage, maxPages := c.PerPage, c.MaxPages
	if perPage <= 0 {
		perPage = 30
	}
	if maxPages <= 0 {
		maxPages = 1
	}

	return &Client{
		log:      log,
		gh:       gh,
		owner:    rs[0],
		repo:     rs[1],
		perPage:  perPage,
		maxPages: maxPages,
		spinner:  spinner,
	}, nil
}

// FetchReleases returns the published releases, newest first as ordered by GitHub.
func (c *Client) FetchReleases(ctx context.Context) ([]release.Release, error) {
	c.spinner.Start(fmt.Sprintf("Fetching %s releases...", config.BinaryName))
	defer c.spinner.Stop()

	var releases []release.Release
	opts := &github.ListOptions{PerPage: c.perPage, Page: 1}
	for page := 0; page < c.maxPages; page++ {
		rs, resp, err := c.gh.Repositories.ListReleases(ctx, c.owner, c.repo, opts)
		if err != nil {
			c.log.Error("Failed to list releases.", zap.Int("page", opts.Page), zap.Error(err))
			return nil, fmt.Errorf("%w: unable to list releases page %d of %s/%s: %w", errs.ErrNetwork, opts.Page, c.owner, c.repo, err)
		}
		for _, r := range rs {
			releases = append(releases, convert(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	c.log.Debug("Fetched releases.", zap.Int("count", len(releases)))
	return releases, nil
}

func convert(r *github.RepositoryRelease) release.Release {
	rel := release.Release{
		Tag:         r.GetTagName(),
		Prerelease:  r.GetPrerelease(),
		PublishedAt: r.GetPublishedAt().Time,
	}
	for _, a := range r.Assets {
		rel.Assets = append(rel.Assets, release.Asset{
			Name:        a.GetName(),
			DownloadURL: a.GetBrowserDownloadURL(),
		})
	}
	return rel
}
