package catalog

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/logger"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

func testRelease(tag string, prerelease bool) github.RepositoryRelease {
	return github.RepositoryRelease{
		TagName:     github.String(tag),
		Prerelease:  github.Bool(prerelease),
		PublishedAt: &github.Timestamp{Time: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		Assets: []*github.ReleaseAsset{
			{
				Name:               github.String("wasmer-linux-amd64.tar.gz"),
				BrowserDownloadURL: github.String("https://github.com/wasmerio/wasmer/releases/download/" + tag + "/wasmer-linux-amd64.tar.gz"),
			},
		},
	}
}

type countingIndicator struct {
	starts, stops int
}

func (c *countingIndicator) Start(string) { c.starts++ }
func (c *countingIndicator) Stop()        { c.stops++ }

func TestFetchReleases(t *testing.T) {
	t.Parallel()

	fakeGH := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetReposReleasesByOwnerByRepo,
			[]github.RepositoryRelease{
				testRelease("v4.3.0-beta.1", true),
				testRelease("v4.2.0", false),
				testRelease("v4.1.2", false),
			},
		),
	)

	spinner := &countingIndicator{}
	c, err := New(logger.NewTestBuilder(), config.Defaults().Catalog, fakeGH, spinner)
	require.NoError(t, err)

	releases, err := c.FetchReleases(context.Background())
	require.NoError(t, err)
	require.Len(t, releases, 3)

	assert.Equal(t, []string{"v4.3.0-beta.1", "v4.2.0", "v4.1.2"}, []string{releases[0].Tag, releases[1].Tag, releases[2].Tag})
	assert.True(t, releases[0].Prerelease)
	assert.False(t, releases[1].Prerelease)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), releases[1].PublishedAt.UTC())

	a, ok := releases[1].Asset("wasmer-linux-amd64.tar.gz")
	require.True(t, ok)
	assert.Equal(t, release.Asset{
		Name:        "wasmer-linux-amd64.tar.gz",
		DownloadURL: "https://github.com/wasmerio/wasmer/releases/download/v4.2.0/wasmer-linux-amd64.tar.gz",
	}, a)

	assert.Equal(t, 1, spinner.starts)
	assert.Equal(t, 1, spinner.stops)
}

func TestFetchReleasesPagination(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		maxPages int
		expected []string
	}{
		"SinglePage": {
			maxPages: 1,
			expected: []string{"v4.2.0", "v4.1.2"},
		},
		"AllPages": {
			maxPages: 5,
			expected: []string{"v4.2.0", "v4.1.2", "v4.1.1", "v4.0.0"},
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fakeGH := mock.NewMockedHTTPClient(
				mock.WithRequestMatchPages(
					mock.GetReposReleasesByOwnerByRepo,
					[]github.RepositoryRelease{testRelease("v4.2.0", false), testRelease("v4.1.2", false)},
					[]github.RepositoryRelease{testRelease("v4.1.1", false), testRelease("v4.0.0", false)},
				),
			)

			conf := config.Defaults().Catalog
			conf.PerPage = 2
			conf.MaxPages = tc.maxPages

			c, err := New(logger.NewTestBuilder(), conf, fakeGH, nil)
			require.NoError(t, err)

			releases, err := c.FetchReleases(context.Background())
			require.NoError(t, err)

			var tags []string
			for _, r := range releases {
				tags = append(tags, r.Tag)
			}
			assert.Equal(t, tc.expected, tags)
		})
	}
}

func TestFetchReleasesFailure(t *testing.T) {
	t.Parallel()

	fakeGH := mock.NewMockedHTTPClient(
		mock.WithRequestMatchHandler(
			mock.GetReposReleasesByOwnerByRepo,
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				mock.WriteError(w, http.StatusInternalServerError, "provider unavailable")
			}),
		),
	)

	c, err := New(logger.NewTestBuilder(), config.Defaults().Catalog, fakeGH, nil)
	require.NoError(t, err)

	_, err = c.FetchReleases(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNetwork)
}

func TestNewInvalidSlug(t *testing.T) {
	t.Parallel()

	for name, slug := range map[string]string{
		"Empty":        "",
		"NoRepo":       "wasmerio",
		"EmptyOwner":   "/wasmer",
		"TooManyParts": "wasmerio/wasmer/extra",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := New(logger.NewTestBuilder(), config.Catalog{Slug: slug}, nil, nil)
			assert.ErrorIs(t, err, errs.ErrPrecondition)
		})
	}
}
