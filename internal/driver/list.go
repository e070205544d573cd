package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/release"
)

const defaultListCount = 5

func List(cOpts *CommonOpts) *cobra.Command {
	opts := &listOptions{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "list [<version-constraint>] [--count=<n>] [--all]",
		Short: fmt.Sprintf("List the available versions of %s.", config.BinaryName),
		Long: fmt.Sprintf(`List the published releases of %[1]s, optionally filtered by a semantic version constraint. The
newest matching releases are shown from oldest to newest. Each release is tagged when it is a prerelease, the
currently active version ('current'), installed by %[2]s ('installed') or installed separately in ~/.%[1]s
('system').`, config.BinaryName, config.DriverName),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.list(cmd, args)
		},
	}

	registerListFlags(cmd, opts)

	return cmd
}

func registerListFlags(cmd *cobra.Command, opts *listOptions) {
	cmd.Flags().IntVarP(&opts.count, "count", "c", defaultListCount, "Number of releases to list.")
	cmd.Flags().BoolVarP(&opts.all, "all", "a", false, "List all releases, ignoring --count.")
}

type listOptions struct {
	*CommonOpts

	count int
	all   bool
}

type versionTags struct {
	current   *semver.Version
	system    *semver.Version
	installed []*semver.Version
}

func (o *listOptions) list(cmd *cobra.Command, args []string) error {
	constraint, _, err := resolveConstraint(o.logger(), o.constraintSources(args, true))
	if err != nil {
		return err
	}

	cat, err := o.catalog()
	if err != nil {
		return err
	}
	releases, err := cat.FetchReleases(cmd.Context())
	if err != nil {
		return err
	}

	tags := o.versionTags(cmd.Context())
	count := o.count
	if o.all {
		count = 0
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderList(selectForListing(releases, constraint, count), tags))
	return nil
}

func (o *listOptions) versionTags(ctx context.Context) versionTags {
	t := versionTags{
		current: o.activeProbe().CurrentVersion(ctx),
		system:  o.systemProbe().CurrentVersion(ctx),
	}
	installed, err := o.layout().Installed()
	if err != nil {
		o.logger().Debug("Unable to list installed versions.", zap.Error(err))
	}
	t.installed = installed
	return t
}

// selectForListing filters the catalog with the constraint and keeps the count newest matches, zero meaning all of
// them. The result is ordered from oldest to newest.
func selectForListing(catalog []release.Release, constraint *semver.Constraints, count int) []release.Release {
	var matches []release.Release
	for _, r := range catalog {
		v, err := r.Version()
		if err != nil {
			continue
		}
		if constraint != nil && !constraint.Check(v) {
			continue
		}
		matches = append(matches, r)
	}
	if count > 0 && len(matches) > count {
		matches = matches[:count]
	}

	selected := make([]release.Release, 0, len(matches))
	for i := len(matches) - 1; i >= 0; i-- {
		selected = append(selected, matches[i])
	}
	return selected
}

func renderList(releases []release.Release, tags versionTags) string {
	rows := []string{
		"Tags | Release | Published at",
		"---- | ------- | ------------",
	}
	for _, r := range releases {
		v, _ := r.Version()
		rows = append(rows, fmt.Sprintf("%s | %s | %s", strings.Join(tags.of(r, v), ", "), v, r.PublishedTime()))
	}
	return columnize.SimpleFormat(rows)
}

func (t versionTags) of(r release.Release, v *semver.Version) []string {
	var tags []string
	if r.Prerelease {
		tags = append(tags, "prerelease")
	}
	if t.current != nil && t.current.Equal(v) {
		tags = append(tags, "current")
	}
	for _, i := range t.installed {
		if i.Equal(v) {
			tags = append(tags, "installed")
			break
		}
	}
	if t.system != nil && t.system.Equal(v) {
		tags = append(tags, "system")
	}
	return tags
}
