package driver

import (
	"fmt"

	"github.com/spf13/cobra"
)

func ClearCache(cOpts *CommonOpts) *cobra.Command {
	opts := &clearCacheOptions{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "clear-cache [--keep=<n>]",
		Short: "Remove downloaded release archives.",
		Long: `Remove the release archives kept in the download cache. Installed versions are not affected. With --keep
the archives of the given number of most recent versions are retained.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.clearCache(cmd)
		},
	}

	registerClearCacheFlags(cmd, opts)

	return cmd
}

func registerClearCacheFlags(cmd *cobra.Command, opts *clearCacheOptions) {
	cmd.Flags().IntVar(&opts.keep, "keep", 0, "Number of most recent versions for which to keep the archives.")
}

type clearCacheOptions struct {
	*CommonOpts

	keep int
}

func (o *clearCacheOptions) clearCache(cmd *cobra.Command) error {
	if err := o.requireShell(); err != nil {
		return err
	}
	if o.keep < 0 {
		return fmt.Errorf("--keep must not be negative, got %d", o.keep)
	}

	c, err := o.cache(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if o.keep == 0 {
		n, err := c.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "cleared %q (%d files removed)\n", c.Root(), n)
		return nil
	}

	removed, err := c.Prune(o.keep)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "pruned %q (%d files removed)\n", c.Root(), len(removed))
	return nil
}
