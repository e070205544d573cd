package driver

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/install"
)

func Use(cOpts *CommonOpts) *cobra.Command {
	opts := &useOptions{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "use [<version-constraint>] [--prerelease]",
		Short: fmt.Sprintf("Install and activate a version of %s.", config.BinaryName),
		Long: fmt.Sprintf(`Install the newest release of %[1]s matching the given semantic version constraint and make it the
active one. Without a constraint the latest release is used.

The constraint is taken from, in order of precedence:
- the command argument,
- piped standard input,
- the %[2]s environment variable,
- the nearest '%[3]s' file in the current directory or one of its parents, which contains 'version: <constraint>'.

Prereleases are only considered with --prerelease.`, config.BinaryName, config.EnvDefaultVersion, ".wasmenv.yaml"),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.use(cmd, args)
		},
	}

	registerUseFlags(cmd, opts)

	return cmd
}

func registerUseFlags(cmd *cobra.Command, opts *useOptions) {
	cmd.Flags().BoolVar(&opts.prerelease, "prerelease", false, "Include prereleases when resolving the version.")
}

type useOptions struct {
	*CommonOpts

	prerelease bool
}

func (o *useOptions) use(cmd *cobra.Command, args []string) error {
	if err := o.requireShell(); err != nil {
		return err
	}

	constraint, origin, err := resolveConstraint(o.logger(), o.constraintSources(args, true))
	if err != nil {
		return err
	}
	o.logger().Debug("Resolved version constraint.", zap.String("origin", string(origin)))

	inst, err := o.installer(cmd.Context())
	if err != nil {
		return err
	}
	res, err := inst.Install(cmd.Context(), constraint, o.prerelease)
	if err != nil {
		return err
	}
	o.report(cmd.OutOrStdout(), res)
	return nil
}

func (o *useOptions) report(out io.Writer, res *install.Result) {
	switch res.Outcome {
	case install.Installed:
		fmt.Fprintf(out, "You are now using %[1]s %[2]s. You can run `%[1]s --version` to check your version of %[1]s.\n", config.BinaryName, res.Version)
	case install.AlreadyCurrent:
		fmt.Fprintf(out, "You're already using %s %s.\n", config.BinaryName, res.Version)
	case install.AlreadyInstalled:
		fmt.Fprintf(out, "%s %s is already installed and up to date.\n", config.BinaryName, res.Version)
	case install.Reverted:
		o.logger().Warn(
			fmt.Sprintf("Failed to install %s %s. Reverting back to the old version.", config.BinaryName, res.Version),
			zap.Error(res.Cause),
		)
	}
	o.logger().Debug(
		"Active installation.",
		zap.Stringer("outcome", res.Outcome),
		zap.String(config.EnvActiveRoot, res.Root),
		zap.String("binary", res.Binary),
	)
}
