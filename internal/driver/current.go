package driver

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
)

func Current(cOpts *CommonOpts) *cobra.Command {
	opts := &currentOptions{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "current [--verbose] [--log-domains=<domain>...]",
		Short: fmt.Sprintf("Display the currently active version of %s.", config.BinaryName),
		Long: fmt.Sprintf(`Display the currently active version of %s. With --verbose the managed installation backing it is
described as well.

The global '--verbose/-v' logging flag is replaced by this command's own --verbose. Use --log-domains to select logging
domains instead.`, config.BinaryName),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.current(cmd)
		},
	}

	registerCurrentFlags(cmd, opts)

	return cmd
}

func registerCurrentFlags(cmd *cobra.Command, opts *currentOptions) {
	cmd.Flags().BoolVar(
		&opts.verbose,
		"verbose",
		false,
		"Also print where the active installation is located. Replaces the global logging flag for this command.",
	)
	cmd.Flags().StringSliceVar(&opts.Verbose, "log-domains", nil, "Verbose output for the given logging domains.")
	cmd.Flag("log-domains").NoOptDefVal = "all"
}

type currentOptions struct {
	*CommonOpts

	verbose bool
}

func (o *currentOptions) current(cmd *cobra.Command) error {
	v := o.activeProbe().CurrentVersion(cmd.Context())
	if v == nil {
		return fmt.Errorf("%w: no active %s version, run `%s use` to install one", errs.ErrNotFound, config.BinaryName, config.DriverName)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", config.BinaryName, v)
	if !o.verbose {
		return nil
	}

	l := o.layout()
	linked, err := l.CurrentVersion()
	switch {
	case err != nil:
		fmt.Fprintf(out, "managed installation: broken (%v)\n", err)
	case linked == nil:
		fmt.Fprintf(out, "managed installation: none\n")
	default:
		fmt.Fprintf(out, "managed installation: %s %s\n", config.BinaryName, linked)
		fmt.Fprintf(out, "%s: %s\n", config.EnvActiveRoot, l.Current())
		fmt.Fprintf(out, "binary: %s -> %s\n", l.CurrentBinary(), l.VersionBinary(linked))
	}
	if linked != nil && !linked.Equal(v) {
		fmt.Fprintf(out, "note: the %s on your PATH is not the one managed by %s\n", config.BinaryName, config.DriverName)
	}
	return nil
}
