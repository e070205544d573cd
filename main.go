package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/driver"
)

func main() {
	opts := driver.NewCommonOpts()

	rootCmd := &cobra.Command{
		Use: config.DriverName,
		Long: `Install and switch between versions of the wasmer WebAssembly runtime.

Releases are resolved against the wasmer GitHub releases using semantic version
constraints, downloaded once into a local cache and installed side by side. A
single 'current' installation is exposed to your shell. To get started run:

    wasmenv shell | source
    wasmenv use
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.Parse()
		},
	}

	registerRootFlags(rootCmd, opts)

	rootCmd.AddCommand(
		driver.ClearCache(opts),
		driver.Current(opts),
		driver.Exec(opts),
		driver.List(opts),
		driver.Shell(opts),
		driver.Use(opts),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if code, ok := driver.IsExitCode(err); ok {
		os.Exit(code)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func registerRootFlags(cmd *cobra.Command, opts *driver.CommonOpts) {
	cmd.PersistentFlags().StringSliceVarP(
		&opts.Verbose,
		"verbose",
		"v",
		nil,
		"Verbose output for the given logging domains: all, init, cli, catalog, cache, install, fs, gcs, https, s3.",
	)
	cmd.Flag("verbose").NoOptDefVal = "all"
}
