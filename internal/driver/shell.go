package driver

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
	"github.com/Helcaraxan/wasmenv/internal/shell"
)

func Shell(cOpts *CommonOpts) *cobra.Command {
	opts := &shellOptions{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "shell [<name>]",
		Short: fmt.Sprintf("Print the code that sets up %s for a shell (%s).", config.DriverName, strings.Join(shell.Supported(), ", ")),
		Long: fmt.Sprintf(`Print the initialisation code for the given shell, or for the one in $SHELL when no name is given.
Add its output to your shell's configuration, or evaluate it directly:

    %[1]s shell | source`, config.DriverName),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.shell(cmd, args)
		},
	}

	return cmd
}

type shellOptions struct {
	*CommonOpts
}

func (o *shellOptions) shell(cmd *cobra.Command, args []string) error {
	name := o.getenv("SHELL")
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		return fmt.Errorf("%w: no shell name given and $SHELL is not set", errs.ErrPrecondition)
	}

	script, err := shell.Script(name, o.Dirs.Config)
	if err != nil {
		return err
	}

	current := o.layout().Current()
	if err = os.MkdirAll(current, 0o755); err != nil {
		return fmt.Errorf("%w: unable to create %q: %w", errs.ErrFilesystem, current, err)
	}
	written, err := shell.WriteConfigFiles(o.Dirs.Config, current)
	if err != nil {
		return err
	}
	if len(written) > 0 {
		o.logger().Debug("Created shell configuration files.", zap.Strings("files", written))
	}

	fmt.Fprint(cmd.OutOrStdout(), script)
	return nil
}
