package driver

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Helcaraxan/wasmenv/internal/config"
	"github.com/Helcaraxan/wasmenv/internal/errs"
)

func Exec(cOpts *CommonOpts) *cobra.Command {
	opts := &execOptions{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "exec [<version-constraint>] [--prerelease] -- <args>...",
		Short: fmt.Sprintf("Run %s at a given version.", config.BinaryName),
		Long: fmt.Sprintf(`Run %[1]s with the given arguments. When the active version satisfies the constraint, or when no
constraint is given, the active version is used. Otherwise the matching release is installed next to the active one,
without switching to it, and run from there.

Standard input and output as well as signals are forwarded and the exit status of %[1]s is returned.`, config.BinaryName),
		Args: func(cmd *cobra.Command, args []string) error {
			if dash := cmd.ArgsLenAtDash(); dash > 1 || (dash < 0 && len(args) > 1) {
				return fmt.Errorf("at most one version constraint may precede '--', got %v", args)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			constraintArgs, binArgs := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				constraintArgs, binArgs = args[:dash], args[dash:]
			}
			return opts.exec(cmd, constraintArgs, binArgs)
		},
	}

	registerExecFlags(cmd, opts)

	return cmd
}

func registerExecFlags(cmd *cobra.Command, opts *execOptions) {
	cmd.Flags().BoolVar(&opts.prerelease, "prerelease", false, "Include prereleases when resolving the version.")
}

type execOptions struct {
	*CommonOpts

	prerelease bool
}

// Used to differentiate from exit codes of the executed binary.
const execExitCode = 128

func (o *execOptions) exec(cmd *cobra.Command, constraintArgs []string, binArgs []string) error {
	// Standard input belongs to the executed binary.
	constraint, _, err := resolveConstraint(o.logger(), o.constraintSources(constraintArgs, false))
	if err != nil {
		return err
	}

	bin, err := o.binaryFor(cmd, constraint)
	if err != nil {
		return err
	}
	return o.run(bin, binArgs)
}

func (o *execOptions) binaryFor(cmd *cobra.Command, constraint *semver.Constraints) (string, error) {
	ctx := cmd.Context()

	active := o.activeProbe().CurrentVersion(ctx)
	if constraint == nil || (active != nil && constraint.Check(active)) {
		if p, err := exec.LookPath(config.BinaryName); err == nil {
			return p, nil
		}
		if _, err := os.Stat(o.layout().CurrentBinary()); err == nil {
			return o.layout().CurrentBinary(), nil
		}
		if constraint == nil {
			return "", fmt.Errorf("%w: no active %s version, run `%s use` to install one", errs.ErrNotFound, config.BinaryName, config.DriverName)
		}
	}

	inst, err := o.installer(ctx)
	if err != nil {
		return "", err
	}
	rel, v, err := inst.Resolve(ctx, constraint, o.prerelease)
	if err != nil {
		return "", err
	}
	o.logger().Debug("Provisioning version for execution.", zap.Stringer("version", v))
	return inst.Provision(ctx, *rel)
}

// run executes the binary as a child process rather than replacing the current process as the latter is not possible
// on Windows. Signals received in the meantime are forwarded.
func (o *execOptions) run(bin string, args []string) error {
	log := o.logger().With(zap.String("binary", bin))

	c := exec.Command(bin, args...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	if err := c.Start(); err != nil {
		log.Error("Failed to start the binary.", zap.Error(err))
		return &ExitCodeError{Code: execExitCode}
	}

	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	forwarded := make(chan struct{})
	signal.Notify(sigs, forwardedSignals...)
	go func() {
		defer close(forwarded)
		forwardSignals(log, c, sigs, done)
	}()

	err := c.Wait()
	signal.Stop(sigs)
	close(done)
	<-forwarded

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr):
		return &ExitCodeError{Code: exitErr.ExitCode()}
	default:
		log.Error("Failed to run the binary.", zap.Error(err))
		return &ExitCodeError{Code: execExitCode}
	}
}

func forwardSignals(log *zap.Logger, c *exec.Cmd, sigs <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case sig := <-sigs:
			if sig == os.Interrupt && runtime.GOOS == "windows" {
				// Interrupts can not be forwarded on Windows.
				sig = os.Kill
			}
			if err := c.Process.Signal(sig); err != nil {
				log.Debug("Could not forward signal to the binary.", zap.Stringer("signal", sig), zap.Error(err))
			}
		case <-done:
			return
		}
	}
}
