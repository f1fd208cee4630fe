// Command vct-cli reads and writes VCT49xl registers over a bit-banged I2C
// bus driven by pigpiod.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vcti2c/core"
	"vcti2c/host/config"
	"vcti2c/host/pigpio"
	"vcti2c/host/trace"
	"vcti2c/vct"
)

const exampleText = `  vct-cli --rbo 0x50 0x10
  vct-cli --wbo 0x50 0x10 0x36
  vct-cli --rmr 0x50 0x57 > dump.bin
  vct-cli --wmf 0x50 0x57 dump.bin
  vct-cli --pull-scl 0 3`

// Exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// dialFunc connects to the engine described by cfg
type dialFunc func(ctx context.Context, cfg *config.Config) (core.Engine, error)

// app holds one invocation of the tool
type app struct {
	stdout io.Writer
	stderr io.Writer
	dial   dialFunc

	// device options added by tests
	deviceOpts []vct.Option

	configPath string
	envPath    string
	logLevel   string
	tracePath  string

	// operation flags, by name
	selected map[string]*bool

	root *cobra.Command
}

// usageError is a malformed command line
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// fileError is a --wmf input that could not be read
type fileError struct {
	path string
	err  error
}

func (e *fileError) Error() string {
	if errors.Is(e.err, fs.ErrNotExist) {
		return fmt.Sprintf("Error: File '%s' not found.", e.path)
	}
	return fmt.Sprintf("Error: %v", e.err)
}

func (e *fileError) Unwrap() error { return e.err }

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(os.Stdout, os.Stderr, dialPigpio)
	code := a.execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func newApp(stdout, stderr io.Writer, dial dialFunc) *app {
	a := &app{
		stdout:   stdout,
		stderr:   stderr,
		dial:     dial,
		selected: make(map[string]*bool),
	}

	a.root = &cobra.Command{
		Use:           "vct-cli [operation] [values...]",
		Short:         "VCT cli tool can be used to talk to VCT49xl ICs",
		Example:       exampleText,
		Version:       vct.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), args)
		},
	}
	a.root.SetVersionTemplate("{{.Version}}\n")
	a.root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := a.root.Flags()
	flags.SortFlags = false
	for _, op := range operations {
		a.selected[op.name] = flags.Bool(op.name, false, op.usage())
	}
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.envPath, "env", ".env", "dotenv file loaded before the configuration")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.tracePath, "trace", "", "append a CBOR trace of the engine traffic to this file")

	return a
}

// execute runs the command line and returns the process exit code
func (a *app) execute(ctx context.Context, args []string) int {
	a.root.SetArgs(args)
	a.root.SetOut(a.stdout)
	a.root.SetErr(a.stderr)

	err := a.root.ExecuteContext(ctx)
	return a.report(ctx, err)
}

// report prints err the way the user expects it and maps it to an exit code
func (a *app) report(ctx context.Context, err error) int {
	var (
		uerr   *usageError
		argErr *core.ArgumentError
		ferr   *fileError
	)

	switch {
	case err == nil:
		return exitOK
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		fmt.Fprintln(a.stdout, "\nProcess terminated by user")
		return exitOK
	case errors.As(err, &uerr):
		fmt.Fprintf(a.stderr, "Error: %v\n\n%s", uerr, a.root.UsageString())
		return exitUsage
	case errors.As(err, &argErr):
		fmt.Fprintln(a.stdout, argErr.Error())
		return exitError
	case errors.As(err, &ferr):
		fmt.Fprintln(a.stdout, ferr.Error())
		return exitOK
	case errors.Is(err, vct.ErrBufferTooLarge):
		fmt.Fprintln(a.stdout, "Aborted! buffer cannot fit in that memory space")
		return exitOK
	default:
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitError
	}
}

// run executes the highest priority operation selected on the command line
func (a *app) run(ctx context.Context, args []string) error {
	op := a.operation()
	if op == nil {
		if len(args) > 0 {
			return &usageError{err: fmt.Errorf("unexpected arguments %q without an operation", args)}
		}
		return a.root.Help()
	}
	if len(args) != len(op.args) {
		return &usageError{err: fmt.Errorf("--%s expects %d values (%s), got %d", op.name, len(op.args), op.metavars(), len(args))}
	}

	// Arguments are validated before the engine is touched
	call, err := op.prepare(args)
	if err != nil {
		return err
	}

	if err := config.LoadDotEnv(a.envPath); err != nil {
		return fmt.Errorf("load %s: %w", a.envPath, err)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.tracePath != "" {
		cfg.TraceFile = a.tracePath
	}

	logger, err := setupLogging(cfg, a.stderr)
	if err != nil {
		return err
	}
	devCfg, err := cfg.Device()
	if err != nil {
		return err
	}

	engine, err := a.dial(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.TraceFile != "" {
		rec, err := trace.NewFileRecorder(engine, cfg.TraceFile)
		if err != nil {
			_ = engine.Close()
			return fmt.Errorf("open trace: %w", err)
		}
		engine = rec
	}

	opts := append([]vct.Option{vct.WithLogger(logger)}, a.deviceOpts...)
	dev, err := vct.New(ctx, engine, devCfg, opts...)
	if err != nil {
		_ = engine.Close()
		return err
	}
	defer dev.Close()

	logger.Debug("running operation", slog.String("op", op.name), slog.String("device", dev.String()))
	return call(ctx, dev, a.stdout)
}

// operation returns the selected operation with the highest priority
func (a *app) operation() *operation {
	for i := range operations {
		if *a.selected[operations[i].name] {
			return &operations[i]
		}
	}
	return nil
}

// setupLogging builds the stderr logger at the configured level
func setupLogging(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// dialPigpio connects to pigpiod
func dialPigpio(ctx context.Context, cfg *config.Config) (core.Engine, error) {
	lc, err := cfg.Link()
	if err != nil {
		return nil, err
	}
	client, err := pigpio.Dial(ctx, lc)
	if err != nil {
		return nil, err
	}
	return client, nil
}
