// Command vct-sim emulates pigpiod with simulated EEPROM pages behind the
// bit-banged bus, so vct-cli can be run without hardware.
//
// Usage:
//
//	vct-sim [--listen localhost:8888] [--first 0x50] [--last 0x57] [--image dump.bin]
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"vcti2c/core"
	"vcti2c/host/pigpio"
	"vcti2c/protocol"
	"vcti2c/vct"
	"vcti2c/vct/vcttest"
)

// options of one simulator run
type options struct {
	listen   string
	first    string
	last     string
	image    string
	logLevel string
}

// logFailer reports simulator faults instead of stopping the process
type logFailer struct {
	log *slog.Logger
}

func (f logFailer) Fatalf(format string, args ...any) {
	f.log.Error(fmt.Sprintf(format, args...))
}

// newEngine builds an engine with a device per page in first..last,
// preloaded address-major with image
func newEngine(log *slog.Logger, first, last uint8, image []byte) (*vcttest.Engine, error) {
	if first > last {
		return nil, fmt.Errorf("first page 0x%02x is after last page 0x%02x", first, last)
	}
	if len(image) > vct.Capacity(first, last) {
		return nil, fmt.Errorf("%w: %d bytes for %d pages", vct.ErrBufferTooLarge, len(image), int(last-first)+1)
	}

	engine := vcttest.NewEngine(logFailer{log: log})
	for addr := int(first); addr <= int(last); addr++ {
		dev := engine.AddDevice(uint8(addr))
		n := copy(dev.Registers[:vct.PageSize], image)
		image = image[n:]
	}
	return engine, nil
}

// serve answers pigpio clients on ln until ctx is done
func serve(ctx context.Context, ln net.Listener, engine core.Engine, log *slog.Logger) error {
	log.Info("serving", "address", ln.Addr().String())
	return pigpio.NewServer(engine, log).Serve(ctx, ln)
}

func run(ctx context.Context, o *options, stderr io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", o.logLevel)
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	first, err := core.ParseByte(o.first)
	if err != nil {
		return err
	}
	last, err := core.ParseByte(o.last)
	if err != nil {
		return err
	}

	var image []byte
	if o.image != "" {
		if image, err = os.ReadFile(o.image); err != nil {
			return err
		}
	}

	engine, err := newEngine(log, first, last, image)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", o.listen)
	if err != nil {
		return err
	}
	return serve(ctx, ln, engine, log)
}

func newRootCommand() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:          "vct-sim",
		Short:        "Emulate pigpiod with simulated VCT49xl EEPROM pages",
		Version:      vct.Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.listen, "listen", net.JoinHostPort("localhost", strconv.Itoa(protocol.DefaultPort)), "address to listen on")
	flags.StringVar(&o.first, "first", "0x50", "first page address")
	flags.StringVar(&o.last, "last", "0x57", "last page address")
	flags.StringVar(&o.image, "image", "", "file preloaded into the pages, address-major")
	flags.StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
