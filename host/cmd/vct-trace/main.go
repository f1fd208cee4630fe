// Command vct-trace prints the CBOR trace files written by vct-cli --trace.
//
// Usage:
//
//	vct-trace [--kind transfer] [--errors] <file.cbor>...
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vcti2c/host/trace"
)

// filter selects the events to print
type filter struct {
	kinds  map[trace.Kind]bool
	errors bool
}

func (f *filter) matches(ev trace.Event) bool {
	if len(f.kinds) > 0 && !f.kinds[ev.Kind] {
		return false
	}
	if f.errors && ev.Error == "" {
		return false
	}
	return true
}

// parseKinds maps kind names to kinds
func parseKinds(names []string) (map[trace.Kind]bool, error) {
	kinds := make(map[trace.Kind]bool)
	for _, name := range names {
		found := false
		for k := trace.KindOpen; k <= trace.KindWrite; k++ {
			if strings.EqualFold(k.String(), name) {
				kinds[k] = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown event kind %q", name)
		}
	}
	return kinds, nil
}

// dump prints the events of r matching f and returns how many it printed
func dump(r *trace.Reader, w io.Writer, f *filter) (int, error) {
	n := 0
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if !f.matches(ev) {
			continue
		}
		if _, err := fmt.Fprintln(w, ev.String()); err != nil {
			return n, err
		}
		n++
	}
}

func newRootCommand() *cobra.Command {
	var (
		kinds      []string
		errorsOnly bool
	)

	cmd := &cobra.Command{
		Use:          "vct-trace <file.cbor>...",
		Short:        "Print engine traces recorded by vct-cli",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKinds(kinds)
			if err != nil {
				return err
			}
			f := &filter{kinds: k, errors: errorsOnly}

			for _, path := range args {
				r, err := trace.Open(path)
				if err != nil {
					return err
				}
				_, err = dump(r, cmd.OutOrStdout(), f)
				r.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only print these event kinds (open, transfer, close, mode, pull, write)")
	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "only print failed calls")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
