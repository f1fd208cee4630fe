package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"vcti2c/core"
	"vcti2c/vct"
)

// call runs a prepared operation on the device
type call func(ctx context.Context, dev *vct.Device, out io.Writer) error

// operation is one command line operation. The flag is a marker, its
// values are the positional arguments.
type operation struct {
	name    string
	args    []string
	help    string
	prepare func(args []string) (call, error)
}

func (op *operation) metavars() string {
	return strings.Join(op.args, " ")
}

func (op *operation) usage() string {
	return fmt.Sprintf("%s (%s)", op.help, op.metavars())
}

// operations in priority order: the first one selected runs.
// Block and range reads rank above rbas on purpose, matching the vct_cli dispatch chain.
var operations = []operation{
	{name: "pull-fa1", args: []string{"level", "delay"}, help: "Pull FA1 line to logic level", prepare: preparePull(vct.LineFA1)},
	{name: "pull-scl", args: []string{"level", "delay"}, help: "Pull SCL line to logic level", prepare: preparePull(vct.LineSCL)},
	{name: "rbo", args: []string{"address", "offset"}, help: "Read byte from address offset", prepare: prepareReadByte},
	{name: "wbo", args: []string{"address", "offset", "data"}, help: "Write byte to address offset", prepare: prepareWriteByte},
	{name: "rmb", args: []string{"address", "offset_start", "offset_end"}, help: "Read EEPROM Memory page block", prepare: prepareReadBlock},
	{name: "rmr", args: []string{"address_start", "address_end"}, help: "Read EEPROM Memory range", prepare: prepareReadRange},
	{name: "rbas", args: []string{"address", "sub_address"}, help: "Read byte from address/sub-address", prepare: prepareReadByte},
	{name: "wbas", args: []string{"address", "sub_address", "write_byte"}, help: "Write byte from address/sub-address (addr, sub-addr, byte)", prepare: prepareWriteByte},
	{name: "rwas", args: []string{"address", "sub_address"}, help: "Read word from address/sub-address", prepare: prepareReadWord},
	{name: "wwas", args: []string{"address", "sub_address", "high_word", "low_word"}, help: "Write word from address/sub-address (addr, sub-addr, high, low)", prepare: prepareWriteWord},
	{name: "wmf", args: []string{"start_addr", "end_addr", "file_path"}, help: "Write to EEPROM memory address range from binary file", prepare: prepareWriteFile},
}

// parseBytes parses every argument with core.ParseByte
func parseBytes(args []string) ([]uint8, error) {
	out := make([]uint8, len(args))
	for i, arg := range args {
		v, err := core.ParseByte(arg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func printHex(out io.Writer, data []byte) error {
	_, err := fmt.Fprintln(out, vct.FormatHex(data))
	return err
}

func preparePull(line vct.Line) func(args []string) (call, error) {
	return func(args []string) (call, error) {
		level, err := core.ParseLevel(args[0])
		if err != nil {
			return nil, err
		}
		delay, err := core.ParseDelay(args[1])
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, dev *vct.Device, _ io.Writer) error {
			return dev.Pull(ctx, line, level, delay)
		}, nil
	}
}

func prepareReadByte(args []string) (call, error) {
	v, err := parseBytes(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, dev *vct.Device, out io.Writer) error {
		data, err := dev.ReadByte(ctx, v[0], v[1])
		if err != nil {
			return err
		}
		return printHex(out, data)
	}, nil
}

func prepareWriteByte(args []string) (call, error) {
	v, err := parseBytes(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, dev *vct.Device, out io.Writer) error {
		data, err := dev.WriteByte(ctx, v[0], v[1], v[2])
		if err != nil {
			return err
		}
		return printHex(out, data)
	}, nil
}

func prepareReadWord(args []string) (call, error) {
	v, err := parseBytes(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, dev *vct.Device, out io.Writer) error {
		data, err := dev.ReadWord(ctx, v[0], v[1])
		if err != nil {
			return err
		}
		return printHex(out, data)
	}, nil
}

func prepareWriteWord(args []string) (call, error) {
	v, err := parseBytes(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, dev *vct.Device, out io.Writer) error {
		data, err := dev.WriteWord(ctx, v[0], v[1], v[2], v[3])
		if err != nil {
			return err
		}
		return printHex(out, data)
	}, nil
}

// prepareReadBlock writes the raw bytes of the offset range to out
func prepareReadBlock(args []string) (call, error) {
	v, err := parseBytes(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, dev *vct.Device, out io.Writer) error {
		data, err := dev.ReadBlockOffset(ctx, v[0], v[1], v[2])
		if err != nil {
			return err
		}
		for _, b := range data {
			if _, err := out.Write(b); err != nil {
				return err
			}
		}
		return nil
	}, nil
}

// prepareReadRange writes the raw bytes of every page to out
func prepareReadRange(args []string) (call, error) {
	v, err := parseBytes(args)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, dev *vct.Device, out io.Writer) error {
		pages, err := dev.ReadBlockRange(ctx, v[0], v[1])
		if err != nil {
			return err
		}
		for _, page := range pages {
			for _, b := range page {
				if _, err := out.Write(b); err != nil {
					return err
				}
			}
		}
		return nil
	}, nil
}

// prepareWriteFile loads the whole file before the engine is contacted
func prepareWriteFile(args []string) (call, error) {
	v, err := parseBytes(args[:2])
	if err != nil {
		return nil, err
	}
	path := args[2]
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &fileError{path: path, err: err}
	}
	return func(ctx context.Context, dev *vct.Device, _ io.Writer) error {
		return dev.WriteBlockRange(ctx, v[0], v[1], buf)
	}, nil
}
