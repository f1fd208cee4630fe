package vct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrBufferTooLarge is returned when a block write does not fit the
// address range. Nothing is written in that case.
var ErrBufferTooLarge = errors.New("buffer cannot fit in that memory space")

// ReadBlockOffset reads offsets start..end of addr, one transaction per
// offset. Each entry is the raw result of its transaction.
func (d *Device) ReadBlockOffset(ctx context.Context, addr, start, end uint8) ([][]byte, error) {
	if start > end {
		return [][]byte{}, nil
	}

	data := make([][]byte, 0, int(end)-int(start)+1)
	for offset := int(start); offset <= int(end); offset++ {
		value, err := d.ReadByte(ctx, addr, uint8(offset))
		if err != nil {
			return data, fmt.Errorf("read 0x%02X/0x%02X: %w", addr, offset, err)
		}
		data = append(data, value)
	}
	return data, nil
}

// ReadBlockRange reads the full page of every address in start..end,
// pausing PageDelay after each page.
func (d *Device) ReadBlockRange(ctx context.Context, start, end uint8) ([][][]byte, error) {
	if start > end {
		return [][][]byte{}, nil
	}

	pages := make([][][]byte, 0, int(end)-int(start)+1)
	for addr := int(start); addr <= int(end); addr++ {
		page, err := d.ReadBlockOffset(ctx, uint8(addr), 0x00, 0xFF)
		if err != nil {
			return pages, err
		}
		pages = append(pages, page)

		if err := d.sleep(ctx, d.cfg.PageDelay); err != nil {
			return pages, err
		}
	}
	return pages, nil
}

// Capacity returns the number of bytes the address range start..end holds
func Capacity(start, end uint8) int {
	if start > end {
		return 0
	}
	return (int(end) - int(start) + 1) * PageSize
}

// WriteBlockRange writes buf across start..end, address-major and
// offset-minor, one byte per transaction, and stops when buf is exhausted.
// Every byte written is logged.
func (d *Device) WriteBlockRange(ctx context.Context, start, end uint8, buf []byte) error {
	if capacity := Capacity(start, end); len(buf) > capacity {
		return fmt.Errorf("%w: %d bytes, range 0x%02X-0x%02X holds %d", ErrBufferTooLarge, len(buf), start, end, capacity)
	}

	count := 0
	for addr := int(start); addr <= int(end) && count < len(buf); addr++ {
		for offset := 0; offset < PageSize && count < len(buf); offset++ {
			v := buf[count]
			if _, err := d.WriteByte(ctx, uint8(addr), uint8(offset), v); err != nil {
				return fmt.Errorf("write 0x%02X/0x%02X: %w", addr, offset, err)
			}
			d.log.Info("wrote byte",
				slog.String("addr", fmt.Sprintf("%#x", addr)),
				slog.String("offset", fmt.Sprintf("%#x", offset)),
				slog.String("data", fmt.Sprintf("%#x", v)))

			if err := d.sleep(ctx, d.cfg.WriteDelay); err != nil {
				return err
			}
			count++
		}
	}
	return nil
}
