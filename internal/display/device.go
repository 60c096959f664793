package display

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// glyphBitmaps programs the eight user-defined characters at init. Slots 0
// through 4 are the buffering cursor columns, one column lit per slot over a
// full bottom row; slots 5 through 7 are the accented letters of Encode.
var glyphBitmaps = [8][8]byte{
	{0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x10, 0x1f},
	{0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x1f},
	{0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x04, 0x1f},
	{0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x1f},
	{0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x1f},
	{0x02, 0x04, 0x0e, 0x11, 0x1f, 0x10, 0x0e, 0x00}, // é
	{0x08, 0x04, 0x0e, 0x11, 0x1f, 0x10, 0x0e, 0x00}, // è
	{0x08, 0x04, 0x0e, 0x01, 0x0f, 0x11, 0x0f, 0x00}, // à
}

// BufferCursorGlyph returns the programmable glyph byte showing a cursor in
// column fifth (0 to 4) of a cell.
func BufferCursorGlyph(fifth int) byte {
	if fifth < 0 {
		fifth = 0
	}
	if fifth > 4 {
		fifth = 4
	}
	return byte(fifth)
}

// Device drives the character LCD through its write-only escape protocol.
type Device struct {
	w      io.Writer
	closer io.Closer
	log    *slog.Logger
}

// Open opens the LCD device node and initialises the panel. Opening fails
// with EACCES when not running as root and EBUSY when another instance holds
// the device.
func Open(path string, log *slog.Logger) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open lcd %s: %w", path, err)
	}
	d := &Device{w: f, closer: f, log: log}
	if err := d.init(); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// NewDevice wraps an arbitrary writer, for tests.
func NewDevice(w io.Writer, log *slog.Logger) (*Device, error) {
	d := &Device{w: w, log: log}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

// init clears the panel, disables blink and cursor, and programs the eight
// user-defined glyphs. Init may have wiped the character generator, so the
// glyphs are always rewritten.
func (d *Device) init() error {
	if _, err := io.WriteString(d.w, "\x1b[LI\x1b[Lb\x1b[Lc"); err != nil {
		return fmt.Errorf("initialise lcd: %w", err)
	}
	for n, bitmap := range glyphBitmaps {
		cmd := fmt.Sprintf("\x1b[LG%01x", n)
		for _, row := range bitmap {
			cmd += fmt.Sprintf("%02x", row)
		}
		cmd += ";"
		if _, err := io.WriteString(d.w, cmd); err != nil {
			return fmt.Errorf("program glyph %d: %w", n, err)
		}
	}
	return nil
}

// WriteBuffer emits the whole screen image: for each line a cursor-position
// escape followed by the 20 raw cell bytes.
func (d *Device) WriteBuffer(b *TextBuffer) {
	for line := Line1; line <= Line4; line++ {
		if _, err := fmt.Fprintf(d.w, "\x1b[Lx0y%d;", int(line)); err != nil {
			d.log.Error("lcd cursor write failed", "line", int(line), "error", err)
			return
		}
		if _, err := d.w.Write(b.LineBytes(line)); err != nil {
			d.log.Error("lcd line write failed", "line", int(line), "error", err)
			return
		}
	}
}

// Close releases the device node.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
