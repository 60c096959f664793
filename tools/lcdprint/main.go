// lcdprint writes a message to the LCD panel. Handy when bringing up new
// hardware: it exercises the init sequence, the character encoder and the
// programmable glyphs without starting the radio.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"lcdradio/internal/display"
)

func main() {
	device := flag.String("device", "/dev/lcd", "LCD device node")
	testPattern := flag.Bool("test", false, "show the glyph test pattern instead of a message")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	lcd, err := display.Open(*device, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *device, err)
		os.Exit(1)
	}
	defer lcd.Close()

	text := strings.Join(flag.Args(), " ")
	if *testPattern {
		text = "\x00 \x01 \x02 \x03 \x04\x05\x06\x07ñäöüÆÇç éèà π µ"
	}
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: lcdprint [-device /dev/lcd] message...")
		os.Exit(2)
	}

	b := display.NewTextBuffer()
	b.WriteLines(display.Encode(text), display.Line1, display.NumLines)
	lcd.WriteBuffer(b)
}
