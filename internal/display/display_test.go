package display

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeASCIIPassThrough(t *testing.T) {
	assert.Equal(t, []byte("Radio 4 Extra"), Encode("Radio 4 Extra"))
}

func TestEncodeGlyphTable(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"é", []byte{5}},
		{"è", []byte{6}},
		{"à", []byte{7}},
		{"ä", []byte{0xE1}},
		{"ñ", []byte{0xEE}},
		{"ö", []byte{0xEF}},
		{"ü", []byte{0xF5}},
		{"π", []byte{0xE4}},
		{"µ", []byte{0xF7}},
		{"~", []byte{0xF3}},
		{"\n", []byte{0xCD}},
		{"\r", []byte{0xCF}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Encode(tc.in), "encoding %q", tc.in)
	}
}

func TestEncodeTransliteratesUnknownRunes(t *testing.T) {
	assert.Equal(t, []byte("Dvorak"), Encode("Dvořák"))
	assert.Equal(t, []byte("Skoda"), Encode("Škoda"))
}

func TestEncodeIdempotent(t *testing.T) {
	for _, text := range []string{"plain", "café", "La Première", "A~B\nC"} {
		once := Encode(text)
		twice := Encode(string(once))
		assert.Equal(t, once, twice, "re-encoding %q", text)
	}
}

func TestScrollShortTextNeverMoves(t *testing.T) {
	params := ScrollParams{MinScroll: 6, MaxScroll: 14, Period: time.Millisecond}
	s := NewScrollLine("short", 1)
	for i := 0; i < 5; i++ {
		s.Tick(time.Now().Add(time.Hour), params, CharsPerLine)
	}
	assert.Equal(t, 0, s.Offset())
}

func TestScrollAdvancesToSpaceAndWraps(t *testing.T) {
	params := ScrollParams{MinScroll: 6, MaxScroll: 14, Period: time.Second}
	// A space at byte 8 sits inside the [6,14) window.
	text := "abcdefgh ijklmnopqrstuvwxyz0123456789"
	s := NewScrollLine(text, 1)

	now := time.Now()
	s.Tick(now.Add(2*time.Second), params, CharsPerLine)
	assert.Equal(t, 8, s.Offset())

	// Before the period has elapsed again, nothing moves.
	s.Tick(now.Add(2*time.Second+time.Millisecond), params, CharsPerLine)
	assert.Equal(t, 8, s.Offset())
}

func TestScrollNoSpaceUsesMinScroll(t *testing.T) {
	params := ScrollParams{MinScroll: 6, MaxScroll: 14, Period: time.Second}
	s := NewScrollLine(strings.Repeat("x", 40), 1)
	s.Tick(time.Now().Add(2*time.Second), params, CharsPerLine)
	assert.Equal(t, 6, s.Offset())
}

func TestScrollVisitsAndReturnsToZero(t *testing.T) {
	params := ScrollParams{MinScroll: 6, MaxScroll: 14, Period: time.Second}
	s := NewScrollLine(strings.Repeat("y", 47), 1)

	now := time.Now()
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		now = now.Add(2 * time.Second)
		s.Tick(now, params, CharsPerLine)
		if seen[s.Offset()] && s.Offset() == 0 {
			return // wrapped back around
		}
		seen[s.Offset()] = true
	}
	t.Fatal("scroll never returned to offset 0")
}

func TestScrollUpdateIfChanged(t *testing.T) {
	params := ScrollParams{MinScroll: 6, MaxScroll: 14, Period: time.Second}
	s := NewScrollLine(strings.Repeat("z", 40), 1)
	s.Tick(time.Now().Add(2*time.Second), params, CharsPerLine)
	require.NotEqual(t, 0, s.Offset())

	// Same text re-encoded: scroll state survives.
	s.UpdateIfChanged(strings.Repeat("z", 40))
	assert.NotEqual(t, 0, s.Offset())

	// New text: scroll state resets.
	s.UpdateIfChanged("different")
	assert.Equal(t, 0, s.Offset())
	assert.Equal(t, []byte("different"), s.Bytes())
}

func TestTextBufferLayout(t *testing.T) {
	b := NewTextBuffer()
	b.WriteLine([]byte("hello"), Line2)
	b.SetCell(Line4, 19, '!')

	line2 := b.LineBytes(Line2)
	assert.Equal(t, byte('h'), line2[0])
	assert.Equal(t, byte(' '), line2[5])
	assert.Equal(t, byte('!'), b.LineBytes(Line4)[19])

	// Writes never spill past their window.
	b.Clear()
	b.WriteBytes([]byte(strings.Repeat("A", 30)), 70, 30)
	assert.Equal(t, byte('A'), b.LineBytes(Line4)[19])
	assert.Equal(t, byte(' '), b.LineBytes(Line4)[9])
}

func TestTextBufferIgnoresOutOfRange(t *testing.T) {
	b := NewTextBuffer()
	b.SetCell(Line1, 20, 'x')
	b.SetCell(Line1, -1, 'x')
	b.WriteBytes([]byte("x"), CharsPerScreen, 1)
	assert.NotContains(t, b.String(), "x")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeviceInitSequence(t *testing.T) {
	var out bytes.Buffer
	_, err := NewDevice(&out, testLogger())
	require.NoError(t, err)

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "\x1b[LI\x1b[Lb\x1b[Lc"))
	assert.Contains(t, s, "\x1b[LG0101010101010101f;")
	assert.Contains(t, s, "\x1b[LG1080808080808081f;")
	assert.Contains(t, s, "\x1b[LG4010101010101011f;")
	// All eight glyphs are programmed.
	assert.Equal(t, 8, strings.Count(s, "\x1b[LG"))
}

func TestDeviceWriteBuffer(t *testing.T) {
	var out bytes.Buffer
	d, err := NewDevice(&out, testLogger())
	require.NoError(t, err)
	out.Reset()

	b := NewTextBuffer()
	b.WriteLine([]byte("line one"), Line1)
	d.WriteBuffer(b)

	s := out.String()
	assert.Contains(t, s, "\x1b[Lx0y0;line one")
	assert.Contains(t, s, "\x1b[Lx0y3;")
	// Each emitted line carries exactly 20 content bytes.
	parts := strings.Split(s, ";")
	require.Len(t, parts, 5)
	for _, p := range parts[1:4] {
		assert.Equal(t, CharsPerLine+len("\x1b[Lx0y0"), len(p), "segment %q", p)
	}
	assert.Equal(t, CharsPerLine, len(parts[4]))
}
