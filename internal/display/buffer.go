// Package display owns the 20x4 character LCD: text encoding into the
// panel's code page, line scrolling, the 80-cell screen buffer and the
// escape-code device protocol.
package display

// The panel is 20 characters by 4 lines.
const (
	CharsPerLine   = 20
	NumLines       = 4
	CharsPerScreen = CharsPerLine * NumLines

	// VolumeChars cells at the right of line 1 are reserved for the volume
	// (or whatever momentarily replaces it).
	VolumeChars    = 7
	Line1DataChars = CharsPerLine - VolumeChars
)

// Line identifies one of the four LCD lines.
type Line int

const (
	Line1 Line = iota
	Line2
	Line3
	Line4
)

// TextBuffer is the 80-cell screen image. There must be exactly one per
// device so there is a single version of the truth.
type TextBuffer struct {
	cells [CharsPerScreen]byte
}

// NewTextBuffer returns a buffer full of spaces.
func NewTextBuffer() *TextBuffer {
	b := &TextBuffer{}
	b.Clear()
	return b
}

// Clear resets every cell to a space.
func (b *TextBuffer) Clear() {
	for i := range b.cells {
		b.cells[i] = ' '
	}
}

// WriteBytes copies up to count bytes from text into the buffer starting at
// start. Writes past the end of the buffer are dropped.
func (b *TextBuffer) WriteBytes(text []byte, start, count int) {
	if start < 0 || start >= CharsPerScreen {
		return
	}
	end := start + count
	if end > CharsPerScreen {
		end = CharsPerScreen
	}
	for i := start; i < end && i-start < len(text); i++ {
		b.cells[i] = text[i-start]
	}
}

// WriteLines copies text into lineCount full lines starting at line.
func (b *TextBuffer) WriteLines(text []byte, line Line, lineCount int) {
	b.WriteBytes(text, int(line)*CharsPerLine, lineCount*CharsPerLine)
}

// WriteLine copies text into a single line.
func (b *TextBuffer) WriteLine(text []byte, line Line) {
	b.WriteLines(text, line, 1)
}

// SetCell writes one byte at (line, column). Out-of-range columns are
// ignored.
func (b *TextBuffer) SetCell(line Line, column int, c byte) {
	if column < 0 || column >= CharsPerLine {
		return
	}
	b.cells[int(line)*CharsPerLine+column] = c
}

// LineBytes returns a copy of the 20 cells of one line.
func (b *TextBuffer) LineBytes(line Line) []byte {
	start := int(line) * CharsPerLine
	out := make([]byte, CharsPerLine)
	copy(out, b.cells[start:start+CharsPerLine])
	return out
}

// String renders the buffer for logs and tests, one row per line, with
// non-ASCII cells shown as \xNN.
func (b *TextBuffer) String() string {
	var out []byte
	for line := 0; line < NumLines; line++ {
		if line > 0 {
			out = append(out, '\n')
		}
		for _, c := range b.cells[line*CharsPerLine : (line+1)*CharsPerLine] {
			if c >= 0x20 && c < 0x7f {
				out = append(out, c)
			} else {
				out = append(out, []byte(hexCell(c))...)
			}
		}
	}
	return string(out)
}

const hexDigits = "0123456789abcdef"

func hexCell(c byte) string {
	return string([]byte{'\\', 'x', hexDigits[c>>4], hexDigits[c&0xf]})
}
