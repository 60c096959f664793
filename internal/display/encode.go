package display

import "github.com/mozillazg/go-unidecode"

// Glyph indices for the accented characters programmed into the panel's
// character generator at init time. Indices 0 through 4 hold the buffering
// cursor columns.
const (
	glyphEAcute = 5
	glyphEGrave = 6
	glyphAGrave = 7
)

// Encode converts text to the panel's code page. Printable ASCII below '~'
// passes through, a small set of accented and symbolic characters map to the
// programmable glyphs and the ROM table (GDM2004D page 9), and anything else
// is transliterated to ASCII.
func Encode(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r < '~' && r != '\n' && r != '\r' {
			out = append(out, byte(r))
			continue
		}
		switch r {
		case 'é':
			out = append(out, glyphEAcute)
		case 'è':
			out = append(out, glyphEGrave)
		case 'à':
			out = append(out, glyphAGrave)
		case 'ä':
			out = append(out, 0xE1)
		case 'ñ':
			out = append(out, 0xEE)
		case 'ö':
			out = append(out, 0xEF)
		case 'ü':
			out = append(out, 0xF5)
		case 'π':
			out = append(out, 0xE4)
		case 'µ':
			out = append(out, 0xF7)
		case '~':
			out = append(out, 0xF3)
		case 0x80:
			out = append(out, 0xFF)
		case '\n':
			out = append(out, 0xCD)
		case '\r':
			out = append(out, 0xCF)
		default:
			out = append(out, []byte(unidecode.Unidecode(string(r)))...)
		}
	}
	return out
}
