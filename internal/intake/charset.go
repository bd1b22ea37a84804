package intake

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// charsetDecoder converts uploaded byte streams from a configured charset
// to UTF-8 before they reach the CSV reader.
type charsetDecoder struct {
	enc encoding.Encoding
}

// newCharsetDecoder resolves a charset name. UTF-8 (or empty) means no
// conversion at all.
func newCharsetDecoder(name string) (*charsetDecoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return &charsetDecoder{}, nil
	case "latin-1", "latin1", "iso-8859-1":
		return &charsetDecoder{enc: charmap.ISO8859_1}, nil
	case "windows-1252", "cp1252":
		return &charsetDecoder{enc: charmap.Windows1252}, nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
}

// Reader wraps r with a decoding transform, or returns it unchanged for
// UTF-8 input.
func (d *charsetDecoder) Reader(r io.Reader) io.Reader {
	if d.enc == nil {
		return r
	}
	return transform.NewReader(r, d.enc.NewDecoder())
}
