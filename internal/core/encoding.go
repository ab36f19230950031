package core

// encoding.go resolves the character encoding of a source file.
//
// Candidates are tried in a fixed order and the first one that decodes the
// whole file wins:
//
//  1. utf-8-sig     BOM stripped when present, remainder must be valid UTF-8
//  2. utf-8         plain validation
//  3. latin-1       ISO-8859-1, rejected if the text holds C1 control bytes
//  4. windows-1252  rejected if the text holds bytes cp1252 leaves undefined
//
// Latin-1 maps every byte to a code point, so without the C1 rule it would
// shadow windows-1252 completely and turn curly quotes and dashes into
// invisible control characters. When windows-1252 rejects the file too, the
// resolver falls back to a lenient latin-1 decode that keeps C1 bytes, so a
// stray control byte never costs the whole file.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

var (
	errInvalidUTF8     = errors.New("invalid utf-8 sequence")
	errC1Control       = errors.New("c1 control byte")
	errUndefinedCP1252 = errors.New("byte undefined in windows-1252")
)

// Decoded is a file's contents converted to UTF-8.
type Decoded struct {
	Path     string
	Encoding string
	Text     []byte
}

// Reader returns a reader over the decoded text.
func (d *Decoded) Reader() io.Reader {
	return bytes.NewReader(d.Text)
}

type encodingCandidate struct {
	name   string
	decode func(data []byte) ([]byte, error)
}

// EncodingResolver opens text files trying an ordered list of encodings.
type EncodingResolver struct {
	candidates []encodingCandidate
	fallback   *encodingCandidate
	readFile   func(name string) ([]byte, error)
}

// NewEncodingResolver returns a resolver with the standard candidate order.
// readFile may be nil to use os.ReadFile.
func NewEncodingResolver(readFile func(string) ([]byte, error)) *EncodingResolver {
	if readFile == nil {
		readFile = os.ReadFile
	}
	return &EncodingResolver{
		readFile: readFile,
		candidates: []encodingCandidate{
			{name: "utf-8-sig", decode: decodeUTF8Sig},
			{name: "utf-8", decode: decodeUTF8},
			{name: "latin-1", decode: decodeLatin1},
			{name: "windows-1252", decode: decodeWindows1252},
		},
		fallback: &encodingCandidate{name: "latin-1", decode: decodeLatin1Lenient},
	}
}

// Encodings returns the candidate names in priority order.
func (r *EncodingResolver) Encodings() []string {
	names := make([]string, len(r.candidates))
	for i, c := range r.candidates {
		names[i] = c.name
	}
	return names
}

// Resolve reads path and decodes it. Read errors are returned as-is
// (wrapped); a file no candidate can decode yields a *DecodeError.
func (r *EncodingResolver) Resolve(path string) (*Decoded, error) {
	data, err := r.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return r.Decode(path, data)
}

// Decode converts data using the first candidate that accepts all of it.
func (r *EncodingResolver) Decode(path string, data []byte) (*Decoded, error) {
	for _, c := range r.candidates {
		text, err := c.decode(data)
		if err != nil {
			continue
		}
		return &Decoded{Path: path, Encoding: c.name, Text: text}, nil
	}
	if r.fallback != nil {
		if text, err := r.fallback.decode(data); err == nil {
			return &Decoded{Path: path, Encoding: r.fallback.name, Text: text}, nil
		}
	}
	return nil, &DecodeError{Path: path, Tried: r.Encodings()}
}

func decodeUTF8Sig(data []byte) ([]byte, error) {
	if !utf8.Valid(bytes.TrimPrefix(data, bomUTF8)) {
		return nil, errInvalidUTF8
	}
	// UTF8BOM strips a leading BOM and passes everything else through.
	return unicode.UTF8BOM.NewDecoder().Bytes(data)
}

func decodeUTF8(data []byte) ([]byte, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	return data, nil
}

func decodeLatin1(data []byte) ([]byte, error) {
	for _, b := range data {
		if b >= 0x80 && b <= 0x9F {
			return nil, errC1Control
		}
	}
	return decodeLatin1Lenient(data)
}

func decodeLatin1Lenient(data []byte) ([]byte, error) {
	return charmap.ISO8859_1.NewDecoder().Bytes(data)
}

func decodeWindows1252(data []byte) ([]byte, error) {
	for _, b := range data {
		switch b {
		case 0x81, 0x8D, 0x8F, 0x90, 0x9D:
			return nil, errUndefinedCP1252
		}
	}
	return charmap.Windows1252.NewDecoder().Bytes(data)
}
