package tdbf

import (
	"bytes"
	"io"
	"unicode/utf8"

	"github.com/axgle/mahonia"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// EncodingConverter translates between the file encoding selected by the
// language driver byte and UTF-8. Conversion applies to C field values and
// to the bodies of text memos (M and G).
type EncodingConverter interface {
	Decode(in []byte) ([]byte, error)
	Encode(in []byte) ([]byte, error)
	Code() byte
}

// DefaultConverter converts through a golang.org/x/text encoding.
type DefaultConverter struct {
	encoding encoding.Encoding
	code     byte
}

func NewDefaultConverter(enc encoding.Encoding, code byte) DefaultConverter {
	return DefaultConverter{encoding: enc, code: code}
}

// Decode converts a byte slice in the file encoding to a UTF-8 byte slice.
func (c DefaultConverter) Decode(in []byte) ([]byte, error) {
	if utf8.Valid(in) {
		return in, nil
	}
	r := transform.NewReader(bytes.NewReader(in), c.encoding.NewDecoder())
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newError("tdbf-encoding-decode-1", err)
	}
	return data, nil
}

// Encode converts a UTF-8 byte slice to the file encoding.
func (c DefaultConverter) Encode(in []byte) ([]byte, error) {
	r := transform.NewReader(bytes.NewReader(in), c.encoding.NewEncoder())
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newError("tdbf-encoding-encode-1", err)
	}
	return data, nil
}

// Code returns the language driver byte of the converter.
func (c DefaultConverter) Code() byte {
	return c.code
}

// mahoniaConverter serves the code pages golang.org/x/text carries no table
// for. Conversion through mahonia is name keyed.
type mahoniaConverter struct {
	decoder mahonia.Decoder
	encoder mahonia.Encoder
	code    byte
}

func (c mahoniaConverter) Decode(in []byte) ([]byte, error) {
	if utf8.Valid(in) {
		return in, nil
	}
	return []byte(c.decoder.ConvertString(string(in))), nil
}

func (c mahoniaConverter) Encode(in []byte) ([]byte, error) {
	return []byte(c.encoder.ConvertString(string(in))), nil
}

func (c mahoniaConverter) Code() byte {
	return c.code
}

// Language driver bytes resolved through golang.org/x/text.
var codePages = map[byte]encoding.Encoding{
	0x01: charmap.CodePage437,       // U.S. MS-DOS
	0x02: charmap.CodePage850,       // International MS-DOS
	0x03: charmap.Windows1252,       // Windows ANSI
	0x04: charmap.Macintosh,         // Standard Macintosh
	0x64: charmap.CodePage852,       // Eastern European MS-DOS
	0x65: charmap.CodePage865,       // Nordic MS-DOS
	0x66: charmap.CodePage866,       // Russian MS-DOS
	0x78: traditionalchinese.Big5,   // Chinese Windows (Taiwan, Hong Kong)
	0x7A: simplifiedchinese.GBK,     // Chinese Windows (PRC)
	0x7D: charmap.Windows1255,       // Hebrew Windows
	0x7E: charmap.Windows1256,       // Arabic Windows
	0x8B: japanese.ShiftJIS,         // Japanese Windows
	0x96: charmap.MacintoshCyrillic, // Russian Macintosh
	0xC8: charmap.Windows1250,       // Central European Windows
	0xC9: charmap.Windows1251,       // Russian Windows
	0xCA: charmap.Windows1254,       // Turkish Windows
	0xCB: charmap.Windows1253,       // Greek Windows
}

// Language driver bytes with no x/text table, resolved through mahonia.
var mahoniaPages = map[byte]string{
	0x67: "cp861",     // Icelandic MS-DOS
	0x68: "cp895",     // Kamenicky Czech MS-DOS
	0x69: "cp790",     // Mazovia Polish MS-DOS
	0x6A: "cp737",     // Greek MS-DOS
	0x6B: "cp857",     // Turkish MS-DOS
	0x98: "mac-greek", // Greek Macintosh
}

// ConverterFromCode returns the converter for a language driver byte or nil
// when the code page is not recognized. A nil converter leaves values in
// the system default encoding.
func ConverterFromCode(code byte) EncodingConverter {
	if enc, ok := codePages[code]; ok {
		return NewDefaultConverter(enc, code)
	}
	if name, ok := mahoniaPages[code]; ok {
		decoder := mahonia.NewDecoder(name)
		encoder := mahonia.NewEncoder(name)
		if decoder == nil || encoder == nil {
			debugf("Charset %s for code page 0x%02x not available, keeping system default", name, code)
			return nil
		}
		return mahoniaConverter{decoder: decoder, encoder: encoder, code: code}
	}
	return nil
}
