package stream

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Decode renders data as a string according to the encoding hint. The empty
// hint and "buffer" mean UTF-8 with invalid sequences replaced. Besides the
// short names below, any WHATWG encoding label is accepted. Unknown hints
// return a *DecodeError.
func Decode(data []byte, hint string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(hint))
	switch name {
	case "", "buffer", "utf8", "utf-8":
		return decodeWith(unicode.UTF8, hint, data)
	case "hex":
		return hex.EncodeToString(data), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(data), nil
	case "base64url":
		return base64.RawURLEncoding.EncodeToString(data), nil
	case "latin1", "binary":
		return decodeWith(charmap.ISO8859_1, hint, data)
	case "ascii":
		out := make([]byte, len(data))
		for i, b := range data {
			out[i] = b & 0x7f
		}
		return string(out), nil
	case "utf16le", "utf-16le", "ucs2", "ucs-2":
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), hint, data)
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", &DecodeError{Encoding: hint, Err: err}
	}
	return decodeWith(enc, hint, data)
}

func decodeWith(enc encoding.Encoding, hint string, data []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", &DecodeError{Encoding: hint, Err: err}
	}
	return string(out), nil
}
