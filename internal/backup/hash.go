// Package backup sends a copy of the store file to the configured backup
// destination when its content changed since the last delivery.
package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/maruel/jsondb/internal/docstore"
)

// ContentHash returns the SHA-256 hex digest of the canonical encoding of doc.
//
// The canonical encoding is the one Python's json.dumps(doc, sort_keys=True)
// produces: sorted keys, ", " and ": " separators, non-ASCII escaped as \uXXXX.
// Hashes stored by earlier Python deployments therefore stay valid.
func ContentHash(doc docstore.Document) (string, error) {
	b, err := canonicalJSON(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(t))
	case string:
		writeASCIIString(buf, t)
	case json.Number:
		s, err := pyNumber(t)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeASCIIString(buf, k)
			buf.WriteString(": ")
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		// Bring other Go values to the decoded JSON representation first.
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		d := json.NewDecoder(bytes.NewReader(raw))
		d.UseNumber()
		var out any
		if err := d.Decode(&out); err != nil {
			return err
		}
		return writeCanonical(buf, out)
	}
	return nil
}

// pyNumber formats n the way Python prints the int or float it parses to.
func pyNumber(n json.Number) (string, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if s == "-0" {
			return "0", nil
		}
		return s, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return "", fmt.Errorf("invalid number %q", s)
	}
	// Python's float repr: shortest round-trip digits, positional notation
	// for exponents in [-4, 16).
	exp := 0
	if f != 0 {
		e := strconv.FormatFloat(f, 'e', -1, 64)
		exp, _ = strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	}
	if exp < -4 || exp >= 16 {
		return strconv.FormatFloat(f, 'e', -1, 64), nil
	}
	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out, nil
}

// writeASCIIString quotes s with every byte outside printable ASCII escaped.
func writeASCIIString(buf *bytes.Buffer, s string) {
	const hexDigits = "0123456789abcdef"
	u4 := func(r rune) {
		buf.WriteString(`\u`)
		buf.WriteByte(hexDigits[r>>12&0xf])
		buf.WriteByte(hexDigits[r>>8&0xf])
		buf.WriteByte(hexDigits[r>>4&0xf])
		buf.WriteByte(hexDigits[r&0xf])
	}
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r < 0x7f:
				buf.WriteRune(r)
			case r > 0xffff:
				r -= 0x10000
				u4(0xd800 | (r >> 10 & 0x3ff))
				u4(0xdc00 | (r & 0x3ff))
			default:
				u4(r)
			}
		}
	}
	buf.WriteByte('"')
}
