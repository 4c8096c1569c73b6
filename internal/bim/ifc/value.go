// Package ifc reads, edits and writes IFC models in the ISO-10303-21 (STEP physical file)
// encoding.
package ifc

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Value is one STEP attribute value.
type Value interface {
	step() string
}

type (
	String  string
	Enum    string
	Ref     int
	Real    float64
	Integer int64
	Binary  string
	List    []Value
	// Typed is a select value wrapped in its defined type, e.g. IFCLABEL('x').
	Typed struct {
		Type  string
		Value Value
	}
	null    struct{}
	derived struct{}
)

var (
	// Null is the unset attribute `$`.
	Null Value = null{}
	// Derived is the derived attribute `*`.
	Derived Value = derived{}
)

func Bool(b bool) Enum {
	if b {
		return "T"
	}
	return "F"
}

func Label(s string) Typed { return Typed{Type: "IFCLABEL", Value: String(s)} }

func Text(s string) Typed { return Typed{Type: "IFCTEXT", Value: String(s)} }

func RealValue(f float64) Typed { return Typed{Type: "IFCREAL", Value: Real(f)} }

func BooleanValue(b bool) Typed { return Typed{Type: "IFCBOOLEAN", Value: Bool(b)} }

func Refs(ids ...int) List {
	out := make(List, 0, len(ids))
	for _, id := range ids {
		out = append(out, Ref(id))
	}
	return out
}

func (v String) step() string { return "'" + encodeString(string(v)) + "'" }
func (v Enum) step() string { return "." + strings.ToUpper(string(v)) + "." }
func (v Ref) step() string { return "#" + strconv.Itoa(int(v)) }
func (v Real) step() string { return formatReal(float64(v)) }
func (v Integer) step() string { return strconv.FormatInt(int64(v), 10) }
func (v Binary) step() string { return `"` + string(v) + `"` }
func (null) step() string { return "$" }
func (derived) step() string { return "*" }

func (v List) step() string {
	parts := make([]string, 0, len(v))
	for _, item := range v {
		parts = append(parts, stepOf(item))
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (v Typed) step() string {
	return strings.ToUpper(v.Type) + "(" + stepOf(v.Value) + ")"
}

func stepOf(v Value) string {
	if v == nil {
		return "$"
	}
	return v.step()
}

// formatReal always emits a decimal point, as STEP requires for REAL.
func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'G', -1, 64)
	if strings.ContainsAny(s, ".") {
		return s
	}
	if i := strings.IndexByte(s, 'E'); i >= 0 {
		return s[:i] + "." + s[i:]
	}
	return s + "."
}

// AsString unwraps String and Typed string values.
func AsString(v Value) (string, bool) {
	switch t := v.(type) {
	case String:
		return string(t), true
	case Typed:
		return AsString(t.Value)
	default:
		return "", false
	}
}

func AsRef(v Value) (int, bool) {
	r, ok := v.(Ref)
	return int(r), ok
}

// encodeString escapes quotes and backslashes and encodes non-ASCII runes with \X2\ / \X4\.
func encodeString(s string) string {
	var sb strings.Builder
	var wide []rune
	flush := func() {
		if len(wide) == 0 {
			return
		}
		bmp := true
		for _, r := range wide {
			if r > 0xFFFF {
				bmp = false
				break
			}
		}
		if bmp {
			sb.WriteString(`\X2\`)
			for _, u := range utf16.Encode(wide) {
				sb.WriteString(fmt.Sprintf("%04X", u))
			}
		} else {
			sb.WriteString(`\X4\`)
			for _, r := range wide {
				sb.WriteString(fmt.Sprintf("%08X", r))
			}
		}
		sb.WriteString(`\X0\`)
		wide = wide[:0]
	}
	for _, r := range s {
		if r >= 0x20 && r < 0x7F {
			flush()
			switch r {
			case '\'':
				sb.WriteString("''")
			case '\\':
				sb.WriteString(`\\`)
			default:
				sb.WriteRune(r)
			}
			continue
		}
		wide = append(wide, r)
	}
	flush()
	return sb.String()
}

// decodeString reverses encodeString and also understands \X\HH and \S\c.
func decodeString(s string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c == '\'' && i+1 < len(s) && s[i+1] == '\'' {
			sb.WriteByte('\'')
			i += 2
			continue
		}
		if c != '\\' {
			sb.WriteByte(c)
			i++
			continue
		}
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, `\\`):
			sb.WriteByte('\\')
			i += 2
		case strings.HasPrefix(rest, `\X2\`), strings.HasPrefix(rest, `\X4\`):
			width := 4
			if rest[2] == '4' {
				width = 8
			}
			end := strings.Index(rest[4:], `\X0\`)
			if end < 0 {
				return "", fmt.Errorf("unterminated %s escape", rest[:4])
			}
			hex := rest[4 : 4+end]
			if len(hex)%width != 0 {
				return "", fmt.Errorf("bad %s escape length", rest[:4])
			}
			var units []uint16
			for j := 0; j < len(hex); j += width {
				n, err := strconv.ParseUint(hex[j:j+width], 16, 32)
				if err != nil {
					return "", fmt.Errorf("bad %s escape: %w", rest[:4], err)
				}
				if width == 8 {
					sb.WriteRune(rune(n))
				} else {
					units = append(units, uint16(n))
				}
			}
			if len(units) > 0 {
				sb.WriteString(string(utf16.Decode(units)))
			}
			i += 4 + end + 4
		case strings.HasPrefix(rest, `\X\`) && len(rest) >= 5:
			n, err := strconv.ParseUint(rest[3:5], 16, 8)
			if err != nil {
				return "", fmt.Errorf("bad \\X\\ escape: %w", err)
			}
			sb.WriteRune(rune(n))
			i += 5
		case strings.HasPrefix(rest, `\S\`) && len(rest) >= 4:
			sb.WriteRune(rune(rest[3]) + 128)
			i += 4
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}
