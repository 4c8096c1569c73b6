package ifc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Open parses the IFC file at path.
func Open(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ifc: %w", err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse ifc %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Parse reads an ISO-10303-21 document.
func Parse(r io.Reader) (*Model, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	stmts, err := splitStatements(string(raw))
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 || stmts[0] != "ISO-10303-21" {
		return nil, fmt.Errorf("missing ISO-10303-21 preamble")
	}

	m := newEmptyModel()
	section := ""
	sawEnd := false
	for _, st := range stmts[1:] {
		switch st {
		case "HEADER", "DATA":
			section = st
			continue
		case "ENDSEC":
			section = ""
			continue
		case "END-ISO-10303-21":
			sawEnd = true
			continue
		}
		switch section {
		case "HEADER":
			m.header = append(m.header, st)
			if strings.HasPrefix(strings.ToUpper(st), "FILE_SCHEMA") {
				m.Schema = schemaName(st)
			}
		case "DATA":
			e, err := parseInstance(st)
			if err != nil {
				return nil, err
			}
			if _, dup := m.byID[e.ID]; dup {
				return nil, fmt.Errorf("duplicate instance #%d", e.ID)
			}
			m.insert(e)
		default:
			return nil, fmt.Errorf("statement outside a section: %.40s", st)
		}
	}
	if !sawEnd {
		return nil, fmt.Errorf("missing END-ISO-10303-21")
	}
	return m, nil
}

func schemaName(stmt string) string {
	start := strings.IndexByte(stmt, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(stmt[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return stmt[start+1 : start+1+end]
}

// splitStatements strips comments and splits on ';' outside string literals. Whitespace
// outside strings is dropped.
func splitStatements(src string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString {
			cur.WriteByte(c)
			if c == '\'' {
				if i+1 < len(src) && src[i+1] == '\'' {
					cur.WriteByte('\'')
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated comment")
			}
			i += end + 3
		case c == '\'':
			inString = true
			cur.WriteByte(c)
		case c == ';':
			if s := cur.String(); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
		default:
			cur.WriteByte(c)
		}
	}
	if inString {
		return nil, fmt.Errorf("unterminated string literal")
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		return nil, fmt.Errorf("trailing content without ';': %.40s", s)
	}
	return out, nil
}

func parseInstance(stmt string) (*Entity, error) {
	eq := strings.IndexByte(stmt, '=')
	if !strings.HasPrefix(stmt, "#") || eq < 0 {
		return nil, fmt.Errorf("bad instance: %.40s", stmt)
	}
	id, err := strconv.Atoi(stmt[1:eq])
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("bad instance id: %.40s", stmt)
	}
	body := stmt[eq+1:]
	if strings.HasPrefix(body, "(") {
		// complex instance: kept verbatim
		return &Entity{ID: id, Raw: body}, nil
	}
	open := strings.IndexByte(body, '(')
	if open <= 0 || !strings.HasSuffix(body, ")") {
		return nil, fmt.Errorf("bad instance #%d", id)
	}
	p := &valueParser{src: body[open:]}
	list, err := p.list()
	if err != nil {
		return nil, fmt.Errorf("instance #%d: %w", id, err)
	}
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("instance #%d: trailing content", id)
	}
	return &Entity{ID: id, Type: strings.ToUpper(body[:open]), Params: list}, nil
}

type valueParser struct {
	src string
	pos int
}

func (p *valueParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *valueParser) list() (List, error) {
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' at %d", p.pos)
	}
	p.pos++
	out := List{}
	if p.peek() == ')' {
		p.pos++
		return out, nil
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return out, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')' at %d", p.pos)
		}
	}
}

func (p *valueParser) value() (Value, error) {
	c := p.peek()
	switch {
	case c == '$':
		p.pos++
		return Null, nil
	case c == '*':
		p.pos++
		return Derived, nil
	case c == '(':
		return p.list()
	case c == '#':
		start := p.pos + 1
		p.pos++
		for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		id, err := strconv.Atoi(p.src[start:p.pos])
		if err != nil {
			return nil, fmt.Errorf("bad reference at %d", start)
		}
		return Ref(id), nil
	case c == '\'':
		return p.str()
	case c == '"':
		end := strings.IndexByte(p.src[p.pos+1:], '"')
		if end < 0 {
			return nil, fmt.Errorf("unterminated binary at %d", p.pos)
		}
		v := Binary(p.src[p.pos+1 : p.pos+1+end])
		p.pos += end + 2
		return v, nil
	case c == '.':
		end := strings.IndexByte(p.src[p.pos+1:], '.')
		if end < 0 {
			return nil, fmt.Errorf("unterminated enumeration at %d", p.pos)
		}
		v := Enum(p.src[p.pos+1 : p.pos+1+end])
		p.pos += end + 2
		return v, nil
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.number()
	case c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z':
		start := p.pos
		for p.pos < len(p.src) && isIdent(p.src[p.pos]) {
			p.pos++
		}
		typ := strings.ToUpper(p.src[start:p.pos])
		inner, err := p.list()
		if err != nil {
			return nil, err
		}
		if len(inner) != 1 {
			return nil, fmt.Errorf("typed value %s takes one parameter", typ)
		}
		return Typed{Type: typ, Value: inner[0]}, nil
	default:
		return nil, fmt.Errorf("unexpected %q at %d", c, p.pos)
	}
}

func (p *valueParser) str() (Value, error) {
	start := p.pos + 1
	i := start
	for i < len(p.src) {
		if p.src[i] == '\'' {
			if i+1 < len(p.src) && p.src[i+1] == '\'' {
				i += 2
				continue
			}
			break
		}
		i++
	}
	if i >= len(p.src) {
		return nil, fmt.Errorf("unterminated string at %d", p.pos)
	}
	s, err := decodeString(p.src[start:i])
	if err != nil {
		return nil, err
	}
	p.pos = i + 1
	return String(s), nil
}

func (p *valueParser) number() (Value, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	isReal := false
scan:
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c >= '0' && c <= '9':
		case c == '.' || c == 'E' || c == 'e':
			isReal = true
		case (c == '-' || c == '+') && (p.src[p.pos-1] == 'E' || p.src[p.pos-1] == 'e'):
		default:
			break scan
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if isReal {
		// "1." and "1.E5" are valid STEP reals
		f, err := strconv.ParseFloat(strings.Replace(lit, ".E", ".0E", 1), 64)
		if err != nil {
			return nil, fmt.Errorf("bad real %q", lit)
		}
		return Real(f), nil
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad integer %q", lit)
	}
	return Integer(n), nil
}

func isIdent(c byte) bool {
	return c == '_' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// Write serialises the model as an ISO-10303-21 document.
func (m *Model) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("ISO-10303-21;\nHEADER;\n")
	for _, h := range m.header {
		bw.WriteString(h)
		bw.WriteString(";\n")
	}
	bw.WriteString("ENDSEC;\nDATA;\n")
	for _, e := range m.entities {
		bw.WriteString("#")
		bw.WriteString(strconv.Itoa(e.ID))
		bw.WriteString("=")
		if e.Raw != "" {
			bw.WriteString(e.Raw)
		} else {
			bw.WriteString(e.Type)
			bw.WriteString(List(e.Params).step())
		}
		bw.WriteString(";\n")
	}
	bw.WriteString("ENDSEC;\nEND-ISO-10303-21;\n")
	return bw.Flush()
}

// WriteFile writes the model to path through a temporary file in the same directory.
func (m *Model) WriteFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ifc-*")
	if err != nil {
		return fmt.Errorf("write ifc: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := m.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write ifc: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write ifc: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write ifc: %w", err)
	}
	return nil
}
