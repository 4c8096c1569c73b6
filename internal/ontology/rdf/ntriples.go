package rdf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseNTriples reads an N-Triples document into a new graph. Comments and blank lines are
// skipped; escapes \t \n \r \" \\ are decoded.
func ParseNTriples(r io.Reader) (*Graph, error) {
	g := NewGraph()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := &ntParser{src: line}
		s, err := p.term()
		if err != nil {
			return nil, fmt.Errorf("line %d: subject: %w", lineNo, err)
		}
		pred, err := p.term()
		if err != nil {
			return nil, fmt.Errorf("line %d: predicate: %w", lineNo, err)
		}
		o, err := p.term()
		if err != nil {
			return nil, fmt.Errorf("line %d: object: %w", lineNo, err)
		}
		p.skipSpace()
		if !strings.HasPrefix(p.src[p.pos:], ".") {
			return nil, fmt.Errorf("line %d: missing terminating '.'", lineNo)
		}
		if s.Kind == KindLiteral || pred.Kind != KindIRI {
			return nil, fmt.Errorf("line %d: invalid triple shape", lineNo)
		}
		g.Add(s, pred, o)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return g, nil
}

type ntParser struct {
	src string
	pos int
}

func (p *ntParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *ntParser) term() (Term, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return Term{}, fmt.Errorf("unexpected end of line")
	}
	switch {
	case p.src[p.pos] == '<':
		end := strings.IndexByte(p.src[p.pos:], '>')
		if end < 0 {
			return Term{}, fmt.Errorf("unterminated IRI")
		}
		v := p.src[p.pos+1 : p.pos+end]
		p.pos += end + 1
		return IRI(v), nil
	case strings.HasPrefix(p.src[p.pos:], "_:"):
		start := p.pos + 2
		p.pos = start
		for p.pos < len(p.src) && p.src[p.pos] != ' ' && p.src[p.pos] != '\t' {
			p.pos++
		}
		return Blank(p.src[start:p.pos]), nil
	case p.src[p.pos] == '"':
		return p.literal()
	default:
		return Term{}, fmt.Errorf("unexpected character %q", p.src[p.pos])
	}
}

func (p *ntParser) literal() (Term, error) {
	var sb strings.Builder
	p.pos++
	closed := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			closed = true
			break
		}
		if c == '\\' && p.pos+1 < len(p.src) {
			switch p.src[p.pos+1] {
			case 't':
				sb.WriteByte('\t')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				return Term{}, fmt.Errorf("unsupported escape \\%c", p.src[p.pos+1])
			}
			p.pos += 2
			continue
		}
		sb.WriteByte(c)
		p.pos++
	}
	if !closed {
		return Term{}, fmt.Errorf("unterminated literal")
	}
	lex := sb.String()
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "^^<"):
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return Term{}, fmt.Errorf("unterminated datatype IRI")
		}
		p.pos += end + 1
		return Literal(lex, rest[3:end]), nil
	case strings.HasPrefix(rest, "@"):
		i := 1
		for i < len(rest) && rest[i] != ' ' && rest[i] != '\t' && rest[i] != '.' {
			i++
		}
		p.pos += i
		return LangLiteral(lex, rest[1:i]), nil
	default:
		return Literal(lex, ""), nil
	}
}
