package rdf

import (
	"fmt"
	"io"
	"strings"
)

type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "ntriples"
)

// ParseFormat accepts the format names and the usual file extensions.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), ".")) {
	case "", "turtle", "ttl":
		return FormatTurtle, nil
	case "ntriples", "n-triples", "nt":
		return FormatNTriples, nil
	default:
		return "", fmt.Errorf("unsupported rdf format: %s", raw)
	}
}

func (f Format) ContentType() string {
	if f == FormatNTriples {
		return "application/n-triples"
	}
	return "text/turtle"
}

func (f Format) Extension() string {
	if f == FormatNTriples {
		return ".nt"
	}
	return ".ttl"
}

// Serialize renders the graph. Output depends only on insertion order.
func (g *Graph) Serialize(format Format) (string, error) {
	var sb strings.Builder
	if err := g.Write(&sb, format); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Graph) Write(w io.Writer, format Format) error {
	var body string
	switch format {
	case FormatTurtle, "":
		body = g.toTurtle()
	case FormatNTriples:
		body = g.toNTriples()
	default:
		return fmt.Errorf("unsupported rdf format: %s", format)
	}
	_, err := io.WriteString(w, body)
	return err
}

func (g *Graph) toTurtle() string {
	var sb strings.Builder
	for _, p := range g.prefixes {
		sb.WriteString(fmt.Sprintf("@prefix %s: <%s> .\n", p.Name, p.Namespace))
	}
	if len(g.prefixes) > 0 {
		sb.WriteString("\n")
	}

	// Group by subject, then predicate, keeping first-seen order for both.
	type predObjs struct {
		pred Term
		objs []Term
	}
	var subjects []Term
	groups := map[Term][]*predObjs{}
	for _, t := range g.triples {
		preds, ok := groups[t.S]
		if !ok {
			subjects = append(subjects, t.S)
		}
		var slot *predObjs
		for _, po := range preds {
			if po.pred == t.P {
				slot = po
				break
			}
		}
		if slot == nil {
			slot = &predObjs{pred: t.P}
			preds = append(preds, slot)
		}
		slot.objs = append(slot.objs, t.O)
		groups[t.S] = preds
	}

	for _, s := range subjects {
		sb.WriteString(g.turtleTerm(s))
		preds := groups[s]
		for i, po := range preds {
			sb.WriteString("\n    ")
			if po.pred.Kind == KindIRI && po.pred.Value == RDFType {
				sb.WriteString("a")
			} else {
				sb.WriteString(g.turtleTerm(po.pred))
			}
			sb.WriteString(" ")
			for j, o := range po.objs {
				if j > 0 {
					sb.WriteString(",\n        ")
				}
				sb.WriteString(g.turtleTerm(o))
			}
			if i < len(preds)-1 {
				sb.WriteString(" ;")
			} else {
				sb.WriteString(" .")
			}
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (g *Graph) turtleTerm(t Term) string {
	switch t.Kind {
	case KindIRI:
		return g.compact(t.Value)
	case KindBlank:
		return "_:" + t.Value
	default:
		lit := `"` + escapeString(t.Value) + `"`
		switch {
		case t.Lang != "":
			return lit + "@" + t.Lang
		case t.Datatype == "" || t.Datatype == XSDString:
			return lit
		default:
			return lit + "^^" + g.compact(t.Datatype)
		}
	}
}

// compact rewrites an IRI as prefix:local when a bound namespace matches and the local part
// is a safe prefixed-name local.
func (g *Graph) compact(iri string) string {
	best := -1
	for i, p := range g.prefixes {
		if !strings.HasPrefix(iri, p.Namespace) {
			continue
		}
		if !validLocal(iri[len(p.Namespace):]) {
			continue
		}
		if best < 0 || len(p.Namespace) > len(g.prefixes[best].Namespace) {
			best = i
		}
	}
	if best < 0 {
		return "<" + iri + ">"
	}
	p := g.prefixes[best]
	return p.Name + ":" + iri[len(p.Namespace):]
}

func validLocal(local string) bool {
	for i, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		case r == '-' && i > 0:
		default:
			return false
		}
	}
	return true
}

func (g *Graph) toNTriples() string {
	var sb strings.Builder
	for _, t := range g.triples {
		sb.WriteString(ntriplesTerm(t.S))
		sb.WriteString(" ")
		sb.WriteString(ntriplesTerm(t.P))
		sb.WriteString(" ")
		sb.WriteString(ntriplesTerm(t.O))
		sb.WriteString(" .\n")
	}
	return sb.String()
}

func ntriplesTerm(t Term) string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	default:
		lit := `"` + escapeString(t.Value) + `"`
		switch {
		case t.Lang != "":
			return lit + "@" + t.Lang
		case t.Datatype == "" || t.Datatype == XSDString:
			return lit
		default:
			return lit + "^^<" + t.Datatype + ">"
		}
	}
}

// escapeString escapes special characters for Turtle and N-Triples string literals.
func escapeString(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
