// Package rdf holds an in-memory triple graph and its Turtle / N-Triples serialisation.
package rdf

import (
	"fmt"
	"strings"
)

type TermKind int

const (
	KindIRI TermKind = iota
	KindBlank
	KindLiteral
)

// Term is an RDF node. It is comparable and usable as a map key.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Lang     string
}

func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

func Blank(label string) Term { return Term{Kind: KindBlank, Value: label} }

// Literal returns a typed literal. An empty datatype means xsd:string.
func Literal(lexical, datatype string) Term {
	if datatype == "" {
		datatype = XSDString
	}
	return Term{Kind: KindLiteral, Value: lexical, Datatype: datatype}
}

func LangLiteral(lexical, lang string) Term {
	return Term{Kind: KindLiteral, Value: lexical, Datatype: RDFLangString, Lang: strings.ToLower(lang)}
}

func (t Term) IsZero() bool { return t == Term{} }

func (t Term) IsIRI() bool { return t.Kind == KindIRI && t.Value != "" }

func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	default:
		if t.Lang != "" {
			return fmt.Sprintf("%q@%s", t.Value, t.Lang)
		}
		return fmt.Sprintf("%q^^<%s>", t.Value, t.Datatype)
	}
}

const (
	XSDNamespace  = "http://www.w3.org/2001/XMLSchema#"
	XSDString     = XSDNamespace + "string"
	XSDDecimal    = XSDNamespace + "decimal"
	XSDInteger    = XSDNamespace + "integer"
	XSDBoolean    = XSDNamespace + "boolean"
	RDFNamespace  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFType       = RDFNamespace + "type"
	RDFLangString = RDFNamespace + "langString"
)

type Triple struct {
	S, P, O Term
}

type Prefix struct {
	Name      string
	Namespace string
}

// Graph keeps triples in insertion order and drops duplicates.
type Graph struct {
	prefixes []Prefix
	triples  []Triple
	index    map[Triple]struct{}
}

func NewGraph() *Graph {
	return &Graph{index: make(map[Triple]struct{})}
}

// Bind registers a prefix for serialisation. Rebinding a name replaces its namespace.
func (g *Graph) Bind(name, namespace string) {
	for i, p := range g.prefixes {
		if p.Name == name {
			g.prefixes[i].Namespace = namespace
			return
		}
	}
	g.prefixes = append(g.prefixes, Prefix{Name: name, Namespace: namespace})
}

func (g *Graph) Prefixes() []Prefix {
	out := make([]Prefix, len(g.prefixes))
	copy(out, g.prefixes)
	return out
}

// Add inserts the triple and reports whether it was new.
func (g *Graph) Add(s, p, o Term) bool {
	t := Triple{S: s, P: p, O: o}
	if _, ok := g.index[t]; ok {
		return false
	}
	g.index[t] = struct{}{}
	g.triples = append(g.triples, t)
	return true
}

func (g *Graph) Has(s, p, o Term) bool {
	_, ok := g.index[Triple{S: s, P: p, O: o}]
	return ok
}

func (g *Graph) Len() int { return len(g.triples) }

func (g *Graph) Triples() []Triple {
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

// Subjects returns distinct subjects carrying predicate p, in first-seen order.
// A zero object matches any object.
func (g *Graph) Subjects(p, o Term) []Term {
	seen := map[Term]struct{}{}
	var out []Term
	for _, t := range g.triples {
		if t.P != p || (!o.IsZero() && t.O != o) {
			continue
		}
		if _, ok := seen[t.S]; ok {
			continue
		}
		seen[t.S] = struct{}{}
		out = append(out, t.S)
	}
	return out
}

func (g *Graph) Objects(s, p Term) []Term {
	var out []Term
	for _, t := range g.triples {
		if t.S == s && t.P == p {
			out = append(out, t.O)
		}
	}
	return out
}

// Value returns the first object of (s, p).
func (g *Graph) Value(s, p Term) (Term, bool) {
	for _, t := range g.triples {
		if t.S == s && t.P == p {
			return t.O, true
		}
	}
	return Term{}, false
}

// Merge copies prefixes and triples of other into g.
func (g *Graph) Merge(other *Graph) {
	if other == nil {
		return
	}
	for _, p := range other.prefixes {
		g.Bind(p.Name, p.Namespace)
	}
	for _, t := range other.triples {
		g.Add(t.S, t.P, t.O)
	}
}
