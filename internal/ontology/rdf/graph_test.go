package rdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ex = "http://example.org/damageInstances#"

func sampleGraph() *Graph {
	g := NewGraph()
	g.Bind("ex", ex)
	g.Bind("xsd", XSDNamespace)
	g.Bind("rdf", RDFNamespace)
	crack := IRI(ex + "Crack_001")
	g.Add(crack, IRI(RDFType), IRI(ex+"Crack"))
	g.Add(crack, IRI(ex+"hasWidth"), Literal("0.35", XSDDecimal))
	g.Add(crack, IRI(ex+"hasNote"), Literal("line \"one\"\nline two", ""))
	g.Add(crack, IRI(ex+"seeAlso"), IRI("http://other.example/x y"))
	g.Add(crack, IRI(RDFType), IRI(ex+"Damage"))
	g.Add(Blank("b1"), IRI(ex+"label"), LangLiteral("Riss", "DE"))
	return g
}

func TestAddDeduplicates(t *testing.T) {
	g := sampleGraph()
	n := g.Len()
	assert.False(t, g.Add(IRI(ex+"Crack_001"), IRI(RDFType), IRI(ex+"Crack")))
	assert.Equal(t, n, g.Len())
	assert.True(t, g.Has(IRI(ex+"Crack_001"), IRI(RDFType), IRI(ex+"Damage")))
}

func TestQueries(t *testing.T) {
	g := sampleGraph()
	crack := IRI(ex + "Crack_001")
	assert.Equal(t, []Term{crack}, g.Subjects(IRI(RDFType), Term{}))
	assert.Equal(t, []Term{crack}, g.Subjects(IRI(RDFType), IRI(ex+"Damage")))
	assert.Empty(t, g.Subjects(IRI(RDFType), IRI(ex+"Beam")))
	assert.Equal(t, []Term{IRI(ex + "Crack"), IRI(ex + "Damage")}, g.Objects(crack, IRI(RDFType)))
	v, ok := g.Value(crack, IRI(ex+"hasWidth"))
	require.True(t, ok)
	assert.Equal(t, "0.35", v.Value)
	_, ok = g.Value(crack, IRI(ex+"missing"))
	assert.False(t, ok)
}

func TestTurtle(t *testing.T) {
	out, err := sampleGraph().Serialize(FormatTurtle)
	require.NoError(t, err)

	want := `@prefix ex: <http://example.org/damageInstances#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .

ex:Crack_001
    a ex:Crack,
        ex:Damage ;
    ex:hasWidth "0.35"^^xsd:decimal ;
    ex:hasNote "line \"one\"\nline two" ;
    ex:seeAlso <http://other.example/x y> .

_:b1
    ex:label "Riss"@de .

`
	assert.Equal(t, want, out)
}

func TestSerializeIsDeterministic(t *testing.T) {
	a, err := sampleGraph().Serialize(FormatTurtle)
	require.NoError(t, err)
	b, err := sampleGraph().Serialize(FormatTurtle)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNTriplesRoundTrip(t *testing.T) {
	g := sampleGraph()
	out, err := g.Serialize(FormatNTriples)
	require.NoError(t, err)
	assert.Contains(t, out, `<http://example.org/damageInstances#Crack_001> <http://example.org/damageInstances#hasWidth> "0.35"^^<http://www.w3.org/2001/XMLSchema#decimal> .`)

	parsed, err := ParseNTriples(strings.NewReader("# header\n\n" + out))
	require.NoError(t, err)
	assert.Equal(t, g.Triples(), parsed.Triples())
}

func TestParseNTriplesErrors(t *testing.T) {
	for _, line := range []string{
		`<a> <b> "open .`,
		`<a> <b> <c>`,
		`"lit" <b> <c> .`,
		`<a> _:b <c> .`,
	} {
		_, err := ParseNTriples(strings.NewReader(line))
		assert.Error(t, err, line)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".nt")
	require.NoError(t, err)
	assert.Equal(t, FormatNTriples, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTurtle, f)
	assert.Equal(t, "text/turtle", f.ContentType())
	_, err = ParseFormat("rdfxml")
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	a := NewGraph()
	a.Bind("ex", ex)
	a.Add(IRI(ex+"a"), IRI(ex+"p"), IRI(ex+"b"))
	b := NewGraph()
	b.Bind("xsd", XSDNamespace)
	b.Add(IRI(ex+"a"), IRI(ex+"p"), IRI(ex+"b"))
	b.Add(IRI(ex+"b"), IRI(ex+"p"), IRI(ex+"c"))
	a.Merge(b)
	assert.Equal(t, 2, a.Len())
	assert.Len(t, a.Prefixes(), 2)
}
