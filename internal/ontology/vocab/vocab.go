// Package vocab defines the namespaces and the fixed ontology header (TBox) of the concrete
// damage ontology.
package vocab

import (
	"github.com/yungbote/damagegraph-backend/internal/domain/damage"
	"github.com/yungbote/damagegraph-backend/internal/ontology/rdf"
)

const (
	EX      = "http://example.org/damageInstances#"
	CDO     = "https://w3id.org/damagemodels/cdo#"
	DCE     = "http://purl.org/dc/elements/1.1/"
	DCO     = "https://w3id.org/dco#"
	FOAF    = "http://xmlns.com/foaf/0.1/"
	OWL     = "http://www.w3.org/2002/07/owl#"
	RDF     = rdf.RDFNamespace
	XSD     = rdf.XSDNamespace
	RDFS    = "http://www.w3.org/2000/01/rdf-schema#"
	VANN    = "http://purl.org/vocab/vann/"
	DCTERMS = "http://purl.org/dc/terms/"
	VOAF    = "http://purl.org/vocommons/voaf#"
	DOT     = "https://w3id.org/dot#"
	IFC     = "https://standards.buildingsmart.org/IFC/DEV/IFC4_2/OWL#"

	OntologyVersion = "0.5.0"
)

// Prefixes in serialisation order.
var Prefixes = []rdf.Prefix{
	{Name: "ex", Namespace: EX},
	{Name: "cdo", Namespace: CDO},
	{Name: "dce", Namespace: DCE},
	{Name: "dco", Namespace: DCO},
	{Name: "foaf", Namespace: FOAF},
	{Name: "owl", Namespace: OWL},
	{Name: "rdf", Namespace: RDF},
	{Name: "xsd", Namespace: XSD},
	{Name: "rdfs", Namespace: RDFS},
	{Name: "vann", Namespace: VANN},
	{Name: "dcterms", Namespace: DCTERMS},
	{Name: "voaf", Namespace: VOAF},
	{Name: "dot", Namespace: DOT},
	{Name: "ifc", Namespace: IFC},
}

func Cdo(local string) rdf.Term { return rdf.IRI(CDO + local) }
func Ex(local string) rdf.Term { return rdf.IRI(EX + local) }

var (
	Type             = rdf.IRI(RDF + "type")
	Label            = rdf.IRI(RDFS + "label")
	Comment          = rdf.IRI(RDFS + "comment")
	Domain           = rdf.IRI(RDFS + "domain")
	Range            = rdf.IRI(RDFS + "range")
	SubClassOf       = rdf.IRI(RDFS + "subClassOf")
	OWLClass         = rdf.IRI(OWL + "Class")
	OWLOntology      = rdf.IRI(OWL + "Ontology")
	DatatypeProperty = rdf.IRI(OWL + "DatatypeProperty")
	ObjectProperty   = rdf.IRI(OWL + "ObjectProperty")
	EquivalentClass  = rdf.IRI(OWL + "equivalentClass")
	ClassifiedDamage = rdf.IRI(DOT + "ClassifiedDamage")
	BuildingElement  = Cdo("BuildingElement")

	HasCoordinates  = Cdo("hasCoordinates")
	IsStructural    = Cdo("isStructural")
	DamageLocatedOn = Cdo("damageLocatedOn")
	IFCGlobalID     = Cdo("ifcGlobalId")
	HasWidth        = Cdo("hasWidth")
	HasDepth        = Cdo("hasDepth")
	HasSeverity     = Cdo("hasSeverity")
	HasName         = Cdo("hasName")
	HasInspection   = Cdo("hasInspectionStatus")
	HasSourceImage  = Cdo("hasSourceImage")
)

type propertyDef struct {
	term    rdf.Term
	kind    rdf.Term
	domain  rdf.Term
	rng     rdf.Term
	label   string
	comment string
}

var propertyDefs = []propertyDef{
	{term: HasCoordinates, kind: DatatypeProperty, domain: ClassifiedDamage, rng: rdf.IRI(rdf.XSDString), label: "has coordinates"},
	{term: IsStructural, kind: DatatypeProperty, domain: ClassifiedDamage, rng: rdf.IRI(rdf.XSDBoolean), label: "is structural"},
	{term: DamageLocatedOn, kind: ObjectProperty, domain: ClassifiedDamage, rng: BuildingElement, label: "damage located on"},
	{term: IFCGlobalID, kind: DatatypeProperty, domain: BuildingElement, rng: rdf.IRI(rdf.XSDString), label: "IFC GlobalId", comment: "Links a building element to its IFC GUID."},
	{term: HasWidth, kind: DatatypeProperty, domain: ClassifiedDamage, rng: rdf.IRI(rdf.XSDDecimal), label: "has width"},
	{term: HasDepth, kind: DatatypeProperty, domain: ClassifiedDamage, rng: rdf.IRI(rdf.XSDDecimal), label: "has depth"},
	{term: HasSeverity, kind: DatatypeProperty, domain: ClassifiedDamage, rng: rdf.IRI(rdf.XSDString), label: "has severity"},
	{term: HasInspection, kind: DatatypeProperty, domain: ClassifiedDamage, rng: rdf.IRI(rdf.XSDString), label: "has inspection status"},
	{term: HasName, kind: DatatypeProperty, domain: ClassifiedDamage, rng: rdf.IRI(rdf.XSDString), label: "has name"},
	{term: HasSourceImage, kind: DatatypeProperty, domain: ClassifiedDamage, rng: rdf.IRI(rdf.XSDString), label: "has source image", comment: "Image the detection was made on."},
}

// Header adds the ontology metadata, property definitions, element classes and known damage
// classes to g, and binds every prefix.
func Header(g *rdf.Graph) {
	for _, p := range Prefixes {
		g.Bind(p.Name, p.Namespace)
	}

	onto := rdf.IRI(CDO)
	en := func(s string) rdf.Term { return rdf.LangLiteral(s, "en") }
	date := func(s string) rdf.Term { return rdf.Literal(s, XSD+"date") }
	description := "Ontology for damage and defects in reinforced concrete."

	g.Add(onto, Type, OWLOntology)
	g.Add(onto, Type, rdf.IRI(VOAF+"Vocabulary"))
	g.Add(onto, rdf.IRI(OWL+"versionIRI"), rdf.IRI(CDO+"/"+OntologyVersion))
	g.Add(onto, rdf.IRI(OWL+"versionInfo"), rdf.Literal(OntologyVersion, ""))
	g.Add(onto, Comment, en(description))
	g.Add(onto, rdf.IRI(DCTERMS+"license"), rdf.Literal("https://creativecommons.org/licenses/by/1.0", ""))
	g.Add(onto, rdf.IRI(DCTERMS+"description"), en(description))
	g.Add(onto, rdf.IRI(DCTERMS+"modified"), date("2019-12-17"))
	g.Add(onto, rdf.IRI(DCTERMS+"issued"), date("2018-10-25"))
	g.Add(onto, rdf.IRI(DCTERMS+"title"), en("Concrete Damage Ontology"))
	g.Add(onto, rdf.IRI(VANN+"preferredNamespacePrefix"), rdf.Literal("cdo", ""))
	g.Add(onto, rdf.IRI(VANN+"preferredNamespaceUri"), rdf.Literal(CDO, ""))

	creator := rdf.Blank("creator")
	g.Add(onto, rdf.IRI(DCTERMS+"creator"), creator)
	g.Add(creator, Type, rdf.IRI(FOAF+"Person"))
	g.Add(creator, rdf.IRI(FOAF+"name"), rdf.Literal("Vedant Dalvi", ""))

	for _, def := range propertyDefs {
		g.Add(def.term, Type, def.kind)
		g.Add(def.term, Domain, def.domain)
		g.Add(def.term, Range, def.rng)
		g.Add(def.term, Label, en(def.label))
		if def.comment != "" {
			g.Add(def.term, Comment, en(def.comment))
		}
	}

	g.Add(BuildingElement, Type, OWLClass)
	g.Add(BuildingElement, Label, en("Building Element"))
	for _, et := range damage.ElementTypes {
		cls := ElementClass(et)
		g.Add(cls, Type, OWLClass)
		g.Add(cls, SubClassOf, BuildingElement)
		g.Add(cls, Label, en(string(et)))
		g.Add(cls, EquivalentClass, rdf.IRI(IFC+et.IFCClass()))
	}

	for _, c := range damage.KnownClasses {
		cls := DamageClass(c)
		g.Add(cls, Type, OWLClass)
		g.Add(cls, SubClassOf, ClassifiedDamage)
		g.Add(cls, Label, en(string(c)))
	}
}

func ElementClass(t damage.ElementType) rdf.Term { return Cdo(string(t)) }

func DamageClass(c damage.DamageClass) rdf.Term { return Cdo(string(c)) }

// IsElementClass reports whether term is one of the building element classes.
func IsElementClass(term rdf.Term) bool {
	if term == BuildingElement {
		return true
	}
	for _, et := range damage.ElementTypes {
		if term == ElementClass(et) {
			return true
		}
	}
	return false
}

// LocalName strips the namespace from an IRI (text after the last '#' or '/').
func LocalName(term rdf.Term) string {
	v := term.Value
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] == '#' || v[i] == '/' {
			return v[i+1:]
		}
	}
	return v
}
