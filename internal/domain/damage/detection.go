package damage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// DamageClass is the detector's damage tag in canonical spelling (Crack, Spalling, ...).
type DamageClass string

const (
	ClassCrack         DamageClass = "Crack"
	ClassSpalling      DamageClass = "Spalling"
	ClassEfflorescence DamageClass = "Efflorescence"
	ClassCorrosion     DamageClass = "Corrosion"
	ClassExposedRebar  DamageClass = "ExposedRebar"
)

// KnownClasses lists the damage classes declared in the ontology header.
var KnownClasses = []DamageClass{ClassCrack, ClassSpalling, ClassEfflorescence, ClassCorrosion, ClassExposedRebar}

// NormalizeClass maps a raw tag to its canonical spelling. Unknown tags are capitalised
// (first letter upper, remainder lower).
func NormalizeClass(raw string) DamageClass {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, c := range KnownClasses {
		if strings.EqualFold(raw, string(c)) {
			return c
		}
	}
	runes := []rune(strings.ToLower(raw))
	runes[0] = unicode.ToUpper(runes[0])
	return DamageClass(runes)
}

type ElementType string

const (
	ElementBeam    ElementType = "Beam"
	ElementColumn  ElementType = "Column"
	ElementWall    ElementType = "Wall"
	ElementSlab    ElementType = "Slab"
	ElementFooting ElementType = "Footing"
	ElementMember  ElementType = "Member"
)

var ElementTypes = []ElementType{ElementBeam, ElementColumn, ElementWall, ElementSlab, ElementFooting, ElementMember}

// ParseElementType accepts "beam", "Beam" and the IFC spelling "IfcBeam".
func ParseElementType(raw string) (ElementType, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 3 && strings.EqualFold(raw[:3], "ifc") {
		raw = raw[3:]
	}
	for _, t := range ElementTypes {
		if strings.EqualFold(raw, string(t)) {
			return t, true
		}
	}
	return ElementType(raw), false
}

func (t ElementType) Known() bool {
	for _, e := range ElementTypes {
		if t == e {
			return true
		}
	}
	return false
}

// IFCClass is the IFC entity the element type is equivalent to (IfcBeam, ...).
func (t ElementType) IFCClass() string { return "Ifc" + string(t) }

// BuildingElementRef bridges the ontology and the BIM model. PersistentID is the IFC GlobalId
// and is never regenerated.
type BuildingElementRef struct {
	ElementType  ElementType
	PersistentID string
}

type Point3D struct {
	X, Y, Z float64
}

type Point2D struct {
	X, Y float64
}

// Parameters holds detector attributes. Values are float64, bool or string.
type Parameters map[string]any

// SortedKeys returns parameter names in lexical order.
func (p Parameters) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Text returns the first present parameter among names rendered as a string.
func (p Parameters) Text(names ...string) (string, bool) {
	for _, name := range names {
		v, ok := p[name]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t, true
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(t), true
		default:
			return fmt.Sprint(t), true
		}
	}
	return "", false
}

type Detection struct {
	DamageClass    DamageClass
	Parameters     Parameters
	Location2D     []Point2D
	Location3D     []Point3D
	LocatedElement BuildingElementRef
	// Source is the image the detection was inferred from.
	Source string
}

// MalformedDetection reports a detection rejected before projection. The batch continues.
type MalformedDetection struct {
	Index  int
	Source string
	Field  string
	Reason string
}

func (e *MalformedDetection) Error() string {
	if e == nil {
		return "malformed detection"
	}
	return fmt.Sprintf("malformed detection #%d (%s): %s", e.Index, e.Field, e.Reason)
}

// Validate checks the mandatory fields. index is the detection's position in its batch.
func (d Detection) Validate(index int) error {
	if strings.TrimSpace(string(d.DamageClass)) == "" {
		return &MalformedDetection{Index: index, Source: d.Source, Field: "damage_class", Reason: "missing damage class"}
	}
	if strings.TrimSpace(d.LocatedElement.PersistentID) == "" {
		return &MalformedDetection{Index: index, Source: d.Source, Field: "ifc_guid", Reason: "missing persistent element id"}
	}
	if !d.LocatedElement.ElementType.Known() {
		return &MalformedDetection{
			Index:  index,
			Source: d.Source,
			Field:  "ifc_element",
			Reason: fmt.Sprintf("unknown element type %q", d.LocatedElement.ElementType),
		}
	}
	return nil
}
