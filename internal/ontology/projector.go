// Package ontology projects detections into RDF individuals of the concrete damage ontology.
package ontology

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/damagegraph-backend/internal/domain/damage"
	"github.com/yungbote/damagegraph-backend/internal/ontology/rdf"
	"github.com/yungbote/damagegraph-backend/internal/ontology/vocab"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

var (
	DefaultStructuralLevels   = []string{"medium", "high"}
	DefaultSeverityParameters = []string{"severity_level", "severity"}
)

// defaultParameterPredicates maps detector parameter names to ontology predicates.
var defaultParameterPredicates = map[string]rdf.Term{
	"width":             vocab.HasWidth,
	"depth":             vocab.HasDepth,
	"severity_level":    vocab.HasSeverity,
	"severity":          vocab.HasSeverity,
	"inspection_status": vocab.HasInspection,
	"name":              vocab.HasName,
}

// reservedPredicates are written by the projector itself. A parameter that would land on one
// of them is renamed with renamedParamPrefix so every damage keeps a single location, flag,
// polygon and source.
var reservedPredicates = map[rdf.Term]struct{}{
	vocab.HasCoordinates:  {},
	vocab.IsStructural:    {},
	vocab.HasSourceImage:  {},
	vocab.DamageLocatedOn: {},
	vocab.IFCGlobalID:     {},
}

const renamedParamPrefix = "param_"

// IsReservedPredicate reports whether term is one of the projector-owned predicates.
func IsReservedPredicate(term rdf.Term) bool {
	_, ok := reservedPredicates[term]
	return ok
}

// StructuralClassifier decides the isStructural flag of a damage.
type StructuralClassifier interface {
	IsStructural(det damage.Detection) bool
}

type StructuralClassifierFunc func(det damage.Detection) bool

func (f StructuralClassifierFunc) IsStructural(det damage.Detection) bool { return f(det) }

// SeverityClassifier marks a damage structural when its severity parameter, trimmed and
// case-folded, is one of the configured levels.
type SeverityClassifier struct {
	levels map[string]struct{}
	params []string
}

func NewSeverityClassifier(levels []string, params ...string) *SeverityClassifier {
	if len(levels) == 0 {
		levels = DefaultStructuralLevels
	}
	if len(params) == 0 {
		params = DefaultSeverityParameters
	}
	c := &SeverityClassifier{levels: make(map[string]struct{}, len(levels)), params: params}
	for _, l := range levels {
		c.levels[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	return c
}

func (c *SeverityClassifier) IsStructural(det damage.Detection) bool {
	sev, ok := det.Parameters.Text(c.params...)
	if !ok {
		return false
	}
	_, hit := c.levels[strings.ToLower(strings.TrimSpace(sev))]
	return hit
}

type Options struct {
	// Namespace for minted individuals; defaults to the ex: namespace.
	Namespace  string
	Structural StructuralClassifier
	// ParameterPredicates overrides or extends the parameter-name to cdo predicate map.
	ParameterPredicates map[string]string
}

type ElementIndividual struct {
	URI          rdf.Term
	Type         damage.ElementType
	PersistentID string
}

type DamageIndividual struct {
	URI        rdf.Term
	Class      damage.DamageClass
	Element    rdf.Term
	Structural bool
	// Index is the position of the source detection in the projected batch.
	Index     int
	Detection damage.Detection
}

// Snapshot is the immutable result of one projection run.
type Snapshot struct {
	Graph     *rdf.Graph
	Damages   []DamageIndividual
	Elements  []ElementIndividual
	Malformed []*damage.MalformedDetection
}

func (s *Snapshot) Serialize(format rdf.Format) (string, error) {
	if s == nil || s.Graph == nil {
		return "", fmt.Errorf("empty snapshot")
	}
	return s.Graph.Serialize(format)
}

type Projector struct {
	log        *logger.Logger
	ns         string
	structural StructuralClassifier
	predicates map[string]rdf.Term
}

func NewProjector(log *logger.Logger, opts Options) *Projector {
	ns := strings.TrimSpace(opts.Namespace)
	if ns == "" {
		ns = vocab.EX
	}
	structural := opts.Structural
	if structural == nil {
		structural = NewSeverityClassifier(nil)
	}
	preds := make(map[string]rdf.Term, len(defaultParameterPredicates)+len(opts.ParameterPredicates))
	for k, v := range defaultParameterPredicates {
		preds[k] = v
	}
	for k, v := range opts.ParameterPredicates {
		preds[k] = vocab.Cdo(v)
	}
	return &Projector{
		log:        log.With("service", "OntologyProjector"),
		ns:         ns,
		structural: structural,
		predicates: preds,
	}
}

// Project maps detections to ontology individuals. Counters start at 1 on every call, so the
// same ordered input always yields the same URIs and the same serialisation.
func (p *Projector) Project(dets []damage.Detection) *Snapshot {
	g := rdf.NewGraph()
	vocab.Header(g)
	if p.ns != vocab.EX {
		g.Bind("ex", p.ns)
	}

	snap := &Snapshot{Graph: g}
	elementCounters := map[damage.ElementType]int{}
	// Keyed by the sanitised local name so two raw tags can never share a URI.
	damageCounters := map[string]int{}
	elements := map[string]ElementIndividual{}

	for i, det := range dets {
		if err := det.Validate(i); err != nil {
			var md *damage.MalformedDetection
			if !errors.As(err, &md) {
				md = &damage.MalformedDetection{Index: i, Source: det.Source, Reason: err.Error()}
			}
			p.reject(snap, md)
			continue
		}
		ref := det.LocatedElement
		el, seen := elements[ref.PersistentID]
		if seen && el.Type != ref.ElementType {
			p.reject(snap, &damage.MalformedDetection{
				Index:  i,
				Source: det.Source,
				Field:  "ifc_element",
				Reason: fmt.Sprintf("element %s already projected as %s, got %s", ref.PersistentID, el.Type, ref.ElementType),
			})
			continue
		}
		if !seen {
			elementCounters[ref.ElementType]++
			n := elementCounters[ref.ElementType]
			el = ElementIndividual{
				URI:          rdf.IRI(p.ns + strings.ToLower(string(ref.ElementType)) + "_" + seq(n)),
				Type:         ref.ElementType,
				PersistentID: ref.PersistentID,
			}
			elements[ref.PersistentID] = el
			snap.Elements = append(snap.Elements, el)
			g.Add(el.URI, vocab.Type, vocab.ElementClass(el.Type))
			g.Add(el.URI, vocab.Label, rdf.Literal(fmt.Sprintf("%s instance %d", el.Type, n), ""))
			g.Add(el.URI, vocab.IFCGlobalID, rdf.Literal(el.PersistentID, rdf.XSDString))
		}

		local := sanitizeLocal(string(det.DamageClass))
		damageCounters[local]++
		d := DamageIndividual{
			URI:        rdf.IRI(p.ns + local + "_" + seq(damageCounters[local])),
			Class:      det.DamageClass,
			Element:    el.URI,
			Structural: p.structural.IsStructural(det),
			Index:      i,
			Detection:  det,
		}
		p.addDamage(g, d)
		snap.Damages = append(snap.Damages, d)
	}

	p.log.Debug("projection complete",
		"detections", len(dets),
		"damages", len(snap.Damages),
		"elements", len(snap.Elements),
		"malformed", len(snap.Malformed),
	)
	return snap
}

func (p *Projector) addDamage(g *rdf.Graph, d DamageIndividual) {
	g.Add(d.URI, vocab.Type, vocab.DamageClass(damage.DamageClass(sanitizeLocal(string(d.Class)))))
	g.Add(d.URI, vocab.Type, vocab.ClassifiedDamage)

	params := d.Detection.Parameters
	for _, k := range params.SortedKeys() {
		pred, renamed := p.predicate(k)
		if renamed {
			p.log.Warn("parameter name collides with a reserved predicate, renamed",
				"damage", d.URI.Value,
				"parameter", k,
				"predicate", pred.Value,
			)
		}
		g.Add(d.URI, pred, literal(params[k]))
	}
	if poly := polygon(d.Detection.Location3D); poly != "" {
		g.Add(d.URI, vocab.HasCoordinates, rdf.Literal(poly, rdf.XSDString))
	}
	g.Add(d.URI, vocab.IsStructural, rdf.Literal(strconv.FormatBool(d.Structural), rdf.XSDBoolean))
	if src := strings.TrimSpace(d.Detection.Source); src != "" {
		g.Add(d.URI, vocab.HasSourceImage, rdf.Literal(src, rdf.XSDString))
	}
	g.Add(d.URI, vocab.DamageLocatedOn, d.Element)
}

// predicate maps a parameter name to its cdo predicate. Mapped names may target hasName;
// unmapped names and anything landing on a reserved predicate get the param_ prefix.
func (p *Projector) predicate(param string) (rdf.Term, bool) {
	local := sanitizeLocal(param)
	if t, ok := p.predicates[param]; ok {
		if !IsReservedPredicate(t) {
			return t, false
		}
	} else if t := vocab.Cdo(local); local != "" && !IsReservedPredicate(t) && t != vocab.HasName {
		return t, false
	}
	return vocab.Cdo(renamedParamPrefix + local), true
}

func (p *Projector) reject(snap *Snapshot, md *damage.MalformedDetection) {
	snap.Malformed = append(snap.Malformed, md)
	p.log.Warn("skipping malformed detection",
		"index", md.Index,
		"source", md.Source,
		"field", md.Field,
		"reason", md.Reason,
	)
}

func literal(v any) rdf.Term {
	switch t := v.(type) {
	case float64:
		return rdf.Literal(formatNumber(t), rdf.XSDDecimal)
	case int:
		return rdf.Literal(strconv.Itoa(t), rdf.XSDDecimal)
	case int64:
		return rdf.Literal(strconv.FormatInt(t, 10), rdf.XSDDecimal)
	case bool:
		return rdf.Literal(strconv.FormatBool(t), rdf.XSDBoolean)
	case string:
		return rdf.Literal(t, rdf.XSDString)
	default:
		return rdf.Literal(fmt.Sprint(t), rdf.XSDString)
	}
}

// polygon renders POLYGON((x y z, ...)) in input order, closing the ring when needed.
func polygon(pts []damage.Point3D) string {
	if len(pts) == 0 {
		return ""
	}
	ring := pts
	if pts[len(pts)-1] != pts[0] {
		ring = append(append([]damage.Point3D(nil), pts...), pts[0])
	}
	parts := make([]string, 0, len(ring))
	for _, pt := range ring {
		parts = append(parts, formatNumber(pt.X)+" "+formatNumber(pt.Y)+" "+formatNumber(pt.Z))
	}
	return "POLYGON((" + strings.Join(parts, ", ") + "))"
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func seq(n int) string {
	return fmt.Sprintf("%03d", n)
}

// sanitizeLocal keeps letters, digits and '_' and replaces anything else with '_'.
func sanitizeLocal(s string) string {
	s = strings.TrimSpace(s)
	var sb strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteString("p_")
			}
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
