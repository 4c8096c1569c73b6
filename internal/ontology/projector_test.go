package ontology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/damagegraph-backend/internal/domain/damage"
	"github.com/yungbote/damagegraph-backend/internal/ontology/rdf"
	"github.com/yungbote/damagegraph-backend/internal/ontology/vocab"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

const (
	beamGUID   = "3k9HsYt7n9fhP5v$yY1B2a"
	columnGUID = "2Yh5Xdr4a7b97Xj1KdfkZe"
	wallGUID   = "1AbcDeFgHiJkLmNoPqRstU"
)

func det(class string, et damage.ElementType, guid string, params damage.Parameters) damage.Detection {
	return damage.Detection{
		DamageClass:    damage.NormalizeClass(class),
		Parameters:     params,
		Location3D:     []damage.Point3D{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}, {X: 7, Y: 8, Z: 9}},
		LocatedElement: damage.BuildingElementRef{ElementType: et, PersistentID: guid},
		Source:         "img_0001.jpg",
	}
}

func batch() []damage.Detection {
	return []damage.Detection{
		det("crack", damage.ElementBeam, beamGUID, damage.Parameters{"width": 0.35, "severity_level": "High"}),
		det("spalling", damage.ElementColumn, columnGUID, damage.Parameters{"depth": 12.0, "severity_level": "low"}),
		det("", damage.ElementWall, wallGUID, damage.Parameters{"severity_level": "medium"}),
		det("crack", damage.ElementBeam, beamGUID, damage.Parameters{"severity": " MEDIUM "}),
		det("crack", damage.ElementWall, wallGUID, damage.Parameters{"custom metric": true}),
	}
}

func newProjector(opts Options) *Projector {
	return NewProjector(logger.Nop(), opts)
}

func TestProjectSkipsMalformed(t *testing.T) {
	snap := newProjector(Options{}).Project(batch())
	require.Len(t, snap.Malformed, 1)
	assert.Equal(t, 2, snap.Malformed[0].Index)
	assert.Equal(t, "damage_class", snap.Malformed[0].Field)
	require.Len(t, snap.Damages, 4)

	uris := []string{}
	for _, d := range snap.Damages {
		uris = append(uris, vocab.LocalName(d.URI))
	}
	assert.Equal(t, []string{"Crack_001", "Spalling_001", "Crack_002", "Crack_003"}, uris)

	// beam reused, wall minted only for the valid detection
	require.Len(t, snap.Elements, 3)
	assert.Equal(t, "beam_001", vocab.LocalName(snap.Elements[0].URI))
	assert.Equal(t, "column_001", vocab.LocalName(snap.Elements[1].URI))
	assert.Equal(t, "wall_001", vocab.LocalName(snap.Elements[2].URI))
	assert.Equal(t, snap.Damages[0].Element, snap.Damages[2].Element)
}

func TestProjectIsDeterministic(t *testing.T) {
	p := newProjector(Options{})
	a, err := p.Project(batch()).Serialize(rdf.FormatTurtle)
	require.NoError(t, err)
	b, err := p.Project(batch()).Serialize(rdf.FormatTurtle)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "ex:Crack_001")
	assert.Contains(t, a, `cdo:hasCoordinates "POLYGON((1 2 3, 4 5 6, 7 8 9, 1 2 3))"`)
}

func TestEveryDamageLocatedOnExistingElement(t *testing.T) {
	snap := newProjector(Options{}).Project(batch())
	g := snap.Graph
	for _, d := range snap.Damages {
		targets := g.Objects(d.URI, vocab.DamageLocatedOn)
		require.Len(t, targets, 1, d.URI.Value)
		assert.True(t, g.Has(targets[0], vocab.IFCGlobalID, rdf.Literal(guidOf(snap, targets[0]), rdf.XSDString)))
		assert.NotEmpty(t, g.Objects(targets[0], vocab.Type))
	}
}

func guidOf(snap *Snapshot, uri rdf.Term) string {
	for _, e := range snap.Elements {
		if e.URI == uri {
			return e.PersistentID
		}
	}
	return ""
}

func TestStructuralFlag(t *testing.T) {
	snap := newProjector(Options{}).Project(batch())
	got := map[string]bool{}
	for _, d := range snap.Damages {
		got[vocab.LocalName(d.URI)] = d.Structural
		v, ok := snap.Graph.Value(d.URI, vocab.IsStructural)
		require.True(t, ok)
		assert.Equal(t, rdf.XSDBoolean, v.Datatype)
	}
	assert.True(t, got["Crack_001"], "High")
	assert.False(t, got["Spalling_001"], "low")
	assert.True(t, got["Crack_002"], "severity fallback")
	assert.False(t, got["Crack_003"], "no severity")
}

func TestStructuralClassifierIsPluggable(t *testing.T) {
	always := StructuralClassifierFunc(func(damage.Detection) bool { return true })
	snap := newProjector(Options{Structural: always}).Project(batch())
	for _, d := range snap.Damages {
		assert.True(t, d.Structural)
	}
}

func TestParameterLiterals(t *testing.T) {
	snap := newProjector(Options{ParameterPredicates: map[string]string{"custom metric": "hasCustomMetric"}}).Project(batch())
	g := snap.Graph
	first := snap.Damages[0].URI
	w, ok := g.Value(first, vocab.HasWidth)
	require.True(t, ok)
	assert.Equal(t, rdf.Literal("0.35", rdf.XSDDecimal), w)
	sev, ok := g.Value(first, vocab.HasSeverity)
	require.True(t, ok)
	assert.Equal(t, rdf.Literal("High", rdf.XSDString), sev)

	last := snap.Damages[3].URI
	custom, ok := g.Value(last, vocab.Cdo("hasCustomMetric"))
	require.True(t, ok)
	assert.Equal(t, rdf.Literal("true", rdf.XSDBoolean), custom)
}

func TestConflictingElementType(t *testing.T) {
	dets := []damage.Detection{
		det("crack", damage.ElementBeam, beamGUID, nil),
		det("crack", damage.ElementColumn, beamGUID, nil),
	}
	snap := newProjector(Options{}).Project(dets)
	require.Len(t, snap.Damages, 1)
	require.Len(t, snap.Malformed, 1)
	assert.Equal(t, "ifc_element", snap.Malformed[0].Field)
}

func TestHeaderIncluded(t *testing.T) {
	out, err := newProjector(Options{}).Project(nil).Serialize(rdf.FormatTurtle)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "@prefix ex: <http://example.org/damageInstances#> ."))
	assert.Contains(t, out, `dcterms:title "Concrete Damage Ontology"@en`)
	assert.Contains(t, out, "owl:equivalentClass ifc:IfcBeam")
}

func TestPolygon(t *testing.T) {
	assert.Equal(t, "", polygon(nil))
	closed := []damage.Point3D{{X: 0}, {X: 1}, {X: 0}}
	assert.Equal(t, "POLYGON((0 0 0, 1 0 0, 0 0 0))", polygon(closed))
	assert.Equal(t, "POLYGON((1.5 0 0))", polygon([]damage.Point3D{{X: 1.5}}))
}

func TestSanitizeLocal(t *testing.T) {
	assert.Equal(t, "custom_metric", sanitizeLocal("custom metric"))
	assert.Equal(t, "p_3d", sanitizeLocal("3d"))
	assert.Equal(t, "Exposed_Rebar", sanitizeLocal("Exposed-Rebar"))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("structural_levels: [high]\nparameter_predicates:\n  crack_length: hasLength\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/damageInstances#", cfg.Namespace)
	assert.Equal(t, []string{"high"}, cfg.StructuralLevels)

	opts := cfg.Options()
	medium := det("crack", damage.ElementBeam, beamGUID, damage.Parameters{"severity_level": "medium"})
	assert.False(t, opts.Structural.IsStructural(medium))
	assert.Equal(t, "hasLength", opts.ParameterPredicates["crack_length"])

	_, err = ParseConfig([]byte("namespace: http://x.org/no-separator\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("parameter_predicates:\n  a: \"bad name\"\n"))
	assert.Error(t, err)

	def, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultStructuralLevels, def.StructuralLevels)
}

func TestReservedParameterNamesAreRenamed(t *testing.T) {
	dets := []damage.Detection{
		det("crack", damage.ElementBeam, beamGUID, damage.Parameters{
			"severity_level":  "High",
			"isStructural":    "false",
			"damageLocatedOn": "elsewhere",
			"hasCoordinates":  "0 0 0",
			"ifcGlobalId":     "other",
			"hasName":         "shadow",
		}),
	}
	snap := newProjector(Options{}).Project(dets)
	require.Len(t, snap.Damages, 1)
	g := snap.Graph
	d := snap.Damages[0]

	assert.Equal(t, []rdf.Term{rdf.Literal("true", rdf.XSDBoolean)}, g.Objects(d.URI, vocab.IsStructural))
	assert.Equal(t, []rdf.Term{d.Element}, g.Objects(d.URI, vocab.DamageLocatedOn))
	assert.Len(t, g.Objects(d.URI, vocab.HasCoordinates), 1)
	assert.Empty(t, g.Objects(d.URI, vocab.IFCGlobalID))
	assert.Empty(t, g.Objects(d.URI, vocab.HasName))

	for param, want := range map[string]string{
		"param_isStructural":    "false",
		"param_damageLocatedOn": "elsewhere",
		"param_hasCoordinates":  "0 0 0",
		"param_ifcGlobalId":     "other",
		"param_hasName":         "shadow",
	} {
		v, ok := g.Value(d.URI, vocab.Cdo(param))
		require.True(t, ok, param)
		assert.Equal(t, rdf.Literal(want, rdf.XSDString), v, param)
	}
}

func TestConfiguredPredicateCannotTargetReservedName(t *testing.T) {
	p := newProjector(Options{ParameterPredicates: map[string]string{"where": "damageLocatedOn"}})
	snap := p.Project([]damage.Detection{
		det("crack", damage.ElementBeam, beamGUID, damage.Parameters{"where": "roof"}),
	})
	d := snap.Damages[0]
	assert.Equal(t, []rdf.Term{d.Element}, snap.Graph.Objects(d.URI, vocab.DamageLocatedOn))
	assert.True(t, snap.Graph.Has(d.URI, vocab.Cdo("param_where"), rdf.Literal("roof", rdf.XSDString)))

	_, err := ParseConfig([]byte("parameter_predicates:\n  where: isStructural\n"))
	assert.Error(t, err)
}

func TestEveryDamageHasExactlyOneLocation(t *testing.T) {
	dets := append(batch(),
		det("crack", damage.ElementColumn, columnGUID, damage.Parameters{"damageLocatedOn": "beam"}),
		det("spalling", damage.ElementBeam, beamGUID, damage.Parameters{"damage located on": "x"}),
	)
	snap := newProjector(Options{}).Project(dets)
	g := snap.Graph

	elements := map[rdf.Term]bool{}
	for _, e := range snap.Elements {
		elements[e.URI] = true
	}
	damages := map[rdf.Term]bool{}
	for _, d := range snap.Damages {
		damages[d.URI] = true
	}

	located := g.Subjects(vocab.DamageLocatedOn, rdf.Term{})
	require.Len(t, located, len(snap.Damages))
	for _, s := range located {
		assert.True(t, damages[s], s.Value)
		targets := g.Objects(s, vocab.DamageLocatedOn)
		require.Len(t, targets, 1, s.Value)
		assert.True(t, targets[0].IsIRI(), s.Value)
		assert.True(t, elements[targets[0]], s.Value)
	}
}

func TestInspectionStatusPredicate(t *testing.T) {
	snap := newProjector(Options{}).Project([]damage.Detection{
		det("crack", damage.ElementBeam, beamGUID, damage.Parameters{"inspection_status": "pending"}),
	})
	v, ok := snap.Graph.Value(snap.Damages[0].URI, vocab.HasInspection)
	require.True(t, ok)
	assert.Equal(t, rdf.Literal("pending", rdf.XSDString), v)
}
