package ifc

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalIFC = `ISO-10303-21;
HEADER;
FILE_DESCRIPTION(('ViewDefinition [CoordinationView]'),'2;1');
FILE_NAME('example.ifc','2024-01-01T00:00:00',(''),(''),'x','y','');
FILE_SCHEMA(('IFC4'));
ENDSEC;
DATA;
/* a comment; with a semicolon */
#1= IFCBEAM('3k9HsYt7n9fhP5v$yY1B2a',$,'Main Beam 1',$,$,$,$,$,$);
#2=IFCWALL('1AbcDeFgHiJkLmNoPqRstU',$,'O''Brien\X2\00E9\X0\ wall',$,$,$,$,'T-1',.NOTDEFINED.);
#3=IFCPROPERTYSINGLEVALUE('Width',$,IFCREAL(0.35),$);
#4=IFCPROPERTYSINGLEVALUE('Count',$,IFCINTEGER(-12),$);
#5=IFCPROPERTYSET('0YvctVUKr0kugbFTf53O9L',$,'Pset',$,(#3,#4));
#6=(IFCNAMEDUNIT(*,.LENGTHUNIT.)IFCSIUNIT(.MILLI.,.METRE.));
#7=IFCCARTESIANPOINT((0.,1.5E2,-3.));
ENDSEC;
END-ISO-10303-21;
`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(minimalIFC))
	require.NoError(t, err)
	assert.Equal(t, "IFC4", m.Schema)
	assert.Equal(t, 7, m.Len())

	beam, ok := m.FindByID("3k9HsYt7n9fhP5v$yY1B2a")
	require.True(t, ok)
	assert.Equal(t, "IFCBEAM", beam.Type)
	assert.Equal(t, "Main Beam 1", beam.Name())

	wall, ok := m.FindByID("1AbcDeFgHiJkLmNoPqRstU")
	require.True(t, ok)
	assert.Equal(t, "O'Briené wall", wall.Name())
	tag, _ := wall.Attr("Tag")
	assert.Equal(t, String("T-1"), tag)
	pt, _ := wall.Attr("PredefinedType")
	assert.Equal(t, Enum("NOTDEFINED"), pt)

	prop, _ := m.Entity(3)
	assert.Equal(t, Typed{Type: "IFCREAL", Value: Real(0.35)}, prop.Params[2])
	count, _ := m.Entity(4)
	assert.Equal(t, Typed{Type: "IFCINTEGER", Value: Integer(-12)}, count.Params[2])

	pset, _ := m.Entity(5)
	assert.Equal(t, Refs(3, 4), pset.Params[4])

	complexUnit, _ := m.Entity(6)
	assert.NotEmpty(t, complexUnit.Raw)

	point, _ := m.Entity(7)
	assert.Equal(t, List{List{Real(0), Real(150), Real(-3)}}, List(point.Params))

	_, ok = m.FindByID("missing")
	assert.False(t, ok)
}

func TestWriteRoundTrip(t *testing.T) {
	m, err := Parse(strings.NewReader(minimalIFC))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "ISO-10303-21;\nHEADER;\n"))
	assert.Contains(t, out, `#2=IFCWALL('1AbcDeFgHiJkLmNoPqRstU',$,'O''Brien\X2\00E9\X0\ wall',$,$,$,$,'T-1',.NOTDEFINED.);`)
	assert.Contains(t, out, "#7=IFCCARTESIANPOINT((0.,150.,-3.));")
	assert.Contains(t, out, "#6=(IFCNAMEDUNIT(*,.LENGTHUNIT.)IFCSIUNIT(.MILLI.,.METRE.));")

	again, err := Parse(strings.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, m.Len(), again.Len())
	for i, e := range m.Entities() {
		assert.Equal(t, e, again.Entities()[i])
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no preamble":     "HEADER;ENDSEC;",
		"no end":          "ISO-10303-21;DATA;#1=IFCBEAM($);ENDSEC;",
		"bad string":      "ISO-10303-21;DATA;#1=IFCBEAM('x);ENDSEC;END-ISO-10303-21;",
		"duplicate":       "ISO-10303-21;DATA;#1=IFCBEAM($);#1=IFCBEAM($);ENDSEC;END-ISO-10303-21;",
		"bad instance":    "ISO-10303-21;DATA;IFCBEAM($);ENDSEC;END-ISO-10303-21;",
		"outside section": "ISO-10303-21;#1=IFCBEAM($);END-ISO-10303-21;",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestCreateEntity(t *testing.T) {
	m := NewModel("")
	beam, err := m.CreateEntity("IfcBeam", Fields{"GlobalId": String(SampleBeamID), "Name": String("B")})
	require.NoError(t, err)
	assert.Equal(t, 1, beam.ID)
	assert.Equal(t, "IFCBEAM", beam.Type)
	assert.Len(t, beam.Params, 9)

	proxy, err := m.CreateEntity("IFCPROXY", Fields{
		"GlobalId":  String(m.NewGlobalID()),
		"ProxyType": Enum("NOTDEFINED"),
		"Tag":       String("http://example.org/damageInstances#Crack_001"),
	})
	require.NoError(t, err)
	pt, _ := proxy.Attr("ProxyType")
	assert.Equal(t, Enum("NOTDEFINED"), pt)

	var se *SchemaError
	_, err = m.CreateEntity("IFCDOOR", Fields{})
	require.True(t, errors.As(err, &se))

	_, err = m.CreateEntity("IFCBEAM", Fields{"GlobalId": String(m.NewGlobalID()), "Colour": String("red")})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Colour", se.Attr)

	_, err = m.CreateEntity("IFCPROXY", Fields{"GlobalId": String(m.NewGlobalID())})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "ProxyType", se.Attr)

	_, err = m.CreateEntity("IFCBEAM", Fields{"GlobalId": String(SampleBeamID)})
	require.True(t, errors.As(err, &se))

	_, err = m.CreateEntity("IFCRELAGGREGATES", Fields{
		"GlobalId":       String(m.NewGlobalID()),
		"RelatingObject": Ref(beam.ID),
		"RelatedObjects": Refs(99),
	})
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Error(), "#99")
}

func TestSavepointRollback(t *testing.T) {
	m, err := NewSampleModel()
	require.NoError(t, err)
	before := m.Len()
	sp := m.Savepoint()

	gid := m.NewGlobalID()
	created, err := m.CreateEntity("IFCPROXY", Fields{"GlobalId": String(gid), "ProxyType": Enum("NOTDEFINED")})
	require.NoError(t, err)
	_, ok := m.FindByID(gid)
	require.True(t, ok)

	m.RollbackTo(sp)
	assert.Equal(t, before, m.Len())
	_, ok = m.FindByID(gid)
	assert.False(t, ok)
	_, ok = m.Entity(created.ID)
	assert.False(t, ok)

	next, err := m.CreateEntity("IFCPROXY", Fields{"GlobalId": String(m.NewGlobalID()), "ProxyType": Enum("NOTDEFINED")})
	require.NoError(t, err)
	assert.Equal(t, created.ID, next.ID)
}

func TestSampleModel(t *testing.T) {
	m, err := NewSampleModel()
	require.NoError(t, err)
	for id, name := range map[string]string{
		SampleBeamID:   "Main Beam 1",
		SampleColumnID: "Corner Column",
		SampleWallID:   "South Wall",
		SampleSlabID:   "First Floor Slab",
	} {
		e, ok := m.FindByID(id)
		require.True(t, ok, id)
		assert.Equal(t, name, e.Name())
	}
	assert.Len(t, m.ByType("IfcRelAggregates"), 3)
	rel := m.ByType("IFCRELCONTAINEDINSPATIALSTRUCTURE")
	require.Len(t, rel, 1)
	beam, _ := m.FindByID(SampleBeamID)
	assert.Equal(t, []int{rel[0].ID}, m.Referrers(beam.ID))
}

func TestWriteFile(t *testing.T) {
	m, err := NewSampleModel()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sample.ifc")
	require.NoError(t, m.WriteFile(path))
	back, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, m.Len(), back.Len())
	_, ok := back.FindByID(SampleSlabID)
	assert.True(t, ok)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestGUID(t *testing.T) {
	u := uuid.New()
	id := CompressGUID(u)
	require.Len(t, id, 22)
	assert.True(t, ValidGlobalID(id))
	assert.Equal(t, id, CompressGUID(u))

	assert.Equal(t, "0000000000000000000000", CompressGUID(uuid.UUID{}))
	assert.False(t, ValidGlobalID("short"))
	assert.False(t, ValidGlobalID("3k9HsYt7n9fhP5v!yY1B2a"))
}

func TestFindByUUID(t *testing.T) {
	m := NewModel("")
	u := uuid.New()
	proxy, err := m.CreateEntity("IFCPROXY", Fields{"GlobalId": String(CompressGUID(u)), "ProxyType": Enum("NOTDEFINED")})
	require.NoError(t, err)
	got, ok := m.FindByID(u.String())
	require.True(t, ok)
	assert.Equal(t, proxy.ID, got.ID)
}

func TestOnlyRootEntitiesIndexedByGlobalID(t *testing.T) {
	src := strings.Replace(minimalIFC,
		"#7=IFCCARTESIANPOINT",
		"#8=IFCPROPERTYSINGLEVALUE('PropName4567890123456a',$,IFCLABEL('x'),$);\n#9=IFCWALLSTANDARDCASE('2Nn8sVdkz0pu4H3ecdKQlt',$,'Std',$,$,$,$,$,$);\n#10=IFCRELAGGREGATES('1Xy2sVdkz0pu4H3ecdKQlt',$,$,$,#1,(#9));\n#7=IFCCARTESIANPOINT", 1)
	m, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	_, ok := m.FindByID("PropName4567890123456a")
	assert.False(t, ok, "property names are not GlobalIds")
	prop, ok := m.Entity(8)
	require.True(t, ok)
	assert.Empty(t, prop.GlobalID())

	_, ok = m.FindByID("2Nn8sVdkz0pu4H3ecdKQlt")
	assert.True(t, ok)
	_, ok = m.FindByID("1Xy2sVdkz0pu4H3ecdKQlt")
	assert.True(t, ok)

	assert.True(t, IsRootType("IfcBeamType"))
	assert.False(t, IsRootType("IFCPERSON"))
}

func TestStringEncoding(t *testing.T) {
	for _, s := range []string{"plain", "it's", `back\slash`, "Größe", "emoji 🙂", "line\nbreak"} {
		enc := encodeString(s)
		dec, err := decodeString(enc)
		require.NoError(t, err, s)
		assert.Equal(t, s, dec)
	}
	dec, err := decodeString(`\X\E9t\S\i`)
	require.NoError(t, err)
	assert.Equal(t, "été", dec)
}

func TestFormatReal(t *testing.T) {
	assert.Equal(t, "12.", formatReal(12))
	assert.Equal(t, "0.35", formatReal(0.35))
	assert.Equal(t, "1.E+21", formatReal(1e21))
}
