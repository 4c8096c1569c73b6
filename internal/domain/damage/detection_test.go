package damage

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inferenceFixture = `{
  "inference_results": [
    {
      "image_filename": "img_0001.jpg",
      "detections": [
        {
          "damage_class": "crack",
          "damage_parameters": {"width": 0.35, "depth": 12, "severity_level": "High", "inspection_status": "open", "note": null},
          "damage_location_3D": [{"x": 1, "y": 2, "z": 3}, [4, 5, 6]],
          "damage_location_2D": [[10, 20], {"x": 11, "y": 21}],
          "ifc_element": "Beam",
          "ifc_guid": "3k9HsYt7n9fhP5v$yY1B2a"
        },
        {
          "damage_class": "SPALLING",
          "damage_parameters": {"verified": true, "extent": {"a": 1}},
          "ifc_element": "IfcColumn",
          "ifc_guid": " 2Yh5Xdr4a7b97Xj1KdfkZe "
        }
      ]
    }
  ]
}`

func TestDecodeInference(t *testing.T) {
	dets, err := DecodeInference(strings.NewReader(inferenceFixture))
	require.NoError(t, err)
	require.Len(t, dets, 2)

	first := dets[0]
	assert.Equal(t, ClassCrack, first.DamageClass)
	assert.Equal(t, "img_0001.jpg", first.Source)
	assert.Equal(t, ElementBeam, first.LocatedElement.ElementType)
	assert.Equal(t, []Point3D{{1, 2, 3}, {4, 5, 6}}, first.Location3D)
	assert.Equal(t, []Point2D{{10, 20}, {11, 21}}, first.Location2D)
	assert.Equal(t, 0.35, first.Parameters["width"])
	assert.Equal(t, "High", first.Parameters["severity_level"])
	_, hasNote := first.Parameters["note"]
	assert.False(t, hasNote, "null parameters are dropped")

	second := dets[1]
	assert.Equal(t, ClassSpalling, second.DamageClass)
	assert.Equal(t, ElementColumn, second.LocatedElement.ElementType)
	assert.Equal(t, "2Yh5Xdr4a7b97Xj1KdfkZe", second.LocatedElement.PersistentID)
	assert.Equal(t, true, second.Parameters["verified"])
	assert.Equal(t, `{"a": 1}`, second.Parameters["extent"])
}

func TestDecodeInferenceRejectsBadPoint(t *testing.T) {
	_, err := DecodeInference(strings.NewReader(`{"inference_results":[{"detections":[{"damage_location_3D":[[1,2]]}]}]}`))
	require.Error(t, err)
}

func TestNormalizeClass(t *testing.T) {
	assert.Equal(t, ClassCrack, NormalizeClass("CRACK"))
	assert.Equal(t, ClassExposedRebar, NormalizeClass("exposedrebar"))
	assert.Equal(t, DamageClass("Delamination"), NormalizeClass(" delamination "))
	assert.Equal(t, DamageClass(""), NormalizeClass("  "))
}

func TestParseElementType(t *testing.T) {
	for _, raw := range []string{"wall", "Wall", "IFCWALL", "IfcWall"} {
		got, ok := ParseElementType(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, ElementWall, got, raw)
	}
	_, ok := ParseElementType("Roof")
	assert.False(t, ok)
	assert.Equal(t, "IfcSlab", ElementSlab.IFCClass())
}

func TestValidate(t *testing.T) {
	valid := Detection{
		DamageClass:    ClassCrack,
		LocatedElement: BuildingElementRef{ElementType: ElementBeam, PersistentID: "guid"},
	}
	require.NoError(t, valid.Validate(0))

	cases := map[string]struct {
		det   Detection
		field string
	}{
		"missing class": {Detection{LocatedElement: valid.LocatedElement}, "damage_class"},
		"missing guid":  {Detection{DamageClass: ClassCrack, LocatedElement: BuildingElementRef{ElementType: ElementBeam}}, "ifc_guid"},
		"unknown type":  {Detection{DamageClass: ClassCrack, LocatedElement: BuildingElementRef{ElementType: "Roof", PersistentID: "g"}}, "ifc_element"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.det.Validate(3)
			var md *MalformedDetection
			require.True(t, errors.As(err, &md))
			assert.Equal(t, tc.field, md.Field)
			assert.Equal(t, 3, md.Index)
		})
	}
}

func TestParametersText(t *testing.T) {
	p := Parameters{"severity": "low", "width": 0.5, "flag": true}
	got, ok := p.Text("severity_level", "severity")
	assert.True(t, ok)
	assert.Equal(t, "low", got)
	got, _ = p.Text("width")
	assert.Equal(t, "0.5", got)
	_, ok = p.Text("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"flag", "severity", "width"}, p.SortedKeys())
}
