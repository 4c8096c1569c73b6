package ifc

import "fmt"

// Sample element GlobalIds; detections in fixtures and tests point at these.
const (
	SampleBeamID   = "3k9HsYt7n9fhP5v$yY1B2a"
	SampleColumnID = "2Yh5Xdr4a7b97Xj1KdfkZe"
	SampleWallID   = "1AbcDeFgHiJkLmNoPqRstU"
	SampleSlabID   = "4WxyZ12OP34QrSt56UvWxy"
)

// NewSampleModel builds a project/site/building/storey hierarchy holding one beam, column,
// wall and slab with fixed GlobalIds.
func NewSampleModel() (*Model, error) {
	m := NewModel("IFC4")
	b := &sampleBuilder{m: m}

	project := b.create("IFCPROJECT", Fields{"GlobalId": String(m.NewGlobalID()), "Name": String("Example Project")})
	site := b.create("IFCSITE", Fields{"GlobalId": String(m.NewGlobalID()), "Name": String("Example Site"), "CompositionType": Enum("ELEMENT")})
	building := b.create("IFCBUILDING", Fields{"GlobalId": String(m.NewGlobalID()), "Name": String("Example Building"), "CompositionType": Enum("ELEMENT")})
	storey := b.create("IFCBUILDINGSTOREY", Fields{"GlobalId": String(m.NewGlobalID()), "Name": String("Storey 1"), "CompositionType": Enum("ELEMENT")})

	b.aggregate(project, site)
	b.aggregate(site, building)
	b.aggregate(building, storey)

	elements := []struct {
		typ, id, name string
	}{
		{"IFCBEAM", SampleBeamID, "Main Beam 1"},
		{"IFCCOLUMN", SampleColumnID, "Corner Column"},
		{"IFCWALL", SampleWallID, "South Wall"},
		{"IFCSLAB", SampleSlabID, "First Floor Slab"},
	}
	var ids []int
	for _, el := range elements {
		e := b.create(el.typ, Fields{"GlobalId": String(el.id), "Name": String(el.name)})
		if e != nil {
			ids = append(ids, e.ID)
		}
	}
	if b.err == nil {
		b.create("IFCRELCONTAINEDINSPATIALSTRUCTURE", Fields{
			"GlobalId":          String(m.NewGlobalID()),
			"RelatedElements":   Refs(ids...),
			"RelatingStructure": Ref(storey.ID),
		})
	}
	if b.err != nil {
		return nil, fmt.Errorf("build sample model: %w", b.err)
	}
	return m, nil
}

type sampleBuilder struct {
	m   *Model
	err error
}

func (b *sampleBuilder) create(typ string, fields Fields) *Entity {
	if b.err != nil {
		return nil
	}
	e, err := b.m.CreateEntity(typ, fields)
	if err != nil {
		b.err = err
		return nil
	}
	return e
}

func (b *sampleBuilder) aggregate(parent, child *Entity) {
	if b.err != nil || parent == nil || child == nil {
		return
	}
	b.create("IFCRELAGGREGATES", Fields{
		"GlobalId":       String(b.m.NewGlobalID()),
		"RelatingObject": Ref(parent.ID),
		"RelatedObjects": Refs(child.ID),
	})
}
