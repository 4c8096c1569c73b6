package ifc

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Entity struct {
	ID     int
	Type   string
	Params []Value
	// Raw is the verbatim source of instances the parser keeps opaque (complex instances).
	Raw string
}

// Attr returns a named attribute using the IFC4 attribute table.
func (e *Entity) Attr(name string) (Value, bool) {
	idx, ok := AttributeIndex(e.Type, name)
	if !ok || idx >= len(e.Params) {
		return nil, false
	}
	return e.Params[idx], true
}

// GlobalID returns the first attribute of an IfcRoot subtype when it is a well-formed GlobalId.
func (e *Entity) GlobalID() string {
	if len(e.Params) == 0 || !IsRootType(e.Type) {
		return ""
	}
	s, ok := e.Params[0].(String)
	if !ok || !ValidGlobalID(string(s)) {
		return ""
	}
	return string(s)
}

func (e *Entity) Name() string {
	v, ok := e.Attr("Name")
	if !ok {
		return ""
	}
	s, _ := AsString(v)
	return s
}

// Fields maps attribute names to values for CreateEntity.
type Fields map[string]Value

// SchemaError is returned by CreateEntity for inputs the attribute table rejects.
type SchemaError struct {
	Type   string
	Attr   string
	Reason string
}

func (e *SchemaError) Error() string {
	if e == nil {
		return "ifc schema error"
	}
	if e.Attr == "" {
		return fmt.Sprintf("ifc %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("ifc %s.%s: %s", e.Type, e.Attr, e.Reason)
}

type Model struct {
	Schema string
	header []string

	entities   []*Entity
	byID       map[int]*Entity
	byGlobalID map[string]*Entity
	nextID     int
}

// NewModel creates an empty model with a minimal header.
func NewModel(schema string) *Model {
	if schema == "" {
		schema = "IFC4"
	}
	m := newEmptyModel()
	m.Schema = schema
	m.header = []string{
		"FILE_DESCRIPTION(('ViewDefinition [CoordinationView]'),'2;1')",
		fmt.Sprintf("FILE_NAME('model.ifc','%s',(''),(''),'damagegraph','damagegraph','')", time.Now().UTC().Format("2006-01-02T15:04:05")),
		fmt.Sprintf("FILE_SCHEMA(('%s'))", schema),
	}
	return m
}

func newEmptyModel() *Model {
	return &Model{
		byID:       make(map[int]*Entity),
		byGlobalID: make(map[string]*Entity),
		nextID:     1,
	}
}

func (m *Model) Header() []string {
	return append([]string(nil), m.header...)
}

func (m *Model) Len() int { return len(m.entities) }

func (m *Model) Entities() []*Entity {
	return append([]*Entity(nil), m.entities...)
}

func (m *Model) Entity(id int) (*Entity, bool) {
	e, ok := m.byID[id]
	return e, ok
}

// ByType returns entities of the given type in file order.
func (m *Model) ByType(entityType string) []*Entity {
	key := strings.ToUpper(entityType)
	var out []*Entity
	for _, e := range m.entities {
		if e.Type == key {
			out = append(out, e)
		}
	}
	return out
}

// FindByID looks an entity up by its GlobalId. A canonical UUID is accepted too and looked up
// in its compressed form.
func (m *Model) FindByID(globalID string) (*Entity, bool) {
	id := strings.TrimSpace(globalID)
	if len(id) == 36 {
		if u, err := uuid.Parse(id); err == nil {
			id = CompressGUID(u)
		}
	}
	e, ok := m.byGlobalID[id]
	return e, ok
}

// NewGlobalID mints a GlobalId not yet used in this model.
func (m *Model) NewGlobalID() string {
	for {
		id := CompressGUID(uuid.New())
		if _, taken := m.byGlobalID[id]; !taken {
			return id
		}
	}
}

// CreateEntity appends a new instance. Attributes are placed in IFC4 order; unknown types,
// unknown attributes, missing required attributes, reused GlobalIds and dangling references
// are rejected.
func (m *Model) CreateEntity(entityType string, fields Fields) (*Entity, error) {
	schema, key, ok := lookupSchema(entityType)
	if !ok {
		return nil, &SchemaError{Type: entityType, Reason: "unsupported entity type"}
	}
	known := make(map[string]int, len(schema.attrs))
	for i, a := range schema.attrs {
		known[a] = i
	}
	params := make([]Value, len(schema.attrs))
	for i := range params {
		params[i] = Null
	}
	for name, v := range fields {
		idx, ok := known[name]
		if !ok {
			return nil, &SchemaError{Type: key, Attr: name, Reason: "unknown attribute"}
		}
		if v == nil {
			continue
		}
		if err := m.checkRefs(v); err != nil {
			return nil, &SchemaError{Type: key, Attr: name, Reason: err.Error()}
		}
		params[idx] = v
	}
	for name := range schema.required {
		if params[known[name]] == Null {
			return nil, &SchemaError{Type: key, Attr: name, Reason: "required attribute missing"}
		}
	}
	if gv, ok := fields["GlobalId"]; ok {
		gid, isStr := gv.(String)
		if !isStr || !ValidGlobalID(string(gid)) {
			return nil, &SchemaError{Type: key, Attr: "GlobalId", Reason: "not a 22-character IFC GlobalId"}
		}
		if _, taken := m.byGlobalID[string(gid)]; taken {
			return nil, &SchemaError{Type: key, Attr: "GlobalId", Reason: "GlobalId already in use"}
		}
	}
	e := &Entity{ID: m.nextID, Type: key, Params: params}
	m.insert(e)
	return e, nil
}

func (m *Model) checkRefs(v Value) error {
	switch t := v.(type) {
	case Ref:
		if _, ok := m.byID[int(t)]; !ok {
			return fmt.Errorf("reference #%d does not exist", int(t))
		}
	case List:
		for _, item := range t {
			if err := m.checkRefs(item); err != nil {
				return err
			}
		}
	case Typed:
		return m.checkRefs(t.Value)
	}
	return nil
}

func (m *Model) insert(e *Entity) {
	m.entities = append(m.entities, e)
	m.byID[e.ID] = e
	if gid := e.GlobalID(); gid != "" {
		if _, taken := m.byGlobalID[gid]; !taken {
			m.byGlobalID[gid] = e
		}
	}
	if e.ID >= m.nextID {
		m.nextID = e.ID + 1
	}
}

// Savepoint marks the current end of the model for RollbackTo.
type Savepoint struct {
	count  int
	nextID int
}

func (m *Model) Savepoint() Savepoint {
	return Savepoint{count: len(m.entities), nextID: m.nextID}
}

// RollbackTo removes every entity created after sp.
func (m *Model) RollbackTo(sp Savepoint) {
	if sp.count >= len(m.entities) {
		return
	}
	for _, e := range m.entities[sp.count:] {
		delete(m.byID, e.ID)
		if gid := e.GlobalID(); gid != "" && m.byGlobalID[gid] == e {
			delete(m.byGlobalID, gid)
		}
	}
	m.entities = m.entities[:sp.count]
	m.nextID = sp.nextID
}

// Referrers returns the ids of entities that reference id, sorted.
func (m *Model) Referrers(id int) []int {
	var out []int
	for _, e := range m.entities {
		for _, p := range e.Params {
			if refersTo(p, id) {
				out = append(out, e.ID)
				break
			}
		}
	}
	sort.Ints(out)
	return out
}

func refersTo(v Value, id int) bool {
	switch t := v.(type) {
	case Ref:
		return int(t) == id
	case List:
		for _, item := range t {
			if refersTo(item, id) {
				return true
			}
		}
	case Typed:
		return refersTo(t.Value, id)
	}
	return false
}
