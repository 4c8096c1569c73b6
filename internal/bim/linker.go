// Package bim attaches ontology damage individuals to the building elements of an IFC model.
package bim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yungbote/damagegraph-backend/internal/bim/ifc"
	"github.com/yungbote/damagegraph-backend/internal/ontology/rdf"
	"github.com/yungbote/damagegraph-backend/internal/ontology/vocab"
	"github.com/yungbote/damagegraph-backend/internal/platform/logger"
)

const (
	DamagePropertySet = "PSet_DamageProperties"
	DamageLabelSet    = "PSet_DamageLabels"
	proxyDescription  = "Damage instance from RDF"
)

// TripleSource is the read side of an ontology graph. *rdf.Graph implements it.
type TripleSource interface {
	Subjects(p, o rdf.Term) []rdf.Term
	Objects(s, p rdf.Term) []rdf.Term
	Value(s, p rdf.Term) (rdf.Term, bool)
}

// Model is the BIM side. *ifc.Model implements it.
type Model interface {
	FindByID(globalID string) (*ifc.Entity, bool)
	Entity(id int) (*ifc.Entity, bool)
	Referrers(id int) []int
	CreateEntity(entityType string, fields ifc.Fields) (*ifc.Entity, error)
	NewGlobalID() string
	Savepoint() ifc.Savepoint
	RollbackTo(sp ifc.Savepoint)
}

// UnresolvedElement reports a damage whose element is not in the model.
type UnresolvedElement struct {
	DamageURI    string `json:"damage_uri"`
	ElementURI   string `json:"element_uri,omitempty"`
	PersistentID string `json:"persistent_id,omitempty"`
}

func (e *UnresolvedElement) Error() string {
	if e == nil {
		return "unresolved element"
	}
	if e.PersistentID == "" {
		return fmt.Sprintf("damage %s: element has no ifcGlobalId", e.DamageURI)
	}
	return fmt.Sprintf("damage %s: element %s not found in model", e.DamageURI, e.PersistentID)
}

type FailedLink struct {
	DamageURI string `json:"damage_uri"`
	Error     string `json:"error"`
}

// DamageLink records the entities created for one damage.
type DamageLink struct {
	DamageURI       string `json:"damage_uri"`
	ElementGlobalID string `json:"element_global_id"`
	ProxyGlobalID   string `json:"proxy_global_id"`
	ProxyID         int    `json:"proxy_id"`
	PropertySetIDs  []int  `json:"property_set_ids"`
}

type LinkReport struct {
	CreatedProxyCount int                  `json:"created_proxy_count"`
	Skipped           []string             `json:"skipped"`
	Unresolved        []*UnresolvedElement `json:"unresolved"`
	// AlreadyLinked holds damage URIs whose proxy is already aggregated by their element.
	AlreadyLinked     []string             `json:"already_linked"`
	Failed            []FailedLink         `json:"failed"`
	Links             []DamageLink         `json:"links"`
}

type Linker struct {
	log *logger.Logger
}

func NewLinker(log *logger.Logger) *Linker {
	return &Linker{log: log.With("service", "BIMLinker")}
}

// damageRecord is what the linker reads from the ontology for one damage subject.
type damageRecord struct {
	uri         rdf.Term
	name        string
	classLabel  string
	width       *rdf.Term
	depth       *rdf.Term
	severity    *rdf.Term
	inspection  *rdf.Term
	coordinates *rdf.Term
	structural  *rdf.Term
}

// Link creates, for every damage located on an element present in the model, an IfcProxy,
// two property sets and their relationships. The model is edited in place; each damage is
// applied atomically through a savepoint.
func (l *Linker) Link(source TripleSource, model Model) (*LinkReport, error) {
	if source == nil || model == nil {
		return nil, fmt.Errorf("link: source and model are required")
	}
	report := &LinkReport{
		Skipped:       []string{},
		Unresolved:    []*UnresolvedElement{},
		AlreadyLinked: []string{},
		Failed:        []FailedLink{},
		Links:         []DamageLink{},
	}

	for _, subject := range source.Subjects(vocab.DamageLocatedOn, rdf.Term{}) {
		rec, ok := readDamage(source, subject)
		if !ok {
			continue
		}

		element, elementURI, guid := resolveElement(source, model, subject)
		if element == nil {
			ue := &UnresolvedElement{DamageURI: subject.Value, ElementURI: elementURI, PersistentID: guid}
			report.Unresolved = append(report.Unresolved, ue)
			report.Skipped = append(report.Skipped, guid)
			l.log.Warn("damage element not found, skipping", "damage", subject.Value, "global_id", guid)
			continue
		}
		if proxyID, ok := linkedProxy(model, element, subject.Value); ok {
			report.AlreadyLinked = append(report.AlreadyLinked, subject.Value)
			l.log.Info("damage already linked, skipping", "damage", subject.Value, "proxy_id", proxyID)
			continue
		}

		sp := model.Savepoint()
		link, err := l.attach(model, rec, element, guid)
		if err != nil {
			model.RollbackTo(sp)
			report.Failed = append(report.Failed, FailedLink{DamageURI: subject.Value, Error: err.Error()})
			l.log.Error("linking damage failed, rolled back", "damage", subject.Value, "error", err)
			continue
		}
		report.Links = append(report.Links, link)
		report.CreatedProxyCount++
	}

	l.log.Info("bim link complete",
		"proxies", report.CreatedProxyCount,
		"unresolved", len(report.Unresolved),
		"already_linked", len(report.AlreadyLinked),
		"failed", len(report.Failed),
	)
	return report, nil
}

// linkedProxy looks through the aggregations relating element for a proxy tagged with
// damageURI, so relinking an already linked model adds nothing.
func linkedProxy(model Model, element *ifc.Entity, damageURI string) (int, bool) {
	for _, rid := range model.Referrers(element.ID) {
		rel, ok := model.Entity(rid)
		if !ok || rel.Type != "IFCRELAGGREGATES" {
			continue
		}
		relating, _ := rel.Attr("RelatingObject")
		if id, ok := ifc.AsRef(relating); !ok || id != element.ID {
			continue
		}
		related, _ := rel.Attr("RelatedObjects")
		list, _ := related.(ifc.List)
		for _, v := range list {
			id, ok := ifc.AsRef(v)
			if !ok {
				continue
			}
			proxy, ok := model.Entity(id)
			if !ok || proxy.Type != "IFCPROXY" {
				continue
			}
			tag, _ := proxy.Attr("Tag")
			if s, _ := ifc.AsString(tag); s == damageURI {
				return proxy.ID, true
			}
		}
	}
	return 0, false
}

func readDamage(src TripleSource, subject rdf.Term) (damageRecord, bool) {
	var labels []string
	for _, t := range src.Objects(subject, vocab.Type) {
		if !t.IsIRI() || !strings.HasPrefix(t.Value, vocab.CDO) || vocab.IsElementClass(t) {
			continue
		}
		labels = append(labels, vocab.LocalName(t))
	}
	if len(labels) == 0 {
		return damageRecord{}, false
	}
	rec := damageRecord{
		uri:        subject,
		name:       vocab.LocalName(subject),
		classLabel: strings.Join(labels, ", "),
	}
	if v, ok := src.Value(subject, vocab.HasName); ok && strings.TrimSpace(v.Value) != "" {
		rec.name = v.Value
	}
	opt := func(p rdf.Term) *rdf.Term {
		if v, ok := src.Value(subject, p); ok {
			return &v
		}
		return nil
	}
	rec.width = opt(vocab.HasWidth)
	rec.depth = opt(vocab.HasDepth)
	rec.severity = opt(vocab.HasSeverity)
	rec.inspection = opt(vocab.HasInspection)
	rec.coordinates = opt(vocab.HasCoordinates)
	rec.structural = opt(vocab.IsStructural)
	return rec, true
}

// resolveElement follows damageLocatedOn to the first element carrying an ifcGlobalId.
func resolveElement(src TripleSource, model Model, subject rdf.Term) (*ifc.Entity, string, string) {
	for _, el := range src.Objects(subject, vocab.DamageLocatedOn) {
		gid, ok := src.Value(el, vocab.IFCGlobalID)
		if !ok {
			continue
		}
		guid := strings.TrimSpace(gid.Value)
		if guid == "" {
			continue
		}
		entity, found := model.FindByID(guid)
		if !found {
			return nil, el.Value, guid
		}
		return entity, el.Value, guid
	}
	var elementURI string
	if objs := src.Objects(subject, vocab.DamageLocatedOn); len(objs) > 0 {
		elementURI = objs[0].Value
	}
	return nil, elementURI, ""
}

func (l *Linker) attach(model Model, rec damageRecord, element *ifc.Entity, elementGUID string) (DamageLink, error) {
	link := DamageLink{DamageURI: rec.uri.Value, ElementGlobalID: elementGUID}

	proxyGUID := model.NewGlobalID()
	proxy, err := model.CreateEntity("IFCPROXY", ifc.Fields{
		"GlobalId":    ifc.String(proxyGUID),
		"Name":        ifc.String(rec.name),
		"Description": ifc.String(proxyDescription),
		"ObjectType":  ifc.String(rec.classLabel),
		"ProxyType":   ifc.Enum("NOTDEFINED"),
		"Tag":         ifc.String(rec.uri.Value),
	})
	if err != nil {
		return link, fmt.Errorf("create proxy: %w", err)
	}
	link.ProxyID = proxy.ID
	link.ProxyGlobalID = proxyGUID

	props := []namedValue{{"DamageClass", ifc.Label(rec.classLabel)}}
	if rec.width != nil {
		props = append(props, namedValue{"Width", measure(*rec.width)})
	}
	if rec.depth != nil {
		props = append(props, namedValue{"Depth", measure(*rec.depth)})
	}
	if rec.severity != nil {
		props = append(props, namedValue{"Severity", ifc.Label(rec.severity.Value)})
	}
	if rec.inspection != nil {
		props = append(props, namedValue{"InspectionStatus", ifc.Label(rec.inspection.Value)})
	}
	if rec.coordinates != nil {
		props = append(props, namedValue{"Coordinates", ifc.Text(rec.coordinates.Value)})
	}
	if rec.structural != nil {
		if b, err := strconv.ParseBool(rec.structural.Value); err == nil {
			props = append(props, namedValue{"IsStructural", ifc.BooleanValue(b)})
		}
	}

	damageSet, err := createPropertySet(model, DamagePropertySet, "Damage metadata", props)
	if err != nil {
		return link, err
	}
	if _, err := createDefinesByProperties(model, proxy.ID, damageSet.ID); err != nil {
		return link, err
	}

	labelSet, err := createPropertySet(model, DamageLabelSet, "Damage labels for element",
		[]namedValue{{"DamageClass", ifc.Label(rec.classLabel)}})
	if err != nil {
		return link, err
	}
	if _, err := createDefinesByProperties(model, element.ID, labelSet.ID); err != nil {
		return link, err
	}

	if _, err := model.CreateEntity("IFCRELAGGREGATES", ifc.Fields{
		"GlobalId":       ifc.String(model.NewGlobalID()),
		"RelatingObject": ifc.Ref(element.ID),
		"RelatedObjects": ifc.Refs(proxy.ID),
	}); err != nil {
		return link, fmt.Errorf("create aggregation: %w", err)
	}
	link.PropertySetIDs = []int{damageSet.ID, labelSet.ID}
	return link, nil
}

type namedValue struct {
	name  string
	value ifc.Value
}

func createPropertySet(model Model, name, description string, props []namedValue) (*ifc.Entity, error) {
	ids := make([]int, 0, len(props))
	for _, p := range props {
		e, err := model.CreateEntity("IFCPROPERTYSINGLEVALUE", ifc.Fields{
			"Name":         ifc.String(p.name),
			"NominalValue": p.value,
		})
		if err != nil {
			return nil, fmt.Errorf("create property %s.%s: %w", name, p.name, err)
		}
		ids = append(ids, e.ID)
	}
	set, err := model.CreateEntity("IFCPROPERTYSET", ifc.Fields{
		"GlobalId":      ifc.String(model.NewGlobalID()),
		"Name":          ifc.String(name),
		"Description":   ifc.String(description),
		"HasProperties": ifc.Refs(ids...),
	})
	if err != nil {
		return nil, fmt.Errorf("create property set %s: %w", name, err)
	}
	return set, nil
}

func createDefinesByProperties(model Model, objectID, setID int) (*ifc.Entity, error) {
	rel, err := model.CreateEntity("IFCRELDEFINESBYPROPERTIES", ifc.Fields{
		"GlobalId":                   ifc.String(model.NewGlobalID()),
		"RelatedObjects":             ifc.Refs(objectID),
		"RelatingPropertyDefinition": ifc.Ref(setID),
	})
	if err != nil {
		return nil, fmt.Errorf("create property relationship: %w", err)
	}
	return rel, nil
}

// measure keeps numeric literals numeric and falls back to a label.
func measure(t rdf.Term) ifc.Value {
	if f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64); err == nil {
		return ifc.RealValue(f)
	}
	return ifc.Label(t.Value)
}
