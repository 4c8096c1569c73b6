package ifc

import "strings"

// entitySchema lists the IFC4 attributes of an entity in STEP order.
type entitySchema struct {
	attrs    []string
	required map[string]bool
}

var (
	rootAttrs    = []string{"GlobalId", "OwnerHistory", "Name", "Description"}
	objectAttrs  = append(append([]string{}, rootAttrs...), "ObjectType")
	productAttrs = append(append([]string{}, objectAttrs...), "ObjectPlacement", "Representation")
	elementAttrs = append(append([]string{}, productAttrs...), "Tag", "PredefinedType")
	spatialAttrs = append(append([]string{}, productAttrs...), "LongName", "CompositionType")
)

func attrs(base []string, extra ...string) []string {
	return append(append([]string{}, base...), extra...)
}

func req(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

var schemas = map[string]entitySchema{
	"IFCPROJECT": {
		attrs:    attrs(objectAttrs, "LongName", "Phase", "RepresentationContexts", "UnitsInContext"),
		required: req("GlobalId"),
	},
	"IFCSITE": {
		attrs:    attrs(spatialAttrs, "RefLatitude", "RefLongitude", "RefElevation", "LandTitleNumber", "SiteAddress"),
		required: req("GlobalId"),
	},
	"IFCBUILDING": {
		attrs:    attrs(spatialAttrs, "ElevationOfRefHeight", "ElevationOfTerrain", "BuildingAddress"),
		required: req("GlobalId"),
	},
	"IFCBUILDINGSTOREY": {
		attrs:    attrs(spatialAttrs, "Elevation"),
		required: req("GlobalId"),
	},
	"IFCBEAM":    {attrs: elementAttrs, required: req("GlobalId")},
	"IFCCOLUMN":  {attrs: elementAttrs, required: req("GlobalId")},
	"IFCWALL":    {attrs: elementAttrs, required: req("GlobalId")},
	"IFCSLAB":    {attrs: elementAttrs, required: req("GlobalId")},
	"IFCFOOTING": {attrs: elementAttrs, required: req("GlobalId")},
	"IFCMEMBER":  {attrs: elementAttrs, required: req("GlobalId")},
	"IFCPROXY": {
		attrs:    attrs(productAttrs, "ProxyType", "Tag"),
		required: req("GlobalId", "ProxyType"),
	},
	"IFCPROPERTYSET": {
		attrs:    attrs(rootAttrs, "HasProperties"),
		required: req("GlobalId", "HasProperties"),
	},
	"IFCPROPERTYSINGLEVALUE": {
		attrs:    []string{"Name", "Description", "NominalValue", "Unit"},
		required: req("Name"),
	},
	"IFCRELDEFINESBYPROPERTIES": {
		attrs:    attrs(rootAttrs, "RelatedObjects", "RelatingPropertyDefinition"),
		required: req("GlobalId", "RelatedObjects", "RelatingPropertyDefinition"),
	},
	"IFCRELAGGREGATES": {
		attrs:    attrs(rootAttrs, "RelatingObject", "RelatedObjects"),
		required: req("GlobalId", "RelatingObject", "RelatedObjects"),
	},
	"IFCRELCONTAINEDINSPATIALSTRUCTURE": {
		attrs:    attrs(rootAttrs, "RelatedElements", "RelatingStructure"),
		required: req("GlobalId", "RelatedElements", "RelatingStructure"),
	},
}

func lookupSchema(entityType string) (entitySchema, string, bool) {
	key := strings.ToUpper(strings.TrimSpace(entityType))
	s, ok := schemas[key]
	return s, key, ok
}

// AttributeIndex returns the STEP position of attr for entityType.
func AttributeIndex(entityType, attr string) (int, bool) {
	s, _, ok := lookupSchema(entityType)
	if !ok {
		return 0, false
	}
	for i, a := range s.attrs {
		if a == attr {
			return i, true
		}
	}
	return 0, false
}

// rootTypes lists IfcRoot subtypes outside the attribute table that commonly appear in
// building models. IfcRelationship subtypes (IFCREL*) and type objects (*TYPE) are matched
// by name in IsRootType.
var rootTypes = map[string]bool{
	"IFCBEAMSTANDARDCASE": true, "IFCCOLUMNSTANDARDCASE": true, "IFCWALLSTANDARDCASE": true,
	"IFCWALLELEMENTEDCASE": true, "IFCSLABSTANDARDCASE": true, "IFCSLABELEMENTEDCASE": true,
	"IFCMEMBERSTANDARDCASE": true, "IFCPLATE": true, "IFCPLATESTANDARDCASE": true,
	"IFCBUILDINGELEMENTPROXY": true, "IFCBUILDINGELEMENTPART": true, "IFCELEMENTASSEMBLY": true,
	"IFCCHIMNEY": true, "IFCCOVERING": true, "IFCCURTAINWALL": true, "IFCDOOR": true,
	"IFCDOORSTANDARDCASE": true, "IFCWINDOW": true, "IFCWINDOWSTANDARDCASE": true,
	"IFCPILE": true, "IFCRAILING": true, "IFCRAMP": true, "IFCRAMPFLIGHT": true, "IFCROOF": true,
	"IFCSHADINGDEVICE": true, "IFCSTAIR": true, "IFCSTAIRFLIGHT": true,
	"IFCREINFORCINGBAR": true, "IFCREINFORCINGMESH": true, "IFCTENDON": true,
	"IFCTENDONANCHOR": true, "IFCDISCRETEACCESSORY": true, "IFCFASTENER": true,
	"IFCMECHANICALFASTENER": true, "IFCOPENINGELEMENT": true, "IFCOPENINGSTANDARDCASE": true,
	"IFCVOIDINGFEATURE": true, "IFCSURFACEFEATURE": true, "IFCPROJECTIONELEMENT": true,
	"IFCFURNISHINGELEMENT": true, "IFCFURNITURE": true, "IFCSYSTEMFURNITUREELEMENT": true,
	"IFCDISTRIBUTIONELEMENT": true, "IFCDISTRIBUTIONFLOWELEMENT": true,
	"IFCDISTRIBUTIONCONTROLELEMENT": true, "IFCDISTRIBUTIONPORT": true,
	"IFCFLOWSEGMENT": true, "IFCFLOWFITTING": true, "IFCFLOWTERMINAL": true,
	"IFCFLOWCONTROLLER": true, "IFCFLOWMOVINGDEVICE": true, "IFCFLOWSTORAGEDEVICE": true,
	"IFCFLOWTREATMENTDEVICE": true, "IFCENERGYCONVERSIONDEVICE": true,
	"IFCSPACE": true, "IFCEXTERNALSPATIALELEMENT": true, "IFCSPATIALZONE": true,
	"IFCZONE": true, "IFCGROUP": true, "IFCSYSTEM": true, "IFCBUILDINGSYSTEM": true,
	"IFCDISTRIBUTIONSYSTEM": true, "IFCSTRUCTURALANALYSISMODEL": true,
	"IFCANNOTATION": true, "IFCGRID": true, "IFCVIRTUALELEMENT": true,
	"IFCCIVILELEMENT": true, "IFCGEOGRAPHICELEMENT": true, "IFCTRANSPORTELEMENT": true,
	"IFCPROJECTLIBRARY": true, "IFCACTOR": true, "IFCOCCUPANT": true, "IFCCONTROL": true,
	"IFCTASK": true, "IFCPROCEDURE": true, "IFCEVENT": true, "IFCWORKPLAN": true,
	"IFCWORKSCHEDULE": true, "IFCCOSTITEM": true, "IFCCOSTSCHEDULE": true,
	"IFCRESOURCE": true, "IFCCONSTRUCTIONMATERIALRESOURCE": true,
	"IFCELEMENTQUANTITY": true, "IFCPROPERTYSETTEMPLATE": true,
	"IFCSIMPLEPROPERTYTEMPLATE": true, "IFCCOMPLEXPROPERTYTEMPLATE": true,
	"IFCDOORLININGPROPERTIES": true, "IFCDOORPANELPROPERTIES": true,
	"IFCWINDOWLININGPROPERTIES": true, "IFCWINDOWPANELPROPERTIES": true,
	"IFCPERMEABLECOVERINGPROPERTIES": true, "IFCREINFORCEMENTDEFINITIONPROPERTIES": true,
}

// IsRootType reports whether entityType is an IfcRoot subtype, i.e. carries a GlobalId as its
// first attribute.
func IsRootType(entityType string) bool {
	key := strings.ToUpper(strings.TrimSpace(entityType))
	if s, ok := schemas[key]; ok {
		return len(s.attrs) > 0 && s.attrs[0] == "GlobalId"
	}
	if rootTypes[key] {
		return true
	}
	return strings.HasPrefix(key, "IFCREL") || (strings.HasSuffix(key, "TYPE") && key != "IFCTYPE")
}
