package temporal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Document is the uploaded Damage->Epoch payload: {"Damage_001": {"Metadata": {...}, "Epochs": [...]}}.
// Entries keep the key order of the source document.
type Document struct {
	Entries []RawEntry
}

type RawEntry struct {
	Key   string
	Value json.RawMessage
}

// InvalidDamageStructure is raised for an entry lacking Metadata or Epochs.
type InvalidDamageStructure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func (e *InvalidDamageStructure) Error() string {
	if e == nil {
		return "invalid damage structure"
	}
	return fmt.Sprintf("invalid structure under %q: %s", e.Key, e.Reason)
}

// DamageRecord is a validated entry ready for the graph.
type DamageRecord struct {
	Key      string
	DamageID string
	Metadata Metadata
	Epochs   []EpochRecord
}

// Metadata fields are optional; nil means absent or null.
type Metadata struct {
	DamageID      any
	DamageType    any
	ImageFilename any
	IFCFilepath   any
	IFCData       any
	IFCElement    any
	IFCGUID       any
}

type EpochRecord struct {
	// Position is the 1-based index of the epoch in the input array.
	Position int
	EpochID  string

	Epoch                     any
	StoragePath               any
	ReferenceCoOrdinateSystem any
	LengthM                   any
	WidthMM                   any
	Position3DAxis            any
	MaxWidth3DPosition        any
}

// DecodeDocument reads the top-level object without losing key order.
func DecodeDocument(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode damage document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("decode damage document: top level must be an object")
	}
	doc := &Document{}
	// a repeated key keeps its first position and its last value
	pos := map[string]int{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode damage document: %w", err)
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode damage document %q: %w", key, err)
		}
		if i, dup := pos[key]; dup {
			doc.Entries[i].Value = raw
			continue
		}
		pos[key] = len(doc.Entries)
		doc.Entries = append(doc.Entries, RawEntry{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode damage document: %w", err)
	}
	return doc, nil
}

// Validate is a total pass over every entry; it never touches a store. Valid and invalid
// entries both keep document order.
func (d *Document) Validate() ([]DamageRecord, []*InvalidDamageStructure) {
	if d == nil {
		return nil, nil
	}
	records := make([]DamageRecord, 0, len(d.Entries))
	var invalid []*InvalidDamageStructure
	for _, e := range d.Entries {
		rec, err := parseEntry(e)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		records = append(records, rec)
	}
	return records, invalid
}

func parseEntry(e RawEntry) (DamageRecord, *InvalidDamageStructure) {
	fail := func(reason string) (DamageRecord, *InvalidDamageStructure) {
		return DamageRecord{}, &InvalidDamageStructure{Key: e.Key, Reason: reason}
	}
	obj, ok := decodeObject(e.Value)
	if !ok {
		return fail("entry must be an object")
	}
	rawMeta, hasMeta := obj["Metadata"]
	rawEpochs, hasEpochs := obj["Epochs"]
	if !hasMeta || !hasEpochs || isNull(rawMeta) || isNull(rawEpochs) {
		return fail("required: Metadata + Epochs")
	}
	meta, ok := decodeObject(rawMeta)
	if !ok {
		return fail("Metadata must be an object")
	}
	var epochs []json.RawMessage
	if err := json.Unmarshal(rawEpochs, &epochs); err != nil {
		return fail("Epochs must be an array")
	}

	rec := DamageRecord{
		Key: e.Key,
		Metadata: Metadata{
			DamageID:      scalar(meta["Damage_ID"]),
			DamageType:    scalar(meta["DamageType"]),
			ImageFilename: scalar(meta["Image_Filename"]),
			IFCFilepath:   scalar(meta["IFC_Filepath"]),
			IFCData:       scalar(meta["IFC_Data"]),
			IFCElement:    scalar(meta["IFC_Element"]),
			IFCGUID:       scalar(meta["IFC_GUID"]),
		},
	}
	rec.DamageID = e.Key
	if id := textOf(rec.Metadata.DamageID); id != "" {
		rec.DamageID = id
	}

	rec.Epochs = make([]EpochRecord, 0, len(epochs))
	for i, rawEpoch := range epochs {
		ep, ok := decodeObject(rawEpoch)
		if !ok {
			return fail(fmt.Sprintf("Epochs[%d] must be an object", i))
		}
		er := EpochRecord{
			Position:                  i + 1,
			Epoch:                     scalar(ep["Epoch"]),
			StoragePath:               scalar(ep["Storage_Path"]),
			ReferenceCoOrdinateSystem: scalar(ep["ReferenceCoOrdinateSystem"]),
			LengthM:                   scalar(ep["Length_m"]),
			WidthMM:                   scalar(ep["Width_mm"]),
			Position3DAxis:            opaque(ep["Position_3D_Axis"]),
			MaxWidth3DPosition:        opaque(ep["Max_Width_3D_Position"]),
		}
		num := textOf(er.Epoch)
		if num == "" {
			num = strconv.Itoa(er.Position)
		}
		er.EpochID = rec.DamageID + "_epoch_" + num
		rec.Epochs = append(rec.Epochs, er)
	}
	return rec, nil
}

// DamageProperties is the fixed projection onto the Damage node.
func (r DamageRecord) DamageProperties() map[string]any {
	return map[string]any{
		"Damage_ID":      r.DamageID,
		"DamageType":     r.Metadata.DamageType,
		"Image_Filename": r.Metadata.ImageFilename,
		"IFC_Filepath":   r.Metadata.IFCFilepath,
		"IFC_Data":       r.Metadata.IFCData,
		"IFC_Element":    r.Metadata.IFCElement,
		"IFC_GUID":       r.Metadata.IFCGUID,
	}
}

// Properties is the fixed projection onto the Epoch node.
func (e EpochRecord) Properties() map[string]any {
	return map[string]any{
		"epoch_id":                  e.EpochID,
		"Epoch":                     e.Epoch,
		"Storage_Path":              e.StoragePath,
		"ReferenceCoOrdinateSystem": e.ReferenceCoOrdinateSystem,
		"Length_m":                  e.LengthM,
		"Width_mm":                  e.WidthMM,
		"Position_3D_Axis":          e.Position3DAxis,
		"Max_Width_3D_Position":     e.MaxWidth3DPosition,
	}
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// scalar converts a JSON value into a graph-property value: string, int64, float64, bool,
// nil, or compact JSON text for objects and arrays.
func scalar(raw json.RawMessage) any {
	if isNull(raw) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case string, bool:
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return opaque(raw)
	}
}

// opaque serialises any JSON value to a single compact string; nil when absent.
func opaque(raw json.RawMessage) any {
	if isNull(raw) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	return buf.String()
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
