package damage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// InferenceFile is the detector output: one result per inspected image.
type InferenceFile struct {
	InferenceResults []InferenceResult `json:"inference_results"`
}

type InferenceResult struct {
	ImageFilename string         `json:"image_filename"`
	Detections    []RawDetection `json:"detections"`
}

type RawDetection struct {
	DamageClass      string                     `json:"damage_class"`
	DamageParameters map[string]json.RawMessage `json:"damage_parameters"`
	DamageLocation3D []Point3D                  `json:"damage_location_3D"`
	DamageLocation2D []Point2D                  `json:"damage_location_2D"`
	IFCElement       string                     `json:"ifc_element"`
	IFCGUID          string                     `json:"ifc_guid"`
}

// DecodeInference flattens an inference file into detections, preserving result and
// detection order. Shape problems inside a single detection are left for Validate.
func DecodeInference(r io.Reader) ([]Detection, error) {
	var file InferenceFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode inference file: %w", err)
	}
	out := make([]Detection, 0)
	for _, res := range file.InferenceResults {
		for _, raw := range res.Detections {
			det, err := raw.toDetection(res.ImageFilename)
			if err != nil {
				return nil, err
			}
			out = append(out, det)
		}
	}
	return out, nil
}

func (raw RawDetection) toDetection(source string) (Detection, error) {
	params := make(Parameters, len(raw.DamageParameters))
	for k, v := range raw.DamageParameters {
		val, err := decodeParameter(v)
		if err != nil {
			return Detection{}, fmt.Errorf("decode parameter %q: %w", k, err)
		}
		if val != nil {
			params[k] = val
		}
	}
	elementType, _ := ParseElementType(raw.IFCElement)
	return Detection{
		DamageClass: NormalizeClass(raw.DamageClass),
		Parameters:  params,
		Location2D:  raw.DamageLocation2D,
		Location3D:  raw.DamageLocation3D,
		LocatedElement: BuildingElementRef{
			ElementType:  elementType,
			PersistentID: strings.TrimSpace(raw.IFCGUID),
		},
		Source: source,
	}, nil
}

// decodeParameter keeps numbers and booleans typed; anything else is carried as its string
// or JSON text.
func decodeParameter(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case float64, bool, string:
		return t, nil
	default:
		return string(trimmed), nil
	}
}

// UnmarshalJSON accepts {"x":..,"y":..,"z":..} and [x, y, z].
func (p *Point3D) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 3 {
			return fmt.Errorf("3D point needs 3 coordinates, got %d", len(arr))
		}
		p.X, p.Y, p.Z = arr[0], arr[1], arr[2]
		return nil
	}
	var obj struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode 3D point: %w", err)
	}
	p.X, p.Y, p.Z = obj.X, obj.Y, obj.Z
	return nil
}

// UnmarshalJSON accepts {"x":..,"y":..} and [x, y].
func (p *Point2D) UnmarshalJSON(data []byte) error {
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 2 {
			return fmt.Errorf("2D point needs 2 coordinates, got %d", len(arr))
		}
		p.X, p.Y = arr[0], arr[1]
		return nil
	}
	var obj struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode 2D point: %w", err)
	}
	p.X, p.Y = obj.X, obj.Y
	return nil
}
