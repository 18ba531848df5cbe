package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/standardbeagle/refind/internal/types"
)

// collectUnknownFields parses raw JSON into a map, capturing any fields
// outside the known set. Alias names belong in the known set; the
// caller normalizes them afterwards.
func collectUnknownFields(data []byte, known map[string]struct{}) (map[string]json.RawMessage, []UnknownField, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	var warnings []UnknownField
	for key, value := range raw {
		if _, ok := known[key]; ok {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(value, &decoded); err != nil {
			decoded = string(value)
		}
		warnings = append(warnings, UnknownField{Name: key, Value: decoded})
	}

	return raw, warnings, nil
}

// IngestParams are the arguments of ingest_snapshot.
type IngestParams struct {
	XML    string `json:"xml"`
	Device string `json:"device"`
}

// DescriptorParam is the wire form of a target descriptor. Scalars that
// must distinguish "absent" from their zero value are pointers. The
// custom strategy's field specs are deliberately not part of the wire
// surface; custom chains are caller-code territory.
type DescriptorParam struct {
	Text        string  `json:"text"`
	ContentDesc string  `json:"content_desc"`
	ResourceID  string  `json:"resource_id"`
	Class       string  `json:"class"`
	Package     string  `json:"package"`
	ParentClass string  `json:"parent_class"`
	Bounds      string  `json:"bounds"`
	Index       *int    `json:"index"`
	Path        *string `json:"path"`
	Clickable   *bool   `json:"clickable"`
	Enabled     *bool   `json:"enabled"`
	Focusable   *bool   `json:"focusable"`
	Scrollable  *bool   `json:"scrollable"`
	Selected    *bool   `json:"selected"`

	// Warnings collects unknown argument fields. Populated by
	// UnmarshalJSON, never sent by clients.
	Warnings []UnknownField `json:"-"`
}

// UnmarshalJSON accepts unknown fields and normalizes the alias names
// capture tools tend to emit (camelCase, dump attribute spellings) to
// the canonical snake_case parameters.
func (p *DescriptorParam) UnmarshalJSON(data []byte) error {
	type alias DescriptorParam

	known := map[string]struct{}{
		"text": {}, "content_desc": {}, "resource_id": {}, "class": {},
		"package": {}, "parent_class": {}, "bounds": {}, "index": {},
		"path": {}, "clickable": {}, "enabled": {}, "focusable": {},
		"scrollable": {}, "selected": {},

		// Alias spellings normalized below.
		"contentDesc": {}, "content-desc": {}, "desc": {},
		"resourceId": {}, "resource-id": {}, "id": {},
		"parentClass": {}, "parent-class": {},
	}

	raw, warnings, err := collectUnknownFields(data, known)
	if err != nil {
		return err
	}

	normalized := make(map[string]json.RawMessage, len(raw))
	for key, value := range raw {
		switch key {
		case "contentDesc", "content-desc", "desc":
			normalized["content_desc"] = value
		case "resourceId", "resource-id", "id":
			normalized["resource_id"] = value
		case "parentClass", "parent-class":
			normalized["parent_class"] = value
		default:
			normalized[key] = value
		}
	}

	normalizedJSON, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(normalizedJSON, (*alias)(p)); err != nil {
		return err
	}

	p.Warnings = warnings
	return nil
}

// ToDescriptor converts the wire form into the engine's descriptor,
// parsing bounds and path from their dump spellings.
func (p *DescriptorParam) ToDescriptor() (*types.TargetDescriptor, error) {
	d := &types.TargetDescriptor{
		Text:        p.Text,
		ContentDesc: p.ContentDesc,
		ResourceID:  p.ResourceID,
		Class:       p.Class,
		Package:     p.Package,
		ParentClass: p.ParentClass,
		Clickable:   p.Clickable,
		Enabled:     p.Enabled,
		Focusable:   p.Focusable,
		Scrollable:  p.Scrollable,
		Selected:    p.Selected,
	}
	if p.Bounds != "" {
		rect, err := types.ParseRect(p.Bounds)
		if err != nil {
			return nil, fmt.Errorf("bounds: %w", err)
		}
		d.Bounds = rect
		d.HasBounds = true
	}
	if p.Index != nil {
		d.Index = *p.Index
		d.HasIndex = true
	}
	if p.Path != nil {
		path, err := types.ParsePath(*p.Path)
		if err != nil {
			return nil, fmt.Errorf("path: %w", err)
		}
		d.Path = path
		d.HasPath = true
	}
	return d, nil
}

// Empty reports whether the descriptor carries no evidence at all.
func (p *DescriptorParam) Empty() bool {
	return p.Text == "" && p.ContentDesc == "" && p.ResourceID == "" &&
		p.Class == "" && p.Package == "" && p.ParentClass == "" &&
		p.Bounds == "" && p.Index == nil && p.Path == nil &&
		p.Clickable == nil && p.Enabled == nil && p.Focusable == nil &&
		p.Scrollable == nil && p.Selected == nil
}

// ResolveParams are the arguments of resolve_element.
type ResolveParams struct {
	SnapshotID string             `json:"snapshot_id"`
	Descriptor DescriptorParam    `json:"descriptor"`
	Chain      []string           `json:"chain"`
	Thresholds map[string]float64 `json:"thresholds"`

	Warnings []UnknownField `json:"-"`
}

// UnmarshalJSON tolerates unknown top-level fields, accepts "target" as
// an alias for "descriptor", and lifts descriptor-level warnings up
// with a "descriptor." prefix.
func (p *ResolveParams) UnmarshalJSON(data []byte) error {
	type alias ResolveParams

	known := map[string]struct{}{
		"snapshot_id": {}, "descriptor": {}, "chain": {}, "thresholds": {},
		"target": {},
	}

	raw, warnings, err := collectUnknownFields(data, known)
	if err != nil {
		return err
	}

	normalized := make(map[string]json.RawMessage, len(raw))
	for key, value := range raw {
		if key == "target" {
			normalized["descriptor"] = value
			continue
		}
		normalized[key] = value
	}

	normalizedJSON, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(normalizedJSON, (*alias)(p)); err != nil {
		return err
	}

	p.Warnings = warnings
	for _, w := range p.Descriptor.Warnings {
		p.Warnings = append(p.Warnings, UnknownField{
			Name:  "descriptor." + w.Name,
			Value: w.Value,
		})
	}
	return nil
}

// AnalyzeParams are the arguments of analyze_node.
type AnalyzeParams struct {
	SnapshotID string `json:"snapshot_id"`
	Path       string `json:"path"`
}

// EvictParams are the arguments of evict_snapshot.
type EvictParams struct {
	SnapshotID string `json:"snapshot_id"`
}

// ArchiveScanParams are the arguments of archive_scan.
type ArchiveScanParams struct {
	Dir     string `json:"dir"`
	Pattern string `json:"pattern"`
	Ingest  bool   `json:"ingest"`
	Latest  bool   `json:"latest"`
	Device  string `json:"device"`
}

// InfoParams are the arguments of info.
type InfoParams struct {
	Tool string `json:"tool"`
}
