package types

import "encoding/json"

// Twin is a digital twin as returned by the ADT data plane. Property
// values beyond the system fields are kept raw since their shape depends
// on the twin's model.
type Twin struct {
	ID         string                     `json:"$dtId"`
	ETag       string                     `json:"$etag,omitempty"`
	Metadata   TwinMetadata               `json:"$metadata"`
	Properties map[string]json.RawMessage `json:"-"`
}

// TwinMetadata holds the system metadata of a twin.
type TwinMetadata struct {
	Model string `json:"$model"`
}

// UnmarshalJSON splits system fields from model-defined properties.
func (t *Twin) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["$dtId"]; ok {
		if err := json.Unmarshal(v, &t.ID); err != nil {
			return err
		}
	}
	if v, ok := raw["$etag"]; ok {
		if err := json.Unmarshal(v, &t.ETag); err != nil {
			return err
		}
	}
	if v, ok := raw["$metadata"]; ok {
		if err := json.Unmarshal(v, &t.Metadata); err != nil {
			return err
		}
	}
	t.Properties = make(map[string]json.RawMessage)
	for k, v := range raw {
		if len(k) > 0 && k[0] == '$' {
			continue
		}
		t.Properties[k] = v
	}
	return nil
}

// MarshalJSON re-joins system fields and properties.
func (t Twin) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.Properties)+3)
	for k, v := range t.Properties {
		out[k] = v
	}
	if t.ID != "" {
		out["$dtId"] = t.ID
	}
	if t.ETag != "" {
		out["$etag"] = t.ETag
	}
	if t.Metadata.Model != "" {
		out["$metadata"] = t.Metadata
	}
	return json.Marshal(out)
}

// Model is an ADT model entry. DTDL is the full interface document when
// the API was asked to include it.
type Model struct {
	ID             string            `json:"id"`
	DisplayName    map[string]string `json:"displayName,omitempty"`
	Decommissioned bool              `json:"decommissioned"`
	UploadTime     string            `json:"uploadTime,omitempty"`
	DTDL           json.RawMessage   `json:"model,omitempty"`
}

// Relationship links two twins.
type Relationship struct {
	ID       string `json:"$relationshipId"`
	Name     string `json:"$relationshipName"`
	SourceID string `json:"$sourceId"`
	TargetID string `json:"$targetId"`
	ETag     string `json:"$etag,omitempty"`
}

// Patch is one JSON-patch operation applied to a twin or relationship.
type Patch struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// TwinPage is one page of a twin query, with the ADT continuation token.
type TwinPage struct {
	Twins             []Twin `json:"value"`
	ContinuationToken string `json:"continuationToken,omitempty"`
}
