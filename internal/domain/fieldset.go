package domain

import (
	"encoding/json"
	"time"
)

// MetadataKey is the reserved entry of an AggregatedFieldSet that carries
// run metadata instead of a Distribution.
const MetadataKey = "_metadata"

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ComputeConfidence maps a rating count to its confidence tier:
// low below 3, medium from 3 to 9, high from 10.
func ComputeConfidence(totalRatings int) Confidence {
	switch {
	case totalRatings >= 10:
		return ConfidenceHigh
	case totalRatings >= 3:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

type FieldSetMetadata struct {
	ComputedAt   time.Time  `json:"computed_at"`
	TotalRatings int        `json:"total_ratings"`
	DataSource   DataSource `json:"data_source"`
	Confidence   Confidence `json:"confidence"`
}

// AggregatedFieldSet maps field names to their Distribution plus a
// _metadata entry. It serializes as a single flat JSON object.
type AggregatedFieldSet struct {
	Fields   map[string]*Distribution
	Metadata FieldSetMetadata
}

func NewAggregatedFieldSet(source DataSource, totalRatings int, computedAt time.Time) *AggregatedFieldSet {
	return &AggregatedFieldSet{
		Fields: make(map[string]*Distribution),
		Metadata: FieldSetMetadata{
			ComputedAt:   computedAt,
			TotalRatings: totalRatings,
			DataSource:   source,
			Confidence:   ComputeConfidence(totalRatings),
		},
	}
}

// IsEmpty reports whether no field has a distribution.
func (fs *AggregatedFieldSet) IsEmpty() bool {
	return fs == nil || len(fs.Fields) == 0
}

func (fs *AggregatedFieldSet) Field(name string) *Distribution {
	if fs == nil {
		return nil
	}
	return fs.Fields[name]
}

func (fs AggregatedFieldSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(fs.Fields)+1)
	for name, d := range fs.Fields {
		if d == nil {
			continue
		}
		out[name] = d
	}
	out[MetadataKey] = fs.Metadata
	return json.Marshal(out)
}

func (fs *AggregatedFieldSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fs.Fields = make(map[string]*Distribution, len(raw))
	for name, msg := range raw {
		if name == MetadataKey {
			if err := json.Unmarshal(msg, &fs.Metadata); err != nil {
				return err
			}
			continue
		}
		var d Distribution
		if err := json.Unmarshal(msg, &d); err != nil {
			return err
		}
		fs.Fields[name] = &d
	}
	return nil
}
