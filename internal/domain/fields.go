package domain

import (
	"slices"
	"strings"
)

// FieldType controls how a field's raw values are counted.
type FieldType string

const (
	FieldTypeScalar  FieldType = "scalar"
	FieldTypeArray   FieldType = "array"
	FieldTypeBoolean FieldType = "boolean"
)

// TrackedFields is the field-name to field-type table the aggregator relies
// on. It must stay in sync with the fields the submission forms collect.
var TrackedFields = map[string]FieldType{
	// scalar
	"cost":                FieldTypeScalar,
	"cost_type":           FieldTypeScalar,
	"time_to_results":     FieldTypeScalar,
	"frequency":           FieldTypeScalar,
	"length_of_use":       FieldTypeScalar,
	"session_frequency":   FieldTypeScalar,
	"session_length":      FieldTypeScalar,
	"time_commitment":     FieldTypeScalar,
	"format":              FieldTypeScalar,
	"usage_frequency":     FieldTypeScalar,
	"subscription_type":   FieldTypeScalar,
	"skill_level":         FieldTypeScalar,
	"practice_length":     FieldTypeScalar,
	"weekly_prep_time":    FieldTypeScalar,
	"product_type":        FieldTypeScalar,
	"treatment_frequency": FieldTypeScalar,
	"wait_time":           FieldTypeScalar,
	"insurance_coverage":  FieldTypeScalar,
	"completed_treatment": FieldTypeScalar,
	"adjustment_period":   FieldTypeScalar,
	"long_term_cost":      FieldTypeScalar,
	"startup_cost":        FieldTypeScalar,
	"ongoing_cost":        FieldTypeScalar,
	"dosage_amount":       FieldTypeScalar,
	"ease_of_use":         FieldTypeScalar,
	"learning_difficulty": FieldTypeScalar,
	// array
	"side_effects": FieldTypeArray,
	"challenges":   FieldTypeArray,
	"barriers":     FieldTypeArray,
	"issues":       FieldTypeArray,
	"platform":     FieldTypeArray,
	// boolean
	"still_following": FieldTypeBoolean,
	"still_using":     FieldTypeBoolean,
	"would_recommend": FieldTypeBoolean,
}

// LookupFieldType returns the type of a tracked field.
func LookupFieldType(name string) (FieldType, bool) {
	t, ok := TrackedFields[name]
	return t, ok
}

// CategoryFields describes the fields a solution category collects.
// Boolean follow-up fields are collected for every category.
type CategoryFields struct {
	KeyFields      []string
	ArrayField     string
	OptionalFields []string
}

// Collects reports whether a rating in this category may carry the field.
func (c CategoryFields) Collects(name string) bool {
	fieldType, ok := LookupFieldType(name)
	if !ok {
		return false
	}
	if fieldType == FieldTypeBoolean || name == c.ArrayField {
		return true
	}
	return slices.Contains(c.KeyFields, name) || slices.Contains(c.OptionalFields, name)
}

const DefaultCategory = "default"

// CategoryFieldConfig maps solution categories to their collected fields.
var CategoryFieldConfig = map[string]CategoryFields{
	"medications": {
		KeyFields:      []string{"time_to_results", "frequency", "length_of_use", "cost"},
		ArrayField:     "side_effects",
		OptionalFields: []string{"dosage_amount", "cost_type"},
	},
	"supplements_vitamins": {
		KeyFields:      []string{"time_to_results", "frequency", "length_of_use", "cost"},
		ArrayField:     "side_effects",
		OptionalFields: []string{"dosage_amount", "cost_type"},
	},
	"natural_remedies": {
		KeyFields:      []string{"time_to_results", "frequency", "length_of_use", "cost"},
		ArrayField:     "side_effects",
		OptionalFields: []string{"dosage_amount", "cost_type"},
	},
	"beauty_skincare": {
		KeyFields:      []string{"time_to_results", "frequency", "length_of_use", "cost"},
		ArrayField:     "side_effects",
		OptionalFields: []string{"dosage_amount", "cost_type"},
	},
	"therapists_counselors": {
		KeyFields:      []string{"time_to_results", "session_frequency", "session_length", "cost"},
		ArrayField:     "barriers",
		OptionalFields: []string{"insurance_coverage", "completed_treatment", "cost_type"},
	},
	"doctors_specialists": {
		KeyFields:      []string{"time_to_results", "wait_time", "insurance_coverage", "cost"},
		ArrayField:     "barriers",
		OptionalFields: []string{"completed_treatment", "cost_type"},
	},
	"coaches_mentors": {
		KeyFields:      []string{"time_to_results", "session_frequency", "format", "cost"},
		ArrayField:     "barriers",
		OptionalFields: []string{"session_length", "cost_type"},
	},
	"medical_procedures": {
		KeyFields:      []string{"time_to_results", "treatment_frequency", "cost"},
		ArrayField:     "side_effects",
		OptionalFields: []string{"wait_time", "completed_treatment", "long_term_cost"},
	},
	"apps_software": {
		KeyFields:      []string{"time_to_results", "usage_frequency", "subscription_type", "cost"},
		ArrayField:     "challenges",
		OptionalFields: []string{"platform"},
	},
	"exercise_movement": {
		KeyFields:      []string{"time_to_results", "frequency", "cost"},
		ArrayField:     "challenges",
		OptionalFields: []string{"skill_level", "startup_cost", "ongoing_cost"},
	},
	"meditation_mindfulness": {
		KeyFields:  []string{"time_to_results", "practice_length", "frequency"},
		ArrayField: "challenges",
	},
	"habits_routines": {
		KeyFields:      []string{"time_to_results", "time_commitment", "cost"},
		ArrayField:     "challenges",
		OptionalFields: []string{"startup_cost", "ongoing_cost"},
	},
	"diet_nutrition": {
		KeyFields:      []string{"time_to_results", "weekly_prep_time", "still_following", "cost"},
		ArrayField:     "challenges",
		OptionalFields: []string{"startup_cost", "ongoing_cost"},
	},
	"sleep": {
		KeyFields:      []string{"time_to_results", "adjustment_period", "still_following", "cost"},
		ArrayField:     "challenges",
		OptionalFields: []string{"startup_cost", "ongoing_cost"},
	},
	"products_devices": {
		KeyFields:      []string{"time_to_results", "ease_of_use", "product_type", "cost"},
		ArrayField:     "issues",
		OptionalFields: []string{"startup_cost", "ongoing_cost", "platform"},
	},
	"books_courses": {
		KeyFields:      []string{"time_to_results", "format", "learning_difficulty", "cost"},
		ArrayField:     "challenges",
		OptionalFields: []string{"platform"},
	},
	DefaultCategory: {
		KeyFields:  []string{"time_to_results", "frequency", "cost"},
		ArrayField: "challenges",
	},
}

// DosageCategories name their variants after amount, unit and form.
var DosageCategories = map[string]bool{
	"medications":          true,
	"supplements_vitamins": true,
	"natural_remedies":     true,
	"beauty_skincare":      true,
}

// FieldsForCategory returns the field configuration for a category, falling
// back to the default set for unknown categories.
func FieldsForCategory(category string) CategoryFields {
	if cfg, ok := CategoryFieldConfig[strings.ToLower(strings.TrimSpace(category))]; ok {
		return cfg
	}
	return CategoryFieldConfig[DefaultCategory]
}

func IsDosageCategory(category string) bool {
	return DosageCategories[strings.ToLower(strings.TrimSpace(category))]
}
