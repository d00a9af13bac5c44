package domain

import "testing"

func TestVariantName(t *testing.T) {
	tests := []struct {
		name     string
		category string
		details  VariantDetails
		want     string
	}{
		{"dosage with form", "medications", VariantDetails{Amount: "10", Unit: "mg", Form: "tablet"}, "10mg tablet"},
		{"dosage without form", "supplements_vitamins", VariantDetails{Amount: "1000", Unit: "IU"}, "1000IU"},
		{"dosage trims input", "natural_remedies", VariantDetails{Amount: " 2 ", Unit: " g ", Form: " powder "}, "2g powder"},
		{"dosage without amount", "medications", VariantDetails{Form: "tablet"}, StandardVariantName},
		{"non-dosage ignores details", "apps_software", VariantDetails{Amount: "10", Unit: "mg"}, StandardVariantName},
		{"unknown category", "", VariantDetails{}, StandardVariantName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VariantName(tt.category, tt.details); got != tt.want {
				t.Errorf("VariantName(%q, %+v) = %q, want %q", tt.category, tt.details, got, tt.want)
			}
		})
	}
}

func TestFieldsForCategory(t *testing.T) {
	if got := FieldsForCategory("Medications").ArrayField; got != "side_effects" {
		t.Errorf("medications array field = %q, want side_effects", got)
	}
	if got := FieldsForCategory("not-a-category").ArrayField; got != CategoryFieldConfig[DefaultCategory].ArrayField {
		t.Errorf("unknown category should fall back to default, got %q", got)
	}
	for category, cfg := range CategoryFieldConfig {
		for _, f := range append(cfg.KeyFields, cfg.ArrayField) {
			if _, ok := LookupFieldType(f); !ok {
				t.Errorf("category %s collects untracked field %q", category, f)
			}
		}
		if ft, _ := LookupFieldType(cfg.ArrayField); ft != FieldTypeArray {
			t.Errorf("category %s array field %q is not array-typed", category, cfg.ArrayField)
		}
	}
}

func TestCategoryFields_Collects(t *testing.T) {
	tests := []struct {
		category string
		field    string
		want     bool
	}{
		{"medications", "side_effects", true},
		{"medications", "dosage_amount", true},
		{"medications", "would_recommend", true},
		{"medications", "session_length", false},
		{"therapists_counselors", "session_length", true},
		{"apps_software", "platform", true},
		{"apps_software", "side_effects", false},
		{"not-a-category", "frequency", true},
		{"not-a-category", "usage_frequency", false},
		{"medications", "favourite_colour", false},
	}
	for _, tt := range tests {
		if got := FieldsForCategory(tt.category).Collects(tt.field); got != tt.want {
			t.Errorf("FieldsForCategory(%q).Collects(%q) = %v, want %v", tt.category, tt.field, got, tt.want)
		}
	}
}

func TestCategoryFieldConfig_EveryTrackedFieldCollected(t *testing.T) {
	for name := range TrackedFields {
		collected := false
		for _, cfg := range CategoryFieldConfig {
			if cfg.Collects(name) {
				collected = true
				break
			}
		}
		if !collected {
			t.Errorf("tracked field %q is not collected by any category", name)
		}
	}
}
