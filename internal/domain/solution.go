package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const StandardVariantName = "Standard"

type Solution struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	IsApproved bool      `json:"is_approved"`
	CreatedBy  uuid.UUID `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type SolutionVariant struct {
	ID          uuid.UUID `json:"id"`
	SolutionID  uuid.UUID `json:"solution_id"`
	VariantName string    `json:"variant_name"`
	Amount      string    `json:"amount,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Form        string    `json:"form,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

// VariantDetails carries the dosage attributes submitted for a solution.
type VariantDetails struct {
	Amount string `json:"amount,omitempty"`
	Unit   string `json:"unit,omitempty"`
	Form   string `json:"form,omitempty"`
}

func (v VariantDetails) IsZero() bool {
	return strings.TrimSpace(v.Amount) == "" && strings.TrimSpace(v.Unit) == ""
}

// VariantName returns the canonical variant name for a category. Dosage
// categories with an amount use amount+unit followed by an optional form
// ("10mg tablet"); everything else is "Standard".
func VariantName(category string, v VariantDetails) string {
	if !IsDosageCategory(category) || v.IsZero() {
		return StandardVariantName
	}
	name := strings.TrimSpace(v.Amount) + strings.TrimSpace(v.Unit)
	if form := strings.TrimSpace(v.Form); form != "" {
		name += " " + form
	}
	return name
}
