package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrNegativeCount  = errors.New("distribution: negative count")
	ErrCountsMismatch = errors.New("distribution: values and counts differ in length")
)

// DataSource tags where a distribution or field set came from.
type DataSource string

const (
	DataSourceAIResearch     DataSource = "ai_research"
	DataSourceUserSubmission DataSource = "user_submission"
)

func ValidDataSource(s string) bool {
	switch DataSource(s) {
	case DataSourceAIResearch, DataSourceUserSubmission:
		return true
	}
	return false
}

// DistributionValue is one bucket of a Distribution.
type DistributionValue struct {
	Value      string     `json:"value"`
	Count      int        `json:"count"`
	Percentage int        `json:"percentage"`
	Source     DataSource `json:"source"`
}

// Distribution summarizes the observed values of a single field for one
// goal/solution-variant pair. Values are ordered by count descending and
// Values[0].Value always equals Mode.
type Distribution struct {
	Mode         string              `json:"mode"`
	Values       []DistributionValue `json:"values"`
	TotalReports int                 `json:"total_reports"`
	DataSource   DataSource          `json:"data_source"`
}

// Tally counts values while remembering the order in which each value was
// first seen, so ties sort deterministically.
type Tally struct {
	order  []string
	counts map[string]int
}

func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

func (t *Tally) Add(value string) {
	t.AddN(value, 1)
}

// AddN counts value n times. Non-positive n records nothing.
func (t *Tally) AddN(value string, n int) {
	if n <= 0 {
		return
	}
	if _, ok := t.counts[value]; !ok {
		t.order = append(t.order, value)
	}
	t.counts[value] += n
}

func (t *Tally) Count(value string) int {
	return t.counts[value]
}

func (t *Tally) Len() int {
	return len(t.order)
}

// BuildDistribution turns a tally into a Distribution. totalReports is the
// denominator for percentages; pass 0 to use the sum of counts. Returns nil
// when the tally is empty.
func BuildDistribution(t *Tally, totalReports int, source DataSource) *Distribution {
	if t == nil || t.Len() == 0 {
		return nil
	}

	values := make([]DistributionValue, 0, t.Len())
	sum := 0
	for _, v := range t.order {
		c := t.counts[v]
		sum += c
		values = append(values, DistributionValue{Value: v, Count: c, Source: source})
	}
	if totalReports <= 0 {
		totalReports = sum
	}

	// Stable sort keeps first-seen order among equal counts.
	sort.SliceStable(values, func(i, j int) bool {
		return values[i].Count > values[j].Count
	})

	for i := range values {
		values[i].Percentage = int(math.Round(float64(values[i].Count) / float64(totalReports) * 100))
	}

	return &Distribution{
		Mode:         values[0].Value,
		Values:       values,
		TotalReports: totalReports,
		DataSource:   source,
	}
}

// BuildFromCounts builds a Distribution from parallel value/count slices.
// The slice order is the insertion order used for tie-breaking; repeated
// values are merged and zero counts dropped. It returns nil when nothing
// remains.
func BuildFromCounts(values []string, counts []int, source DataSource) (*Distribution, error) {
	if len(values) != len(counts) {
		return nil, fmt.Errorf("%w: %d values, %d counts", ErrCountsMismatch, len(values), len(counts))
	}
	t := NewTally()
	for i, v := range values {
		if counts[i] < 0 {
			return nil, fmt.Errorf("%w: %q has %d", ErrNegativeCount, v, counts[i])
		}
		t.AddN(v, counts[i])
	}
	return BuildDistribution(t, 0, source), nil
}

// PercentageSum returns the sum of all value percentages.
func (d *Distribution) PercentageSum() int {
	if d == nil {
		return 0
	}
	total := 0
	for _, v := range d.Values {
		total += v.Percentage
	}
	return total
}
