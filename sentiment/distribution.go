package sentiment

import (
	"fmt"
	"math"
)

// Label is a sentiment class.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Neutral  Label = "neutral"
)

// Labels lists the classes in tie-breaking order.
var Labels = []Label{Positive, Negative, Neutral}

// Distribution holds a score or probability per label.
type Distribution struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// NeutralDistribution is the distribution used when there is no signal.
func NeutralDistribution() Distribution {
	return Distribution{Neutral: 1}
}

// Get returns the value for label.
func (d Distribution) Get(label Label) float64 {
	switch label {
	case Positive:
		return d.Positive
	case Negative:
		return d.Negative
	default:
		return d.Neutral
	}
}

// Add returns the element-wise sum of d and o.
func (d Distribution) Add(o Distribution) Distribution {
	return Distribution{
		Positive: d.Positive + o.Positive,
		Negative: d.Negative + o.Negative,
		Neutral:  d.Neutral + o.Neutral,
	}
}

// Total returns the sum over all labels.
func (d Distribution) Total() float64 {
	return d.Positive + d.Negative + d.Neutral
}

// Normalize scales d to sum to 1. A distribution without mass becomes
// NeutralDistribution.
func (d Distribution) Normalize() Distribution {
	total := d.Total()
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return NeutralDistribution()
	}
	return Distribution{
		Positive: d.Positive / total,
		Negative: d.Negative / total,
		Neutral:  d.Neutral / total,
	}
}

// Dominant returns the label with the largest value. Ties go to the label
// listed first in Labels.
func (d Distribution) Dominant() Label {
	best := Labels[0]
	for _, label := range Labels[1:] {
		if d.Get(label) > d.Get(best) {
			best = label
		}
	}
	return best
}

// Validate rejects negative or non-finite values and empty distributions.
func (d Distribution) Validate() error {
	for _, label := range Labels {
		v := d.Get(label)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid %s probability %v", label, v)
		}
	}
	if d.Total() == 0 {
		return fmt.Errorf("all probabilities are zero")
	}
	return nil
}

// String formats d as percentages.
func (d Distribution) String() string {
	return fmt.Sprintf("positive %.1f%%, negative %.1f%%, neutral %.1f%%",
		d.Positive*100, d.Negative*100, d.Neutral*100)
}

// labelForScore maps the sign of score to a label.
func labelForScore(score float64) Label {
	switch {
	case score > 0:
		return Positive
	case score < 0:
		return Negative
	default:
		return Neutral
	}
}
