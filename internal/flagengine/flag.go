// Package flagengine applies a single comparator+threshold check to a
// metric sample. It is the smallest component in the pipeline: a pure
// function with no I/O and no shared state.
package flagengine

import "github.com/grafana/cloudmon-metrics/pkg/model"

// Flag derives a boolean flag from an optional sample value and a
// compiled metric. A missing sample (nil) never triggers a flag;
// comparisons are strict (at-threshold is false for Lt/Gt, true for Eq).
func Flag(value *float32, metric model.FlagMetric) bool {
	if value == nil {
		return false
	}
	v := *value
	switch metric.Op {
	case model.ComparatorLt:
		return v < metric.Threshold
	case model.ComparatorGt:
		return v > metric.Threshold
	case model.ComparatorEq:
		return v == metric.Threshold
	default:
		return false
	}
}
