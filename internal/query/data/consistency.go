package data

import (
	"fmt"
	"strings"

	qerrors "github.com/arkilian/metaquery/internal/errors"
)

// Consistency is the policy applied when a source row's width disagrees
// with the declared column count.
type Consistency int

const (
	// Strict fails on the first mismatching row.
	Strict Consistency = iota
	// Tolerant pads short rows with nulls and truncates long ones.
	Tolerant
)

func (c Consistency) String() string {
	if c == Tolerant {
		return "tolerant"
	}
	return "strict"
}

// ParseConsistency parses "strict" or "tolerant".
func ParseConsistency(s string) (Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "tolerant":
		return Tolerant, nil
	}
	return Strict, fmt.Errorf("data: unknown consistency policy %q", s)
}

// Align fits values to expected columns under the policy. rowNumber is the
// 1-based position of the row in its source and is reported on failure.
func (c Consistency) Align(values []interface{}, expected, rowNumber int) ([]interface{}, error) {
	if len(values) == expected {
		return values, nil
	}
	if c == Strict {
		return nil, &qerrors.InconsistentRowError{
			RowNumber: rowNumber,
			Expected:  expected,
			Values:    stringValues(values),
		}
	}
	if len(values) > expected {
		return values[:expected], nil
	}
	padded := make([]interface{}, expected)
	copy(padded, values)
	return padded, nil
}

func stringValues(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = "null"
			continue
		}
		out[i] = fmt.Sprintf("%v", v)
	}
	return out
}
