package filter

import (
	"fmt"
	"regexp"
)

// DefaultAlertStates are the states that raise an alert when no include
// patterns are configured
var DefaultAlertStates = []string{"FAILED", "LOST", "RESTARTING", "FINISHED"}

// Filter decides which application states raise an alert.
// Patterns must match the whole state name.
type Filter struct {
	Include []*regexp.Regexp
	Exclude []*regexp.Regexp
}

// NewFilter creates a new filter from string patterns
func NewFilter(include, exclude []string) (*Filter, error) {
	f := &Filter{}

	// Compile include patterns
	for _, pattern := range include {
		re, err := compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %s: %w", pattern, err)
		}
		f.Include = append(f.Include, re)
	}

	// Compile exclude patterns
	for _, pattern := range exclude {
		re, err := compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %s: %w", pattern, err)
		}
		f.Exclude = append(f.Exclude, re)
	}

	return f, nil
}

// NewDefaultFilter returns a filter matching DefaultAlertStates
func NewDefaultFilter() *Filter {
	f, _ := NewFilter(DefaultAlertStates, nil)
	return f
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")$")
}

// Match checks if a state matches the filter rules
func (f *Filter) Match(state string) bool {
	if f == nil {
		return true
	}

	// Check exclude patterns first
	for _, re := range f.Exclude {
		if re.MatchString(state) {
			return false
		}
	}

	// If no include patterns, match all (after exclusions)
	if len(f.Include) == 0 {
		return true
	}

	for _, re := range f.Include {
		if re.MatchString(state) {
			return true
		}
	}

	return false
}
