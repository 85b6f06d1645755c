package intf

import (
	"fmt"
	"strconv"
	"strings"
)

// JobSpec is one parsed resctl-bench job: a type name followed by
// comma-separated key=value properties, e.g. "iocost-qos:vrate-max=100".
type JobSpec struct {
	Type  string
	Props map[string]string
}

// ParseJobSpec parses a single "TYPE[:k=v[,k=v...]]" job-spec string.
func ParseJobSpec(s string) (*JobSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("intf: empty job spec")
	}
	typ, rest, hasProps := strings.Cut(s, ":")
	js := &JobSpec{Type: typ, Props: map[string]string{}}
	if !hasProps || rest == "" {
		return js, nil
	}
	for _, kv := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("intf: malformed property %q in job spec %q", kv, s)
		}
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("intf: empty property key in job spec %q", s)
		}
		js.Props[k] = strings.TrimSpace(v)
	}
	return js, nil
}

// ParseJobSpecs parses a whitespace-separated sequence of job specs, the
// form resctl-bench's run subcommand takes on the command line.
func ParseJobSpecs(args []string) ([]*JobSpec, error) {
	specs := make([]*JobSpec, 0, len(args))
	for _, a := range args {
		js, err := ParseJobSpec(a)
		if err != nil {
			return nil, err
		}
		specs = append(specs, js)
	}
	return specs, nil
}

// Float looks up a property and parses it as a float64.
func (js *JobSpec) Float(key string, def float64) (float64, error) {
	v, ok := js.Props[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("intf: property %q=%q in job %q: %w", key, v, js.Type, err)
	}
	return f, nil
}

// Uint looks up a property and parses it as a uint64.
func (js *JobSpec) Uint(key string, def uint64) (uint64, error) {
	v, ok := js.Props[key]
	if !ok {
		return def, nil
	}
	u, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("intf: property %q=%q in job %q: %w", key, v, js.Type, err)
	}
	return u, nil
}

// Bool looks up a property and parses it as a bool; a bare key with no
// "=value" (Props[key] == "") is treated as true, matching resctl-bench's
// "flag-only" property shorthand.
func (js *JobSpec) Bool(key string, def bool) (bool, error) {
	v, ok := js.Props[key]
	if !ok {
		return def, nil
	}
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("intf: property %q=%q in job %q: %w", key, v, js.Type, err)
	}
	return b, nil
}

// String looks up a property, returning def if absent.
func (js *JobSpec) String(key, def string) string {
	if v, ok := js.Props[key]; ok {
		return v
	}
	return def
}
