package spk

import (
	"fmt"
	"strings"
)

// Parameter is one driver parameter, such as "voice=en".
type Parameter struct {
	Name  string
	Value string
}

// Parameters is the ordered list of driver specific parameters passed to
// Synthesizer.Construct.
type Parameters []Parameter

// ParseParameters parses a comma separated "name=value" list.
//
// Names are case-insensitive and stored in lower case; empty items are ignored.
// Later duplicates override earlier ones in Get.
func ParseParameters(s string) (Parameters, error) {
	var params Parameters
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		p, err := ParseParameter(item)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}

	return params, nil
}

// ParseParameter parses a single "name=value" item.
func ParseParameter(item string) (Parameter, error) {
	name, value, ok := strings.Cut(item, "=")
	name = strings.ToLower(strings.TrimSpace(name))
	if !ok || name == "" {
		return Parameter{}, fmt.Errorf("%w: %q", ErrInvalidParameter, item)
	}

	return Parameter{Name: name, Value: strings.TrimSpace(value)}, nil
}

// Get returns the value of the last parameter named name.
func (ps Parameters) Get(name string) (string, bool) {
	name = strings.ToLower(name)
	for i := len(ps) - 1; i >= 0; i-- {
		if ps[i].Name == name {
			return ps[i].Value, true
		}
	}

	return "", false
}

// Lookup returns the value of name, or def when the parameter is not set.
func (ps Parameters) Lookup(name, def string) string {
	if v, ok := ps.Get(name); ok {
		return v
	}

	return def
}

// String formats the parameters in ParseParameters syntax.
func (ps Parameters) String() string {
	items := make([]string, len(ps))
	for i, p := range ps {
		items[i] = p.Name + "=" + p.Value
	}

	return strings.Join(items, ",")
}
