package pipeline

import (
	"context"
	"strings"

	"github.com/davidcohan/identity-broker/internal/config"
)

// Built-in attribute filters. The interesting plugins live in their own
// packages; these two cover the common cases of renaming incoming attribute
// names and stamping static values, and give every pipeline something to
// chain without external services.

// RegisterBuiltins adds the attribute-map and attribute-add filters
func RegisterBuiltins(r *Registry) {
	r.Register("attribute-map", newMapFilter)
	r.Register("attribute-add", newAddFilter)
}

// mapFilter renames one attribute, keeping its ordered values
type mapFilter struct {
	from string
	to   string
}

func newMapFilter(options map[string]string) (Filter, error) {
	if err := config.RequireOptions(options, "from", "to"); err != nil {
		return nil, err
	}
	return &mapFilter{from: options["from"], to: options["to"]}, nil
}

func (f *mapFilter) Process(ctx context.Context, pc *Context) (*Result, error) {
	if values, ok := pc.Attributes[f.from]; ok {
		pc.Attributes[f.to] = values
		delete(pc.Attributes, f.from)
	}
	return Completed(), nil
}

// addFilter sets an attribute to a fixed list of values
type addFilter struct {
	name   string
	values []string
}

func newAddFilter(options map[string]string) (Filter, error) {
	if err := config.RequireOptions(options, "name", "values"); err != nil {
		return nil, err
	}
	var values []string
	for _, v := range strings.Split(options["values"], ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return &addFilter{name: options["name"], values: values}, nil
}

func (f *addFilter) Process(ctx context.Context, pc *Context) (*Result, error) {
	pc.Attributes[f.name] = append([]string(nil), f.values...)
	return Completed(), nil
}
