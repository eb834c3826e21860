// Package stages holds the ordered delivery stages a project moves through and the
// bidirectional mapping between their machine codes and display names.
package stages

import (
	"errors"
	"fmt"
	"strings"
)

// Def is one stage in the ordered list.
type Def struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// Catalog is an immutable, ordered code↔name table. The last entry is terminal.
type Catalog struct {
	defs   []Def
	byCode map[string]int
	byName map[string]int
}

var defaultDefs = []Def{
	{Code: "planning", Name: "Planning"},
	{Code: "ui_ux", Name: "UI/UX Design"},
	{Code: "development", Name: "Development"},
	{Code: "testing", Name: "Testing"},
	{Code: "deployment", Name: "Deployment"},
	{Code: "completed", Name: "Completed"},
}

// Default returns the canonical catalog.
func Default() Catalog {
	c, err := NewCatalog(defaultDefs)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalog validates defs and builds a catalog. defs is copied.
func NewCatalog(defs []Def) (Catalog, error) {
	if len(defs) < 2 {
		return Catalog{}, errors.New("at least two stages required")
	}
	c := Catalog{
		defs:   make([]Def, len(defs)),
		byCode: make(map[string]int, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		d.Code = strings.TrimSpace(d.Code)
		d.Name = strings.TrimSpace(d.Name)
		if d.Code == "" || d.Name == "" {
			return Catalog{}, fmt.Errorf("stage %d: code and name required", i+1)
		}
		if _, dup := c.byCode[d.Code]; dup {
			return Catalog{}, fmt.Errorf("duplicate stage code %s", d.Code)
		}
		if _, dup := c.byName[d.Name]; dup {
			return Catalog{}, fmt.Errorf("duplicate stage name %s", d.Name)
		}
		c.defs[i] = d
		c.byCode[d.Code] = i
		c.byName[d.Name] = i
	}
	return c, nil
}

// Stages returns a copy of the ordered stage list.
func (c Catalog) Stages() []Def {
	out := make([]Def, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len is the number of stages.
func (c Catalog) Len() int { return len(c.defs) }

// First is the stage a new project starts in.
func (c Catalog) First() Def { return c.defs[0] }

// Terminal is the final stage.
func (c Catalog) Terminal() Def { return c.defs[len(c.defs)-1] }

// IsTerminal reports whether code is the terminal stage code.
func (c Catalog) IsTerminal(code string) bool {
	return len(c.defs) > 0 && code == c.Terminal().Code
}

// NameFor maps a code to its display name. Unknown codes are passed through
// unchanged with ok=false so legacy rows with unmapped codes still resolve.
func (c Catalog) NameFor(code string) (name string, ok bool) {
	if i, found := c.byCode[code]; found {
		return c.defs[i].Name, true
	}
	return code, false
}

// CodeFor maps a display name to its code. Unknown names fall back to Slug(name)
// with ok=false.
func (c Catalog) CodeFor(name string) (code string, ok bool) {
	if i, found := c.byName[name]; found {
		return c.defs[i].Code, true
	}
	return Slug(name), false
}

// Slug lower-cases name and collapses every run of non-alphanumerics into "_".
func Slug(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
