package bytecode

import (
	"fmt"
	"sync"
)

type familyForm struct {
	family Family
	form   Form
}

// Catalog is an immutable table of opcode descriptors. A single instance is
// built once and shared by every unit being finished, concurrently if
// need be.
type Catalog struct {
	ops      [256]*Descriptor
	byKey    map[familyForm]*Descriptor
	byName   map[string]*Descriptor
	natural  map[Family]*Descriptor
	variants map[Family][]*Descriptor
}

// NewCatalog builds a catalog from the given descriptors. Opcode values must
// be unique. When two descriptors share a (family, form) pair the first one
// wins, matching a first-match scan of the opcode table.
func NewCatalog(descs []Descriptor) (*Catalog, error) {
	c := &Catalog{
		byKey:    make(map[familyForm]*Descriptor, len(descs)),
		byName:   make(map[string]*Descriptor, len(descs)),
		natural:  make(map[Family]*Descriptor),
		variants: make(map[Family][]*Descriptor),
	}

	for i := range descs {
		d := descs[i]
		if d.Form == FormNone || d.Form >= formCount {
			return nil, fmt.Errorf("opcode 0x%02X (%s): invalid form %d", d.Opcode, d.Name, d.Form)
		}
		if c.ops[d.Opcode] != nil {
			return nil, fmt.Errorf("opcode 0x%02X defined twice (%s, %s)", d.Opcode, c.ops[d.Opcode].Name, d.Name)
		}
		dp := &d
		c.ops[d.Opcode] = dp
		c.byName[d.Name] = dp

		key := familyForm{d.Family, d.Form}
		if _, ok := c.byKey[key]; !ok {
			c.byKey[key] = dp
		}
		c.variants[d.Family] = append(c.variants[d.Family], dp)
		if n, ok := c.natural[d.Family]; !ok || d.Form < n.Form {
			c.natural[d.Family] = dp
		}
	}

	return c, nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := NewCatalog(standardDescriptors)
	if err != nil {
		panic(fmt.Sprintf("bytecode: standard catalog: %v", err))
	}
	return c
})

// Default returns the shared catalog for the standard instruction set.
func Default() *Catalog {
	return defaultCatalog()
}

// Get returns the descriptor for a numeric opcode.
func (c *Catalog) Get(op Opcode) (*Descriptor, error) {
	if d := c.ops[op]; d != nil {
		return d, nil
	}
	return nil, fmt.Errorf("unknown opcode 0x%02X", uint8(op))
}

// Lookup returns the descriptor realizing family in form, or nil if the
// catalog has no such opcode.
func (c *Catalog) Lookup(family Family, form Form) *Descriptor {
	return c.byKey[familyForm{family, form}]
}

// Natural returns the family's narrowest descriptor: the optimistic first
// guess that form selection pessimizes from.
func (c *Catalog) Natural(family Family) (*Descriptor, bool) {
	d, ok := c.natural[family]
	return d, ok
}

// Variants returns the family's descriptors in catalog order.
func (c *Catalog) Variants(family Family) []*Descriptor {
	return c.variants[family]
}

// ByName returns the descriptor with the given mnemonic.
func (c *Catalog) ByName(name string) (*Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Descriptors returns all descriptors in opcode order.
func (c *Catalog) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(c.byName))
	for _, d := range c.ops {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of defined opcodes.
func (c *Catalog) Len() int {
	return len(c.byName)
}
