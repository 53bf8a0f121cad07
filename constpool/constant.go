// Package constpool interns the symbolic references embedded in
// instructions (strings, types, fields, methods) and hands back their final
// integer indices once the pool is frozen.
package constpool

import "fmt"

// Kind selects the index space a constant lives in. Each kind is numbered
// independently, starting at 0.
type Kind uint8

const (
	KindString Kind = iota
	KindType
	KindField
	KindMethod

	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindType:
		return "type"
	case KindField:
		return "field"
	case KindMethod:
		return "method"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := KindString; k < kindCount; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown constant kind %q", s)
}

// Constant is a symbolic reference. It is comparable, so equal references
// intern to the same entry.
type Constant struct {
	Kind Kind

	// Value is the string literal or the type descriptor.
	Value string

	// Member references name their defining type, member name, and type
	// (field type or method prototype).
	Definer string
	Name    string
	Type    string
}

// String returns a string literal constant.
func String(s string) Constant {
	return Constant{Kind: KindString, Value: s}
}

// Type returns a type reference, e.g. "Ljava/lang/Object;".
func Type(desc string) Constant {
	return Constant{Kind: KindType, Value: desc}
}

// Field returns a field reference.
func Field(definer, name, typ string) Constant {
	return Constant{Kind: KindField, Definer: definer, Name: name, Type: typ}
}

// Method returns a method reference; proto is the method prototype,
// e.g. "(II)I".
func Method(definer, name, proto string) Constant {
	return Constant{Kind: KindMethod, Definer: definer, Name: name, Type: proto}
}

// IsMember reports whether c is a field or method reference.
func (c Constant) IsMember() bool {
	return c.Kind == KindField || c.Kind == KindMethod
}

// DefiningType returns the type that declares a member reference.
func (c Constant) DefiningType() (Constant, bool) {
	if !c.IsMember() {
		return Constant{}, false
	}
	return Type(c.Definer), true
}

// Key returns the sort key that orders constants within their kind.
func (c Constant) Key() string {
	switch c.Kind {
	case KindField:
		return c.Definer + "->" + c.Name + ":" + c.Type
	case KindMethod:
		return c.Definer + "->" + c.Name + c.Type
	default:
		return c.Value
	}
}

func (c Constant) String() string {
	switch c.Kind {
	case KindString:
		return fmt.Sprintf("string %q", c.Value)
	default:
		return c.Kind.String() + " " + c.Key()
	}
}
