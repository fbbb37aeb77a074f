package types

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Value is a typed datum flowing through the graph: subjects, task inputs
// and task outputs are all Values.
type Value struct {
	Type TypeID
	Data cty.Value
}

// GoString renders the value for logs and diagnostics.
func (v Value) GoString() string {
	return fmt.Sprintf("%s(%s)", v.Type, v.Data.GoString())
}

// Equal reports whether both values carry the same type and equal data.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	if v.Data == cty.NilVal || other.Data == cty.NilVal {
		return v.Data == other.Data
	}
	return v.Data.RawEquals(other.Data)
}

// Key is the identity of a subject. It is immutable; two keys built from
// equal values are equal.
type Key struct {
	id    string
	value Value
}

// NewKey builds the key for a value. The value's data must be wholly known,
// since its canonical JSON encoding is part of the identity.
func NewKey(v Value) (Key, error) {
	if v.Type == "" {
		return Key{}, fmt.Errorf("subject value has no type")
	}
	if v.Data == cty.NilVal || !v.Data.IsWhollyKnown() {
		return Key{}, fmt.Errorf("subject value of type %s is not wholly known", v.Type)
	}
	raw, err := ctyjson.Marshal(v.Data, v.Data.Type())
	if err != nil {
		return Key{}, fmt.Errorf("failed to encode subject of type %s: %w", v.Type, err)
	}
	return Key{id: string(v.Type) + ":" + string(raw), value: v}, nil
}

// ID returns the canonical identity string.
func (k Key) ID() string { return k.id }

// Type returns the subject's declared type.
func (k Key) Type() TypeID { return k.value.Type }

// Value returns the subject's value.
func (k Key) Value() Value { return k.value }

func (k Key) String() string { return k.id }
