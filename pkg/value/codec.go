package value

import (
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/edgekernel/core/pkg/coreerr"
	"github.com/edgekernel/core/pkg/symtab"
)

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// toPlain converts a Container into plain Go values (map[string]any,
// []any, or a scalar) suitable for both jsoniter and yaml.v3 marshalling.
// Maps become objects, lists become arrays, boxed scalars become scalars —
// the mapping spec.md §4.3 assigns to the (external) YAML/JSON codecs.
func toPlain(c Container) any {
	switch t := c.(type) {
	case *Map:
		out := make(map[string]any, t.Size())
		t.Range(func(k string, v any) bool {
			out[k] = toPlainValue(v)
			return true
		})
		return out
	case *List:
		items := t.Slice()
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = toPlainValue(v)
		}
		return out
	case *Buffer:
		return t.Bytes()
	case Boxed:
		return unboxPlain(t)
	default:
		return nil
	}
}

func toPlainValue(v any) any {
	if c, ok := v.(Container); ok {
		return toPlain(c)
	}
	return v
}

func unboxPlain(b Boxed) any {
	switch b.Kind() {
	case ScalarBool:
		return b.UnboxBool()
	case ScalarInt64:
		return b.UnboxInt64()
	case ScalarFloat64:
		return b.UnboxFloat64()
	case ScalarString:
		return b.UnboxString()
	case ScalarSymbol, ScalarHandle:
		return b.UnboxString()
	default:
		return nil
	}
}

// fromPlain builds a Container tree from a decoded map/slice/scalar value
// (as produced by jsoniter or yaml.v3 unmarshalling into `any`).
func fromPlain(syms *symtab.Table, v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		m := NewMap(syms)
		for k, raw := range t {
			child, err := fromPlain(syms, raw)
			if err != nil {
				return nil, err
			}
			if err := m.Put(k, child); err != nil {
				return nil, err
			}
		}
		return m, nil
	case []any:
		l := NewList(syms)
		for _, raw := range t {
			child, err := fromPlain(syms, raw)
			if err != nil {
				return nil, err
			}
			if err := l.Insert(-1, child); err != nil {
				return nil, err
			}
		}
		return l, nil
	case string:
		return Box(t), nil
	case bool:
		return Box(t), nil
	case float64:
		return Box(t), nil
	case int:
		return Box(int64(t)), nil
	case int64:
		return Box(t), nil
	case nil:
		return Box(""), nil
	default:
		return nil, coreerr.Newf(coreerr.JSONParseError, "unsupported decoded type %T", v)
	}
}

// ToJSON serializes c to JSON using json-iterator/go.
func ToJSON(c Container) ([]byte, error) {
	b, err := fastJSON.Marshal(toPlain(c))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.JSONParseError, "marshal", err)
	}
	return b, nil
}

// FromJSON parses JSON into a Container tree, interning map keys via syms.
func FromJSON(syms *symtab.Table, data []byte) (any, error) {
	var decoded any
	if err := fastJSON.Unmarshal(data, &decoded); err != nil {
		return nil, coreerr.Wrap(coreerr.JSONParseError, "unmarshal", err)
	}
	return fromPlain(syms, decoded)
}

// ToYAML serializes c to YAML using yaml.v3.
func ToYAML(c Container) ([]byte, error) {
	b, err := yaml.Marshal(toPlain(c))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.JSONParseError, "yaml marshal", err)
	}
	return b, nil
}

// FromYAML parses YAML into a Container tree, interning map keys via syms.
func FromYAML(syms *symtab.Table, data []byte) (any, error) {
	var decoded any
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return nil, coreerr.Wrap(coreerr.JSONParseError, "yaml unmarshal", err)
	}
	normalized := normalizeYAML(decoded)
	return fromPlain(syms, normalized)
}

// normalizeYAML rewrites yaml.v3's map[string]interface{} (already the
// default for string-keyed mappings) and recurses into nested structures;
// yaml.v3 decodes non-string-keyed maps as map[string]interface{} too when
// the target is `any`, so this only needs to walk slices/maps uniformly.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}
