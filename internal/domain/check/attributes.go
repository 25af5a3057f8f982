package check

import (
	"reflect"
	"regexp"
	"strings"
)

// Attributes is the uniform access interface over a target or credential
// value. It hides whether the underlying value is a map or a struct,
// matching policy._utils.xgetattr's duck-typed "mapping or object" access
// from the original implementation.
type Attributes interface {
	// Get returns the named attribute or map key and whether it was found.
	Get(name string) (any, bool)
}

// Wrap adapts an arbitrary value into Attributes. Maps are served directly;
// anything else is served via struct-field reflection. A nil value yields
// an Attributes that finds nothing, matching the empty-target case used
// throughout the test scenarios (enforce("rule", map[string]any{}, cred)).
func Wrap(v any) Attributes {
	if v == nil {
		return emptyAttributes{}
	}
	if a, ok := v.(Attributes); ok {
		return a
	}
	if m, ok := toStringMap(v); ok {
		return mapAttributes(m)
	}
	return structAttributes{value: reflect.ValueOf(v)}
}

type emptyAttributes struct{}

func (emptyAttributes) Get(string) (any, bool) { return nil, false }

// mapAttributes serves lookups from a string-keyed map, reflecting over
// non-"map[string]any" map types (e.g. map[string]string) so callers are
// not forced to use a single concrete map type.
type mapAttributes map[string]any

func (m mapAttributes) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func toStringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	if rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// structAttributes serves lookups via reflection over a struct's exported
// fields. A field is matched by its `policy` struct tag first, then by an
// exact name match, then by a case-insensitive name match -- this is the
// "structured field access" fallback referenced in the design notes.
type structAttributes struct {
	value reflect.Value
}

func (s structAttributes) Get(name string) (any, bool) {
	v := s.value
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("policy"); ok && tag == name {
			return v.Field(i).Interface(), true
		}
	}
	var fallback int = -1
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == name {
			return v.Field(i).Interface(), true
		}
		if fallback == -1 && strings.EqualFold(f.Name, name) {
			fallback = i
		}
	}
	if fallback != -1 {
		return v.Field(fallback).Interface(), true
	}
	return nil, false
}

// placeholderRE matches printf-style "%(key)s" placeholders used by role
// and generic checks to interpolate the target into the match string.
var placeholderRE = regexp.MustCompile(`%\(([^)]+)\)s`)

// interpolate substitutes every "%(key)s" placeholder in template with the
// stringified value of key looked up from target. If any referenced key is
// missing, ok is false and the check must fail closed.
func interpolate(template string, target Attributes) (result string, ok bool) {
	ok = true
	result = placeholderRE.ReplaceAllStringFunc(template, func(m string) string {
		if !ok {
			return m
		}
		key := placeholderRE.FindStringSubmatch(m)[1]
		val, found := target.Get(key)
		if !found {
			ok = false
			return m
		}
		return Stringify(val)
	})
	if !ok {
		return "", false
	}
	return result, true
}
