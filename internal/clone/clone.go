// Package clone copies values across the worker isolation boundary.
//
// Clone never fails. Containers are copied depth first; a container met
// again on its own ancestry is a back-edge and is left out of the copy
// (object keys are dropped, array slots become null). Values that cannot
// cross the boundary (funcs, chans, unsafe pointers, complex numbers) are
// replaced by an empty object.
package clone

import (
	"encoding"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Placeholder returns the inert stand-in used for opaque values.
func Placeholder() map[string]any {
	return map[string]any{}
}

// Clone returns an independently owned copy of v built only from nil,
// bool, int64, uint64, float64, string, []any and map[string]any.
func Clone(v any) any {
	c := cloner{path: make(map[identity]struct{})}
	out, ok := c.value(reflect.ValueOf(v))
	if !ok {
		return nil
	}
	return out
}

type identity struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

// cloner holds the containers on the current traversal path.
type cloner struct {
	path map[identity]struct{}
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// value copies rv. ok is false when rv is a back-edge.
func (c *cloner) value(rv reflect.Value) (any, bool) {
	if !rv.IsValid() {
		return nil, true
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return nil, true
		}
	}

	if rv.Kind() != reflect.Interface && rv.CanInterface() {
		if rv.Type().Implements(jsonMarshalerType) {
			return c.marshaled(rv.Interface().(json.Marshaler)), true
		}
		if rv.Type().Implements(textMarshalerType) {
			b, err := rv.Interface().(encoding.TextMarshaler).MarshalText()
			if err != nil {
				return Placeholder(), true
			}
			return string(b), true
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
		return f, true
	case reflect.String:
		return rv.String(), true
	case reflect.Interface:
		return c.value(rv.Elem())
	case reflect.Pointer:
		id := identity{typ: rv.Type(), ptr: rv.Pointer()}
		if !c.enter(id) {
			return nil, false
		}
		defer c.leave(id)
		return c.value(rv.Elem())
	case reflect.Map:
		return c.mapValue(rv)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return bytesValue(rv.Bytes()), true
		}
		if rv.Len() > 0 {
			id := identity{typ: rv.Type(), ptr: rv.Pointer(), n: rv.Len()}
			if !c.enter(id) {
				return nil, false
			}
			defer c.leave(id)
		}
		return c.list(rv), true
	case reflect.Array:
		return c.list(rv), true
	case reflect.Struct:
		out := make(map[string]any)
		c.structFields(rv, out)
		return out, true
	default:
		// Func, Chan, UnsafePointer, Uintptr, Complex64, Complex128.
		return Placeholder(), true
	}
}

func (c *cloner) enter(id identity) bool {
	if _, onPath := c.path[id]; onPath {
		return false
	}
	c.path[id] = struct{}{}
	return true
}

func (c *cloner) leave(id identity) {
	delete(c.path, id)
}

func (c *cloner) marshaled(m json.Marshaler) any {
	b, err := m.MarshalJSON()
	if err != nil {
		return Placeholder()
	}
	var out any
	if err := sonic.ConfigStd.Unmarshal(b, &out); err != nil {
		return Placeholder()
	}
	return out
}

func (c *cloner) list(rv reflect.Value) []any {
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, ok := c.value(rv.Index(i))
		if !ok {
			v = nil
		}
		out = append(out, v)
	}
	return out
}

func (c *cloner) mapValue(rv reflect.Value) (any, bool) {
	id := identity{typ: rv.Type(), ptr: rv.Pointer()}
	if !c.enter(id) {
		return nil, false
	}
	defer c.leave(id)

	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, ok := mapKey(iter.Key())
		if !ok {
			return Placeholder(), true
		}
		entries = append(entries, entry{key, iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	out := make(map[string]any, len(entries))
	for _, e := range entries {
		if v, ok := c.value(e.val); ok {
			out[e.key] = v
		}
	}
	return out, true
}

func mapKey(k reflect.Value) (string, bool) {
	if k.Kind() == reflect.Interface {
		k = k.Elem()
	}
	if !k.IsValid() {
		return "", false
	}
	if k.Kind() == reflect.String {
		return k.String(), true
	}
	if k.CanInterface() && k.Type().Implements(textMarshalerType) {
		b, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		return string(b), err == nil
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), true
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), true
	}
	return "", false
}

// structFields copies exported fields into out, honoring json tags.
// Untagged embedded structs are flattened.
func (c *cloner) structFields(rv reflect.Value, out map[string]any) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)

		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				if ft.Elem().Kind() == reflect.Struct {
					// An embedded pointer already on the path is a back-edge.
					id := identity{typ: ft, ptr: fv.Pointer()}
					if c.enter(id) {
						c.structFields(fv.Elem(), out)
						c.leave(id)
					}
					continue
				}
				fv = fv.Elem()
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				c.structFields(fv, out)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}
		if v, ok := c.value(fv); ok {
			out[name] = v
		}
	}
}

func bytesValue(b []byte) []any {
	out := make([]any, len(b))
	for i, x := range b {
		out[i] = int64(x)
	}
	return out
}
