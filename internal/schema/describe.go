package schema

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/invopop/jsonschema"
)

// Describe reflects a self-contained JSON Schema for T, suitable for a
// structured-output request.
func Describe[T any]() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: false,
	}
	var v T
	return r.Reflect(&v)
}

// Name returns a stable snake_case identifier for T, e.g. "food_interaction_result".
func Name[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		return "result"
	}
	var sb strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
