package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrDecode marks bytes that do not match the expected shape. Callers of the
// result cache treat it exactly like a miss.
var ErrDecode = errors.New("schema: decode failed")

// ErrInvalid marks a value that violates its own shape contract.
var ErrInvalid = errors.New("schema: invalid value")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names rather than Go field names in errors.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Codec serializes values of T to JSON and back. The type T together with its
// `validate` struct tags is the shape descriptor: Decode refuses anything that
// does not satisfy it.
type Codec[T any] struct {
	// Version tags every stored entry so that schema evolution can be told
	// apart from corruption. Bump it whenever T changes incompatibly.
	Version string
}

// NewCodec returns a codec for T tagged with version.
func NewCodec[T any](version string) Codec[T] {
	return Codec[T]{Version: version}
}

// Encode validates v and marshals it to JSON.
func (c Codec[T]) Encode(v T) ([]byte, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %w", ErrInvalid, err)
	}
	return b, nil
}

// Decode parses b strictly into T and validates the result. On any failure it
// returns the zero value and an error wrapping ErrDecode.
func (c Codec[T]) Decode(b []byte) (T, error) {
	var zero T
	raw := bytes.TrimSpace(stripFence(b))
	if len(raw) == 0 {
		return zero, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if bytes.Equal(raw, []byte("null")) {
		return zero, fmt.Errorf("%w: null payload", ErrDecode)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var v T
	if err := dec.Decode(&v); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return zero, fmt.Errorf("%w: trailing data after value", ErrDecode)
	}
	if err := Validate(v); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return v, nil
}

// Validate checks v against its validate tags. Non-struct values pass.
func Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return fmt.Errorf("%w: nil value", ErrInvalid)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	if err := validatorInstance().Struct(rv.Interface()); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// stripFence removes a surrounding Markdown code fence such as ```json ... ```.
// Models frequently wrap JSON output this way even when asked not to.
func stripFence(b []byte) []byte {
	s := bytes.TrimSpace(b)
	if !bytes.HasPrefix(s, []byte("```")) {
		return b
	}
	s = s[3:]
	if nl := bytes.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return b
	}
	s = bytes.TrimSpace(s)
	s = bytes.TrimSuffix(s, []byte("```"))
	return s
}
