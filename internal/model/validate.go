package model

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError maps field paths (scenes[0].durationInSeconds) to reasons.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidator returns a validator that reports JSON field names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate applies defaults, then checks struct tags and the cross-scene rule
// that a transition may not be longer than either scene it joins.
func (c *Composition) Validate(v *validator.Validate) error {
	c.ApplyDefaults()

	fields := make(map[string]string)
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fieldPath(fe)] = reason(fe)
		}
	}

	for i := 0; i < len(c.Scenes)-1; i++ {
		s := &c.Scenes[i]
		if !s.HasTransition() {
			continue
		}
		key := fmt.Sprintf("scenes[%d].transitionDurationInSeconds", i)
		switch td := s.TransitionDurationInSeconds; {
		case td > s.DurationInSeconds:
			fields[key] = "exceeds scene duration"
		case td > c.Scenes[i+1].DurationInSeconds:
			fields[key] = "exceeds next scene duration"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reason(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}
