package formbind

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/buoy-console/internal/platform/jsonutil"
)

// FieldErrors maps a field name to a message for input that could not be
// converted to the field's type.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	names := make([]string, 0, len(e))
	for n := range e {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, n+": "+e[n])
	}
	return "invalid form input: " + strings.Join(parts, "; ")
}

// Decode applies a posted form onto a copy of base. Keys the descriptor does
// not describe are carried over untouched; an empty input for an optional
// field removes the key.
func Decode(d *Descriptor, base map[string]any, form url.Values) (map[string]any, error) {
	out := jsonutil.CloneMap(base)
	errs := FieldErrors{}
	decodeFields(d.Fields, out, form, errs)
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func decodeFields(fields []Field, into map[string]any, form url.Values, errs FieldErrors) {
	for _, f := range fields {
		if f.Kind == KindObject {
			child, _ := into[f.Key].(map[string]any)
			if child == nil {
				child = map[string]any{}
			}
			decodeFields(f.Fields, child, form, errs)
			if len(child) > 0 || f.Required {
				into[f.Key] = child
			} else {
				delete(into, f.Key)
			}
			continue
		}
		if f.Kind == KindBoolean {
			if _, shown := form[f.Name+".present"]; !shown {
				if _, sent := form[f.Name]; !sent {
					continue
				}
			}
			into[f.Key] = form.Get(f.Name) == "true" || form.Get(f.Name) == "on"
			continue
		}

		if _, sent := form[f.Name]; !sent {
			continue
		}
		raw := strings.TrimSpace(form.Get(f.Name))
		if raw == "" {
			if f.Required {
				errs[f.Name] = "required"
			} else {
				delete(into, f.Key)
			}
			continue
		}
		v, err := convert(f, raw)
		if err != nil {
			errs[f.Name] = err.Error()
			continue
		}
		into[f.Key] = v
	}
}

func convert(f Field, raw string) (any, error) {
	switch f.Kind {
	case KindInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a whole number")
		}
		return n, nil
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return n, nil
	case KindEnum:
		for _, opt := range f.Enum {
			if scalarText(opt) == raw {
				return opt, nil
			}
		}
		return nil, fmt.Errorf("not one of the allowed values")
	case KindJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("must be valid JSON")
		}
		return v, nil
	default:
		return raw, nil
	}
}
