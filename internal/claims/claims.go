// Package claims reads identity claims defensively from untyped JSON objects.
//
// Providers disagree on where they put an email or a display name, so lookups
// are expressed as ordered lists of accessors: the first accessor that yields a
// usable value wins.
package claims

// Claims is a decoded JSON object with no enforced schema
type Claims map[string]any

// Accessor extracts one candidate value from a claims mapping.
// ok is false when the claim is absent or not usable.
type Accessor func(Claims) (value string, ok bool)

// Field reads a string claim. Empty strings and non-string values such as
// false or 0 count as absent.
func Field(name string) Accessor {
	return func(c Claims) (string, bool) {
		return stringValue(c[name])
	}
}

// FirstElement reads the first element of an array claim such as "emails".
// A plain string under the same name is accepted too.
func FirstElement(name string) Accessor {
	return func(c Claims) (string, bool) {
		switch v := c[name].(type) {
		case []any:
			if len(v) == 0 {
				return "", false
			}
			return stringValue(v[0])
		case []string:
			if len(v) == 0 {
				return "", false
			}
			return stringValue(v[0])
		default:
			return stringValue(v)
		}
	}
}

// Const always yields value. Useful for values that sit outside the claims
// mapping, like an account's username.
func Const(value string) Accessor {
	return func(Claims) (string, bool) {
		return value, value != ""
	}
}

// First returns the first value produced by accessors, or "".
func First(c Claims, accessors ...Accessor) string {
	return FirstMatching(c, nil, accessors...)
}

// FirstMatching returns the first value produced by accessors that also
// satisfies valid. A nil valid accepts any value.
func FirstMatching(c Claims, valid func(string) bool, accessors ...Accessor) string {
	for _, get := range accessors {
		v, ok := get(c)
		if !ok {
			continue
		}
		if valid != nil && !valid(v) {
			continue
		}
		return v
	}
	return ""
}

// HasAny reports whether any of names is present with a usable value
func (c Claims) HasAny(names ...string) bool {
	for _, name := range names {
		if _, ok := stringValue(c[name]); ok {
			return true
		}
	}
	return false
}

// String returns the claim as a string, or "" when absent
func (c Claims) String(name string) string {
	v, _ := stringValue(c[name])
	return v
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}
