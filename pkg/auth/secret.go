package auth

const redacted = "[REDACTED]"

// Secret wraps a password, service token or issued bearer token so it
// cannot leak through fmt, slog or encoding/json.
//
//	s := auth.NewSecret("hunter2")
//	fmt.Println(s)       // [REDACTED]
//	s.Reveal()           // "hunter2"
//
// The zero value is an empty secret meaning "not provided".
type Secret struct {
	value string
}

// NewSecret wraps value. An empty value is allowed.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Reveal returns the plaintext. Only call it where the value goes on the
// wire or into the cache encoder. Never log the result.
func (s Secret) Reveal() string {
	return s.value
}

// IsEmpty reports whether no value was provided.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer for %#v.
func (s Secret) GoString() string {
	return "auth.Secret{" + redacted + "}"
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
