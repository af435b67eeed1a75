package logger

import "strings"

// DefaultMaskValue replaces credential-bearing values in log output
const DefaultMaskValue = "***"

// defaultSensitiveFields are field/header names whose values are masked.
// Matching is case-insensitive and substring-based so that e.g.
// "Authorization" and "access_token" are both caught.
var defaultSensitiveFields = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"credential",
	"api_key",
	"apikey",
}

// CredentialFilter masks credential-bearing values before they reach the
// log sink. Requests carry bearer tokens in headers, so header maps and
// string fields pass through here.
type CredentialFilter struct {
	fields    []string
	maskValue string
}

// NewCredentialFilter creates a filter for the given sensitive field names.
// A nil or empty list selects the default set.
func NewCredentialFilter(fields []string) *CredentialFilter {
	if len(fields) == 0 {
		fields = defaultSensitiveFields
	}
	lowered := make([]string, len(fields))
	for i, f := range fields {
		lowered[i] = strings.ToLower(f)
	}
	return &CredentialFilter{fields: lowered, maskValue: DefaultMaskValue}
}

// FilterString masks the value when the key names a credential field.
func (f *CredentialFilter) FilterString(key, value string) string {
	if f.isSensitive(key) {
		return f.maskValue
	}
	return value
}

// FilterValue masks arbitrary values. String-keyed maps are filtered
// per entry; everything else is masked only when its own key matches.
func (f *CredentialFilter) FilterValue(key string, value any) any {
	if f.isSensitive(key) {
		return f.maskValue
	}
	switch m := value.(type) {
	case map[string]string:
		return f.FilterHeaders(m)
	case map[string]any:
		return f.FilterFields(m)
	default:
		return value
	}
}

// FilterFields returns a copy of fields with credential values masked.
func (f *CredentialFilter) FilterFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if f.isSensitive(k) {
			out[k] = f.maskValue
			continue
		}
		out[k] = f.FilterValue(k, v)
	}
	return out
}

// FilterHeaders returns a copy of a header map with credential values masked.
func (f *CredentialFilter) FilterHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if f.isSensitive(k) {
			out[k] = f.maskValue
			continue
		}
		out[k] = v
	}
	return out
}

func (f *CredentialFilter) isSensitive(key string) bool {
	lk := strings.ToLower(key)
	for _, field := range f.fields {
		if strings.Contains(lk, field) {
			return true
		}
	}
	return false
}
