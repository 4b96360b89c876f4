package service

import "strings"

const RedactedValue = "***"

// MaskFieldSet normalizes configured field names for Mask.
func MaskFieldSet(fields []string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

// Mask redacts top-level keys of a mapping payload. Anything that is not a
// mapping is returned unchanged. The input is never mutated.
func Mask(payload any, fields map[string]struct{}) any {
	switch raw := payload.(type) {
	case map[string]any:
		out := make(map[string]any, len(raw))
		for k, v := range raw {
			if _, hit := fields[strings.ToLower(k)]; hit {
				out[k] = RedactedValue
				continue
			}
			out[k] = v
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			if _, hit := fields[strings.ToLower(k)]; hit {
				out[k] = RedactedValue
				continue
			}
			out[k] = v
		}
		return out
	default:
		return payload
	}
}
