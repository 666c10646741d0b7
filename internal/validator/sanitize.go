package validator

// SanitizeInput returns a deep copy of value with every forbidden key
// removed at every depth. Scalars are returned as-is. It is a second line of
// defense behind validation, not a replacement for rejecting the request.
func SanitizeInput(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		for k, child := range v {
			if isForbiddenKey(k) {
				continue
			}
			out[k] = SanitizeInput(child)
		}
		return out
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = SanitizeInput(child)
		}
		return out
	default:
		return v
	}
}

// SanitizeArguments is SanitizeInput for an argument object.
func SanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	return SanitizeInput(args).(map[string]any)
}
