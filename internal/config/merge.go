package config

// MergeOptions merges two option layers key by key, with the override layer
// taking precedence. Neither input map is modified. Filters that inherit
// connection settings from a referenced source build their effective
// configuration this way instead of patching defaults in as they go.
func MergeOptions(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// RequireOptions validates that every named key is present and non-empty in
// the merged option map. Validation happens once, after merging.
func RequireOptions(options map[string]string, keys ...string) error {
	for _, key := range keys {
		if options[key] == "" {
			return &Error{Kind: KindMissingOption, Subject: key}
		}
	}
	return nil
}
