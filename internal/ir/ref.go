package ir

import (
	"fmt"
	"strings"
)

// RefScheme prefixes attribute values that point at another resource's
// identity or output, e.g. "ptr://aws:EC2.Vpc/main/id".
const RefScheme = "ptr://"

// Addr returns the address of a resource (type.name).
func Addr(res *Resource) string {
	return fmt.Sprintf("%s.%s", res.Type, res.Name)
}

// StateAddr returns the address of a state entry (type.name).
func StateAddr(res *ResourceState) string {
	return fmt.Sprintf("%s.%s", res.Type, res.Name)
}

// ExtractRefs walks a property value and collects every ptr:// reference.
func ExtractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, RefScheme) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case map[any]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	}
	return refs
}

// RefToAddr converts a ptr:// reference to a resource address.
// ptr://aws:EC2.Vpc/main/id -> aws:EC2.Vpc.main
func RefToAddr(ref string) string {
	if !strings.HasPrefix(ref, RefScheme) {
		return ""
	}
	path := ref[len(RefScheme):]
	// Format: kind/name/attribute
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1])
}

// RefAttribute returns the attribute segment of a reference, or "" when the
// reference names only an identity.
func RefAttribute(ref string) string {
	if !strings.HasPrefix(ref, RefScheme) {
		return ""
	}
	parts := strings.SplitN(ref[len(RefScheme):], "/", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
