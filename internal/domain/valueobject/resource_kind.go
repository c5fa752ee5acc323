package valueobject

import "fmt"

// ResourceKind identifies a metered resource tracked by the quota ledger.
// Quota rows are keyed by (tenant, resource kind).
type ResourceKind string

// Resource kind constants.
const (
	ResourceKindLLMTokens    ResourceKind = "llm_tokens"
	ResourceKindContentScans ResourceKind = "content_scans"
	ResourceKindAPIRequests  ResourceKind = "api_requests"
)

var validResourceKinds = map[ResourceKind]bool{
	ResourceKindLLMTokens:    true,
	ResourceKindContentScans: true,
	ResourceKindAPIRequests:  true,
}

// NewResourceKind creates a new ResourceKind with validation.
func NewResourceKind(kind string) (ResourceKind, error) {
	k := ResourceKind(kind)
	if !validResourceKinds[k] {
		return "", fmt.Errorf("invalid resource kind: %s", kind)
	}
	return k, nil
}

// String returns the string representation of the kind.
func (k ResourceKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is a known resource kind.
func (k ResourceKind) IsValid() bool {
	return validResourceKinds[k]
}

// AllResourceKinds returns all valid resource kinds.
func AllResourceKinds() []ResourceKind {
	kinds := make([]ResourceKind, 0, len(validResourceKinds))
	for kind := range validResourceKinds {
		kinds = append(kinds, kind)
	}
	return kinds
}
