package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const legacyRefPrefix = "leg_"

// ParseCustomerRef interprets an API-level customer reference. References carrying the
// legacy prefix decode to a (name, phone) composite; everything else is treated as a
// table-backed customer id.
func ParseCustomerRef(ref string) (CustomerRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return CustomerRef{}, fmt.Errorf("customer ref is empty")
	}

	if !strings.HasPrefix(ref, legacyRefPrefix) {
		return CustomerRef{Kind: CustomerRefID, ID: ref}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ref, legacyRefPrefix))
	if err != nil {
		return CustomerRef{}, fmt.Errorf("malformed legacy customer ref: %w", err)
	}
	name, phone, ok := strings.Cut(string(raw), "\n")
	if !ok {
		return CustomerRef{}, fmt.Errorf("malformed legacy customer ref")
	}
	return CustomerRef{Kind: CustomerRefLegacy, Name: name, Phone: phone}, nil
}

// LegacyCustomerRef builds the read-only reference for a (shipping name, phone) group.
func LegacyCustomerRef(name, phone string) CustomerRef {
	return CustomerRef{Kind: CustomerRefLegacy, Name: name, Phone: phone}
}

// String renders the reference in its API form.
func (r CustomerRef) String() string {
	if r.Kind == CustomerRefLegacy {
		return legacyRefPrefix + base64.RawURLEncoding.EncodeToString([]byte(r.Name+"\n"+r.Phone))
	}
	return r.ID
}
