package authz

// writableFields allow-lists the request-body fields that may be copied
// into a write payload, per resource kind. Role, affiliation and lifecycle
// columns are deliberately absent: they change only through dedicated
// operations, never through a generic update body.
var writableFields = map[ResourceKind][]string{
	KindTenant:       {"name", "slug", "contact_email", "phone"},
	KindClient:       {"name", "contact_email", "phone", "address"},
	KindBranch:       {"name", "address", "phone"},
	KindUser:         {"name", "email", "phone", "password"},
	KindPlan:         {"name", "description", "price_cents", "currency", "interval"},
	KindSubscription: {"plan_id", "status"},
	KindInvoice:      {"due_date", "notes"},
}

// WritableFields returns the allow-list for a kind, nil for unknown kinds.
func WritableFields(kind ResourceKind) []string {
	return writableFields[kind]
}

// FilterWritableFields copies only allow-listed fields from body into the
// returned map. Disallowed fields are silently dropped, matching PATCH
// semantics where omitted fields stay untouched and unknown fields are
// ignored rather than rejected. Filtering is idempotent. The caller must
// treat an empty result as a validation error, not a no-op success.
func FilterWritableFields(kind ResourceKind, body map[string]any) map[string]any {
	allowed := writableFields[kind]
	sanitized := make(map[string]any, len(allowed))
	for _, field := range allowed {
		if value, ok := body[field]; ok {
			sanitized[field] = value
		}
	}
	return sanitized
}
