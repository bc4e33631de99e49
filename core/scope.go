package core

// Scope carries the tenant/user identity a request was authenticated as.
// Identity resolution (subdomain lookup, JWT parsing) happens outside this
// subsystem; the scope is consumed as opaque strings. Tools and stores must
// not reach beyond the scope handed to them.
type Scope struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	SchoolID string `json:"school_id,omitempty"`
}

// Validate reports a missing tenant or user identity as an AuthContextError.
// Streams are rejected before any output when validation fails.
func (s Scope) Validate() error {
	if s.TenantID == "" {
		return &AuthContextError{Missing: "tenant_id"}
	}
	if s.UserID == "" {
		return &AuthContextError{Missing: "user_id"}
	}
	return nil
}
