package rbac

// Role names. Keep these stable; they are part of the dashboard session contract.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleMember  = "member"
	RoleViewer  = "viewer"
	RoleSupport = "support" // platform staff debugging customer calls
)

// Permission names one thing a session may do.
type Permission string

const (
	// PermReadCalls covers call detail, timeline and latency reads.
	PermReadCalls Permission = "calls:read"
	// PermReadTranscripts is required in addition to PermReadCalls to see
	// transcript content on a call.
	PermReadTranscripts Permission = "calls:read_transcripts"
)

var grants = map[string][]Permission{
	RoleOwner:   {PermReadCalls, PermReadTranscripts},
	RoleAdmin:   {PermReadCalls, PermReadTranscripts},
	RoleMember:  {PermReadCalls, PermReadTranscripts},
	RoleViewer:  {PermReadCalls},
	RoleSupport: {PermReadCalls},
}

// Allowed reports whether role carries p. Unknown roles carry nothing.
func Allowed(role string, p Permission) bool {
	for _, g := range grants[role] {
		if g == p {
			return true
		}
	}
	return false
}
