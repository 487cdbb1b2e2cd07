package routing

// Kind identifies the variant of a Target.
type Kind int

const (
	// KindUnknown means no route matched the host.
	KindUnknown Kind = iota

	// KindBackend means the request goes to a backend service.
	KindBackend

	// KindDashboard means the request is for incipit's own dashboard.
	KindDashboard
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBackend:
		return "backend"
	case KindDashboard:
		return "dashboard"
	default:
		return "unknown"
	}
}

// Target is the outcome of resolving a host. It is a comparable value:
// two targets are equal when they have the same kind and address.
type Target struct {
	kind Kind
	addr string
}

// Backend returns a target for the backend at addr (host:port).
func Backend(addr string) Target {
	return Target{kind: KindBackend, addr: addr}
}

// Dashboard returns the target for incipit's own dashboard.
func Dashboard() Target {
	return Target{kind: KindDashboard}
}

// Unknown returns the target for hosts with no route.
func Unknown() Target {
	return Target{}
}

// Kind returns the target's variant.
func (t Target) Kind() Kind {
	return t.kind
}

// Addr returns the backend socket address, or "" for other kinds.
func (t Target) Addr() string {
	return t.addr
}

// IsBackend reports whether t routes to a backend.
func (t Target) IsBackend() bool {
	return t.kind == KindBackend
}

func (t Target) String() string {
	if t.kind == KindBackend {
		return "backend(" + t.addr + ")"
	}
	return t.kind.String()
}
