package providers

// Identity is the canonical result of a provider's verify step: a stable
// subject id, the originating strategy name, and an opaque provider-specific
// profile. It is transient: it exists only long enough to be embedded into
// the session tokens and is never persisted.
type Identity struct {
	ID       string
	Strategy string
	Profile  map[string]any
}
