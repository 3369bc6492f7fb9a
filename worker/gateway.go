package worker

// Gateway is the outbound messaging provider consumed by the dispatch loop
// and the auto-reply bot
type Gateway interface {
	// SendText sends a single text message and returns the provider
	// message id
	SendText(to, body string) (string, error)

	// IsConfigured reports whether credentials are present; without them
	// no send is ever attempted
	IsConfigured() bool
}
