package service

import "github.com/gofiber/fiber/v2"

// AuthStrategy is one way of talking to the store. The store accessor walks an
// ordered list of them and stops at the first one the store accepts.
type AuthStrategy interface {
	Name() string
	// Available is false when the strategy lacks what it needs (e.g. no token configured).
	Available() bool
	Authorize(headers map[string]string)
}

type anonymousStrategy struct{}

// Anonymous sends no credentials; valid when the store allows public access to orders.
func Anonymous() AuthStrategy { return anonymousStrategy{} }

func (anonymousStrategy) Name() string                { return "anonymous" }
func (anonymousStrategy) Available() bool             { return true }
func (anonymousStrategy) Authorize(map[string]string) {}

type bearerStrategy struct {
	token string
}

// Bearer authenticates with the store's service API token.
func Bearer(token string) AuthStrategy { return bearerStrategy{token: token} }

func (b bearerStrategy) Name() string    { return "service-token" }
func (b bearerStrategy) Available() bool { return b.token != "" }
func (b bearerStrategy) Authorize(h map[string]string) {
	h[fiber.HeaderAuthorization] = "Bearer " + b.token
}

// DefaultStrategies is anonymous first, then the service token.
func DefaultStrategies(apiToken string) []AuthStrategy {
	return []AuthStrategy{Anonymous(), Bearer(apiToken)}
}
