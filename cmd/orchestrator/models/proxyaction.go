package models

import "net/http"

// ProxyDestination identifies the downstream a request is forwarded to
type ProxyDestination int

const (
	DestinationObjectStore ProxyDestination = iota
	DestinationImageServer
	DestinationThumbs
)

func (d ProxyDestination) String() string {
	switch d {
	case DestinationImageServer:
		return "image-server"
	case DestinationThumbs:
		return "thumbs"
	default:
		return "object-store"
	}
}

// ProxyAction is the closed result type of a routing decision: either a
// terminal status code or a forward to a rewritten downstream target. The
// forwarder type-switches over the two variants.
type ProxyAction interface {
	isProxyAction()
}

// StatusCodeAction terminates the request with a status code, no forwarding
type StatusCodeAction struct {
	StatusCode int
	Headers    http.Header
}

func (StatusCodeAction) isProxyAction() {}

// NewStatusCodeAction creates a terminal status action
func NewStatusCodeAction(code int) *StatusCodeAction {
	return &StatusCodeAction{StatusCode: code, Headers: http.Header{}}
}

// WithHeader adds a response header, returning the action for chaining
func (a *StatusCodeAction) WithHeader(key, value string) *StatusCodeAction {
	a.Headers.Set(key, value)
	return a
}

// ForwardAction proxies the request to a downstream target. Path is the
// rewritten path (or absolute URL for object-store targets); all other
// request headers pass through unchanged except Host, which is replaced
// with the destination authority.
type ForwardAction struct {
	Target       ProxyDestination
	Path         string
	RequiresAuth bool
}

func (ForwardAction) isProxyAction() {}
