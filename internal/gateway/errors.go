package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/sashabaranov/go-openai"
)

var (
	// ErrMissingCredential is returned before any call when no API key is set.
	ErrMissingCredential = errors.New("OpenAI API key missing")

	// ErrTransport matches provider errors: auth, rate limit, network.
	ErrTransport = errors.New("provider error")

	// ErrUnexpected matches every other failure during a gateway call.
	ErrUnexpected = errors.New("unexpected error")
)

// Kind separates user-actionable provider failures from the rest.
type Kind int

const (
	KindTransport Kind = iota
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Error is returned by every failing gateway operation.
type Error struct {
	Op    string
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Cause)
	default:
		return fmt.Sprintf("unexpected error trying to %s: %v", e.Op, e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets callers test the kind with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrUnexpected:
		return e.Kind == KindUnexpected
	}
	return false
}

// classify wraps err from the SDK according to the two-tier taxonomy.
func classify(op string, err error) error {
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
		urlErr *url.Error
		netErr net.Error
	)
	switch {
	case errors.As(err, &apiErr), errors.As(err, &reqErr),
		errors.As(err, &urlErr), errors.As(err, &netErr):
		return &Error{Op: op, Kind: KindTransport, Cause: err}
	default:
		return &Error{Op: op, Kind: KindUnexpected, Cause: err}
	}
}
