package domain

import "errors"

// RetriableError is implemented by errors that tell the feed reconnect loop whether to retry.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable reports whether any error in err's chain asks for a retry.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError is a failure talking to an exchange websocket or the redis publisher.
type NetworkError struct {
	Source    string // Feed or sink name ("Bitget", "redis")
	Op        string // "dial", "subscribe", "ping"
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	if e.Source == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Source + " " + e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError reports a failure the worker reconnects after.
func NewNetworkError(source, op string, err error) *NetworkError {
	return &NetworkError{Source: source, Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError reports a failure that stops the worker, such as a missing endpoint.
func NewFatalNetworkError(source, op string, err error) *NetworkError {
	return &NetworkError{Source: source, Op: op, Err: err, Retriable: false}
}

// ConfigError points at the offending config.yaml field. Never retriable.
type ConfigError struct {
	Field string // e.g. "exchanges[0].pairs"
	Err   error
}

func (e *ConfigError) Error() string {
	return "config " + e.Field + ": " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed wraps dial and ping failures. Usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrInvalidSymbol marks a pair that is malformed or collides with another after mapping.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrUnknownPair marks a feed pair that resolves to no configured instrument.
	// The update is dropped.
	ErrUnknownPair = errors.New("unknown pair")

	// ErrUnknownExchange marks a name with no registered feed or normalizer.
	ErrUnknownExchange = errors.New("unknown exchange")

	// ErrInvalidNumber marks a price or volume string that is not a decimal.
	ErrInvalidNumber = errors.New("invalid number")

	// ErrConfigNotFound is returned when the config file is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// DropReason labels why an update was discarded, for logs.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownPair):
		return "unknown_pair"
	case errors.Is(err, ErrInvalidNumber):
		return "invalid_number"
	case errors.Is(err, ErrUnknownExchange):
		return "unknown_exchange"
	default:
		return "other"
	}
}
