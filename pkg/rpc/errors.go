package rpc

import "fmt"

// ErrorKind classifies a failed log query.
type ErrorKind int

const (
	// KindOther is any provider failure that is neither a timeout nor a known rejection.
	KindOther ErrorKind = iota
	// KindTimeout means the query did not complete in time and may succeed if repeated.
	KindTimeout
	// KindRejected means the provider refused the query, usually because the range is too broad.
	KindRejected
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRejected:
		return "rejected"
	default:
		return "other"
	}
}

// BlockRange is an inclusive block range suggested by a provider.
type BlockRange struct {
	FromBlock uint64
	ToBlock   uint64
}

// ProviderError is returned when the node fails a log query.
type ProviderError struct {
	Kind   ErrorKind
	Method string
	// Suggested is set when the provider proposed a narrower range in its error message.
	Suggested *BlockRange
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Method, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ConnectionError is returned when the chain height cannot be determined.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to get chain height: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
