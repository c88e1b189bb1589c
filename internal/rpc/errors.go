package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/logrange/internal/common"
	pkgrpc "github.com/goran-ethernal/logrange/pkg/rpc"
)

// JSON-RPC error codes providers use when a log query is too broad.
const (
	codeInvalidRequest = -32600
	codeInvalidParams  = -32602
	codeLimitExceeded  = -32005
)

var (
	tooManyResultsRe = regexp.MustCompile(`Query returned more than \d+ results`)
	suggestedRangeRe = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

var timeoutMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

var rejectionMarkers = []string{
	"query returned more than",
	"block range",
	"range too large",
	"range is too large",
	"too many",
	"limit exceeded",
	"exceed",
	"response size",
	"max results",
}

// IsTooManyResultsError checks if the error is an RPC "too many results" error (DataError with message in ErrorData).
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		return tooManyResultsRe.MatchString(errData), errData
	}

	return false, ""
}

// ParseSuggestedBlockRange attempts to extract the suggested block range from the error message.
// Returns the suggested fromBlock and toBlock, and true if successfully parsed.
// Expected format: "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(err string) (fromBlock, toBlock uint64, ok bool) {
	if err == "" {
		return 0, 0, false
	}

	matches := suggestedRangeRe.FindStringSubmatch(err)

	const expectedMatches = 3 // full match + 2 groups
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := common.ParseUint64orHex(&matches[1])
	to, err2 := common.ParseUint64orHex(&matches[2])

	if err1 != nil || err2 != nil || from > to {
		return 0, 0, false
	}

	return from, to, true
}

// ClassifyError maps a failed log query onto the provider error taxonomy.
// Errors already classified as *ProviderError keep their kind.
func ClassifyError(err error) pkgrpc.ErrorKind {
	if err == nil {
		return pkgrpc.KindOther
	}

	var providerErr *pkgrpc.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}

	if isTimeoutError(err) {
		return pkgrpc.KindTimeout
	}

	if isRejectedError(err) {
		return pkgrpc.KindRejected
	}

	return pkgrpc.KindOther
}

// NewProviderError wraps a failed call into a classified *ProviderError.
func NewProviderError(method string, err error) *pkgrpc.ProviderError {
	var providerErr *pkgrpc.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr
	}

	pErr := &pkgrpc.ProviderError{
		Kind:   ClassifyError(err),
		Method: method,
		Err:    err,
	}

	if pErr.Kind == pkgrpc.KindRejected {
		msg := err.Error()
		if _, errData := IsTooManyResultsError(err); errData != "" {
			msg = errData
		}

		if from, to, ok := ParseSuggestedBlockRange(msg); ok {
			pErr.Suggested = &pkgrpc.BlockRange{FromBlock: from, ToBlock: to}
		}
	}

	return pErr
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 408 || httpErr.StatusCode == 504 //nolint:mnd
	}

	return containsAny(strings.ToLower(err.Error()), timeoutMarkers)
}

func isRejectedError(err error) bool {
	if ok, _ := IsTooManyResultsError(err); ok {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeLimitExceeded:
			return true
		case codeInvalidParams, codeInvalidRequest:
			return containsAny(strings.ToLower(rpcErr.Error()), rejectionMarkers)
		}
	}

	return containsAny(strings.ToLower(err.Error()), rejectionMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}

	return false
}
