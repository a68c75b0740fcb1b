package rpcclient

import (
	"errors"
	"fmt"
	"regexp"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ChainIndexor/internal/common"
)

// HttpRequestError wraps a transport-level failure (connection refused, DNS,
// TLS) reaching the RPC endpoint at all.
type HttpRequestError struct {
	Method string
	Err    error
}

func (e *HttpRequestError) Error() string {
	return fmt.Sprintf("http request failed for %s: %v", e.Method, e.Err)
}

func (e *HttpRequestError) Unwrap() error { return e.Err }

// RpcRequestError wraps a JSON-RPC-level error response (including a paid
// transport's failure to acquire a payment voucher).
type RpcRequestError struct {
	Method string
	Err    error
}

func (e *RpcRequestError) Error() string {
	return fmt.Sprintf("rpc request failed for %s: %v", e.Method, e.Err)
}

func (e *RpcRequestError) Unwrap() error { return e.Err }

// TimeoutError wraps a request that exceeded its deadline.
type TimeoutError struct {
	Method string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out for %s: %v", e.Method, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTooManyResultsError checks if the error is a provider's "block range too
// large" rejection (spec §7's "Range-too-large" row).
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		return regexp.MustCompile(`returned more than \d+ results|block range|query timeout`).MatchString(errData), errData
	}

	return false, ""
}

// ParseSuggestedBlockRange extracts a provider-suggested block range from an
// error message, e.g. "...Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(errMsg string) (fromBlock, toBlock uint64, ok bool) {
	if errMsg == "" {
		return 0, 0, false
	}

	re := regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
	matches := re.FindStringSubmatch(errMsg)

	const expectedMatches = 3
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := common.ParseUint64orHex(&matches[1])
	to, err2 := common.ParseUint64orHex(&matches[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return from, to, true
}
