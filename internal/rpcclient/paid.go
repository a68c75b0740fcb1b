package rpcclient

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const transportPaid = "paid"

// defaultPaidMethods is the spec's default paid-method set.
var defaultPaidMethods = map[string]bool{
	"eth_getLogs":          true,
	"eth_getBlockByNumber": true,
	"eth_getBlockByHash":   true,
}

// Voucher is an opaque payment proof attached to a paid request as an HTTP header.
type Voucher struct {
	HeaderName  string
	HeaderValue string
}

// Payments is the external payment collaborator the paid transport calls
// synchronously before dispatching a paid-method request. The payment-channel
// negotiation lifecycle itself is out of scope (spec §9) — only this
// acquire-or-fail boundary is specified.
type Payments interface {
	AcquireVoucher(ctx context.Context, method string) (Voucher, error)
}

type voucherContextKey struct{}

// voucherRoundTripper attaches a Voucher found on the request's context, if
// any, as an HTTP header before delegating — the same wrap-and-delegate
// middleware shape the teacher's pkg/api server uses for its HTTP middleware chain.
type voucherRoundTripper struct {
	next http.RoundTripper
}

func (rt *voucherRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if v, ok := req.Context().Value(voucherContextKey{}).(Voucher); ok {
		req.Header.Set(v.HeaderName, v.HeaderValue)
	}
	next := rt.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}

// PaidClient wraps a delegate Client, acquiring a payment voucher before any
// method in its paid-method set and otherwise behaving identically to the delegate.
type PaidClient struct {
	delegate    Client
	payments    Payments
	paidMethods map[string]bool
}

var _ Client = (*PaidClient)(nil)

// NewPaidClient wraps delegate with payment-gating for paidMethods (nil uses the default set).
func NewPaidClient(delegate Client, payments Payments, paidMethods map[string]bool) *PaidClient {
	if paidMethods == nil {
		paidMethods = defaultPaidMethods
	}
	return &PaidClient{delegate: delegate, payments: payments, paidMethods: paidMethods}
}

func (c *PaidClient) Close() { c.delegate.Close() }

// withVoucher acquires a voucher for method if it is in the paid set and
// attaches it to ctx for a capable transport's RoundTripper to pick up.
func (c *PaidClient) withVoucher(ctx context.Context, method string) (context.Context, error) {
	if !c.paidMethods[method] {
		return ctx, nil
	}

	start := time.Now()
	voucher, err := c.payments.AcquireVoucher(ctx, method)
	RPCMethodDuration(method, transportPaid, time.Since(start))
	if err != nil {
		RPCMethodError(method, transportPaid)
		return ctx, &RpcRequestError{Method: method, Err: err}
	}

	return context.WithValue(ctx, voucherContextKey{}, voucher), nil
}

func (c *PaidClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	ctx, err := c.withVoucher(ctx, "eth_getLogs")
	if err != nil {
		return nil, err
	}
	return c.delegate.GetLogs(ctx, query)
}

func (c *PaidClient) GetBlockByNumber(ctx context.Context, number *uint64, fullTx bool) (*types.Header, types.Transactions, error) {
	ctx, err := c.withVoucher(ctx, "eth_getBlockByNumber")
	if err != nil {
		return nil, nil, err
	}
	return c.delegate.GetBlockByNumber(ctx, number, fullTx)
}

func (c *PaidClient) GetBlockByHash(ctx context.Context, hash []byte, fullTx bool) (*types.Header, types.Transactions, error) {
	ctx, err := c.withVoucher(ctx, "eth_getBlockByHash")
	if err != nil {
		return nil, nil, err
	}
	return c.delegate.GetBlockByHash(ctx, hash, fullTx)
}

func (c *PaidClient) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.delegate.GetFinalizedBlockHeader(ctx)
}

func (c *PaidClient) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.delegate.GetSafeBlockHeader(ctx)
}

func (c *PaidClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.delegate.GetLatestBlockNumber(ctx)
}

func (c *PaidClient) CallContract(ctx context.Context, to common.Address, calldata []byte, blockNumber *uint64) ([]byte, error) {
	return c.delegate.CallContract(ctx, to, calldata, blockNumber)
}
