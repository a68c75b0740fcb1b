package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/goran-ethernal/ChainIndexor/internal/config"
	"github.com/goran-ethernal/ChainIndexor/internal/rpcclient"
)

// httpPayments is the acquire-or-fail boundary spec.md §4.6/§9 specifies for
// the paid transport: POST the requested method to cfg.Endpoint, expecting a
// JSON voucher back. The payment-channel negotiation behind that endpoint is
// explicitly out of scope (spec §9) — this adapter only fulfils the interface
// rpcclient.PaidClient calls against.
type httpPayments struct {
	endpoint   string
	httpClient *http.Client
}

var _ rpcclient.Payments = (*httpPayments)(nil)

func newHTTPPayments(cfg config.PaymentsConfig) *httpPayments {
	return &httpPayments{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type voucherRequest struct {
	Method string `json:"method"`
}

type voucherResponse struct {
	HeaderName  string `json:"headerName"`
	HeaderValue string `json:"headerValue"`
}

func (p *httpPayments) AcquireVoucher(ctx context.Context, method string) (rpcclient.Voucher, error) {
	body, err := json.Marshal(voucherRequest{Method: method})
	if err != nil {
		return rpcclient.Voucher{}, fmt.Errorf("engine: encoding voucher request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return rpcclient.Voucher{}, fmt.Errorf("engine: building voucher request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return rpcclient.Voucher{}, fmt.Errorf("engine: acquiring voucher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rpcclient.Voucher{}, fmt.Errorf("engine: voucher endpoint returned %d", resp.StatusCode)
	}

	var v voucherResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return rpcclient.Voucher{}, fmt.Errorf("engine: decoding voucher response: %w", err)
	}

	return rpcclient.Voucher{HeaderName: v.HeaderName, HeaderValue: v.HeaderValue}, nil
}

func paidMethodSet(methods []string) map[string]bool {
	if len(methods) == 0 {
		return nil
	}
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[m] = true
	}
	return set
}
