package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mx-orderdesk/internal/types"

	"github.com/shopspring/decimal"
)

// Reason codes surfaced alongside HTTP-equivalent statuses.
const (
	ReasonConflict        = "conflict"
	ReasonExecutionFailed = "execution_failed"
	ReasonUnreachable     = "unreachable"
)

// Error is an engine-reported or transport-level execution failure. A
// timeout is indistinguishable from a rejection as far as the caller is
// concerned, so both arrive here.
type Error struct {
	Status  int
	Reason  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s (%s)", e.Message, e.Reason)
}

type ExecuteRequest struct {
	OrderID        string            `json:"order_id"`
	AccountID      string            `json:"account_id"`
	AccountKind    types.AccountKind `json:"account_kind"`
	Symbol         string            `json:"symbol"`
	Side           types.OrderSide   `json:"side"`
	Price          decimal.Decimal   `json:"price"`
	Qty            decimal.Decimal   `json:"qty"`
	IdempotencyKey string            `json:"-"`
}

type ExecuteResponse struct {
	Flow               types.Flow
	OrderID            string
	ExecPrice          *decimal.Decimal
	MarginUSD          *decimal.Decimal
	ContractValue      *decimal.Decimal
	CommissionEntry    *decimal.Decimal
	UsedMarginExecuted *decimal.Decimal
}

type CloseRequest struct {
	OrderID        string            `json:"order_id"`
	CloseID        string            `json:"close_id"`
	AccountID      string            `json:"account_id"`
	AccountKind    types.AccountKind `json:"account_kind"`
	Symbol         string            `json:"symbol"`
	Side           types.OrderSide   `json:"side"`
	Qty            decimal.Decimal   `json:"qty"`
	ClosePrice     *decimal.Decimal  `json:"close_price,omitempty"`
	IdempotencyKey string            `json:"-"`
}

type CloseResponse struct {
	Flow               types.Flow
	ClosePrice         *decimal.Decimal
	NetProfit          *decimal.Decimal
	Swap               *decimal.Decimal
	TotalCommission    *decimal.Decimal
	UsedMarginExecuted *decimal.Decimal
}

type AttachTriggerRequest struct {
	OrderID        string            `json:"order_id"`
	TriggerID      string            `json:"trigger_id"`
	TriggerKind    types.IDKind      `json:"trigger_kind"`
	AccountID      string            `json:"account_id"`
	AccountKind    types.AccountKind `json:"account_kind"`
	Symbol         string            `json:"symbol"`
	Side           types.OrderSide   `json:"side"`
	TriggerPrice   decimal.Decimal   `json:"trigger_price"`
	IdempotencyKey string            `json:"-"`
}

type AttachTriggerResponse struct {
	Flow types.Flow
}

// Client talks to the external execution engine over synchronous HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResponse, error) {
	body, err := c.post(ctx, "/execute", req, req.IdempotencyKey)
	if err != nil {
		return ExecuteResponse{}, err
	}
	resp := ExecuteResponse{
		Flow:               flowField(body),
		ExecPrice:          numberField(body, "exec_price"),
		MarginUSD:          numberField(body, "margin_usd"),
		ContractValue:      numberField(body, "contract_value"),
		CommissionEntry:    numberField(body, "commission_entry"),
		UsedMarginExecuted: numberField(body, "used_margin_executed"),
	}
	if id, ok := body["order_id"].(string); ok {
		resp.OrderID = id
	}
	return resp, nil
}

func (c *Client) Close(ctx context.Context, req CloseRequest) (CloseResponse, error) {
	body, err := c.post(ctx, "/close", req, req.IdempotencyKey)
	if err != nil {
		return CloseResponse{}, err
	}
	return CloseResponse{
		Flow:               flowField(body),
		ClosePrice:         numberField(body, "close_price"),
		NetProfit:          numberField(body, "net_profit"),
		Swap:               numberField(body, "swap"),
		TotalCommission:    numberField(body, "total_commission"),
		UsedMarginExecuted: numberField(body, "used_margin_executed"),
	}, nil
}

func (c *Client) AttachTrigger(ctx context.Context, req AttachTriggerRequest) (AttachTriggerResponse, error) {
	body, err := c.post(ctx, "/attach_trigger", req, req.IdempotencyKey)
	if err != nil {
		return AttachTriggerResponse{}, err
	}
	return AttachTriggerResponse{Flow: flowField(body)}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, idempotencyKey string) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// Transport failure and timeout are handled exactly like an
		// engine-reported rejection.
		return nil, &Error{Status: http.StatusBadGateway, Reason: ReasonUnreachable, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	dec := json.NewDecoder(httpResp.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil && httpResp.StatusCode < 300 {
		return nil, &Error{Status: http.StatusBadGateway, Reason: ReasonUnreachable, Message: "malformed engine response"}
	}

	if httpResp.StatusCode >= 300 {
		msg := messageField(body)
		if httpResp.StatusCode == http.StatusConflict {
			return nil, &Error{Status: http.StatusConflict, Reason: ReasonConflict, Message: msg}
		}
		return nil, &Error{Status: httpResp.StatusCode, Reason: ReasonExecutionFailed, Message: msg}
	}
	return body, nil
}

// flowField defaults to provider: an ambiguous flow must never trigger the
// synchronous settlement path.
func flowField(body map[string]any) types.Flow {
	if f, ok := body["flow"].(string); ok && types.Flow(f) == types.FlowLocal {
		return types.FlowLocal
	}
	return types.FlowProvider
}

// numberField accepts a field only when it type-checks as a JSON number.
// Strings, nulls and anything else leave the local field unset.
func numberField(body map[string]any, key string) *decimal.Decimal {
	n, ok := body[key].(json.Number)
	if !ok {
		return nil
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil
	}
	return &v
}

func messageField(body map[string]any) string {
	for _, key := range []string{"error", "message", "reason"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return "execution failed"
}
