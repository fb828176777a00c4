package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/fearproto/fearproto/internal/domain"
)

// LiveConfig configures the live REST adapter.
type LiveConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Symbol    string
	Timeout   time.Duration
	Retry     RetryPolicy
}

// Live talks to the exchange REST API. Every order carries a client order
// ID (idempotency key); before any retry the adapter checks whether the
// order already exists, so an ambiguous network failure can never
// double-fill. A circuit breaker sheds load when the venue is misbehaving.
type Live struct {
	cfg     LiveConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewLive creates the adapter.
func NewLive(cfg LiveConfig) *Live {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "live-exchange",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &Live{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, breaker: breaker}
}

func (l *Live) Name() string { return "live" }

type liveOrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	QuoteAmount   string `json:"quote_amount,omitempty"`
	BaseQty       string `json:"base_qty,omitempty"`
}

type liveOrderResponse struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	FilledPrice string `json:"filled_price"`
	FilledSize  string `json:"filled_size"`
	Fee         string `json:"fee"`
	Error       string `json:"error,omitempty"`
}

// PlaceOrder submits a market order, retrying transient failures with
// backoff and an order-status pre-check keyed on the client order ID.
func (l *Live) PlaceOrder(ctx context.Context, req OrderRequest) (domain.OrderResult, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	return placeWithRetry(ctx, l.cfg.Retry, l, req.ClientOrderID, func(ctx context.Context) (domain.OrderResult, error) {
		return l.submit(ctx, req)
	})
}

func (l *Live) submit(ctx context.Context, req OrderRequest) (domain.OrderResult, error) {
	body := liveOrderRequest{
		ClientOrderID: req.ClientOrderID,
		Symbol:        l.cfg.Symbol,
		Side:          string(req.Side),
		Type:          "market",
	}
	if req.Side == SideBuy {
		body.QuoteAmount = req.QuoteAmount.String()
	} else {
		body.BaseQty = req.BaseQty.String()
	}

	var resp liveOrderResponse
	if err := l.post(ctx, "/v1/orders", body, &resp); err != nil {
		return domain.OrderResult{}, err
	}
	return l.toResult(resp)
}

// OrderStatus looks up an order by client order ID. found is false when the
// venue has no record of it.
func (l *Live) OrderStatus(ctx context.Context, clientOrderID string) (domain.OrderResult, bool, error) {
	var resp liveOrderResponse
	err := l.get(ctx, "/v1/orders/"+clientOrderID, &resp)
	if err != nil {
		var exErr *domain.ExchangeError
		if errors.As(err, &exErr) && exErr.Op == "not_found" {
			return domain.OrderResult{}, false, nil
		}
		return domain.OrderResult{}, false, err
	}
	res, err := l.toResult(resp)
	return res, err == nil, err
}

func (l *Live) toResult(resp liveOrderResponse) (domain.OrderResult, error) {
	parse := func(s string) decimal.Decimal {
		d, _ := decimal.NewFromString(s)
		return d
	}
	status := domain.OrderStatus(resp.Status)
	switch status {
	case domain.OrderFilled, domain.OrderRejected, domain.OrderPartial, domain.OrderError:
	default:
		return domain.OrderResult{}, &domain.ExchangeError{
			Venue: "live", Op: "parse_order",
			Err: fmt.Errorf("unknown order status %q", resp.Status),
		}
	}
	return domain.OrderResult{
		OrderID:     resp.OrderID,
		Status:      status,
		FilledPrice: parse(resp.FilledPrice),
		FilledSize:  parse(resp.FilledSize),
		Fee:         parse(resp.Fee),
		Timestamp:   time.Now().UTC(),
		ErrorDetail: resp.Error,
	}, nil
}

type liveBalancesResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

func (l *Live) Balances(ctx context.Context) (map[string]domain.Balance, error) {
	var resp liveBalancesResponse
	if err := l.get(ctx, "/v1/balances", &resp); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Balance, len(resp.Balances))
	for _, b := range resp.Balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		out[b.Asset] = domain.Balance{Asset: b.Asset, Free: free, Locked: locked}
	}
	return out, nil
}

func (l *Live) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return l.do(ctx, http.MethodPost, path, bytes.NewReader(payload), out)
}

func (l *Live) get(ctx context.Context, path string, out any) error {
	return l.do(ctx, http.MethodGet, path, nil, out)
}

func (l *Live) do(ctx context.Context, method, path string, body *bytes.Reader, out any) error {
	_, err := l.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			body.Seek(0, io.SeekStart)
			reader = body
		}
		req, err := http.NewRequestWithContext(ctx, method, l.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", l.cfg.APIKey)

		resp, err := l.client.Do(req)
		if err != nil {
			transient := false
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				transient = true
			}
			return nil, &domain.ExchangeError{Venue: "live", Op: path, Transient: transient, Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, &domain.ExchangeError{Venue: "live", Op: "not_found", Err: fmt.Errorf("%s: 404", path)}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, &domain.ExchangeError{Venue: "live", Op: path, Transient: true, Err: fmt.Errorf("status %d", resp.StatusCode)}
		case resp.StatusCode >= 400:
			return nil, &domain.ExchangeError{Venue: "live", Op: path, Err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, &domain.ExchangeError{Venue: "live", Op: path, Err: fmt.Errorf("decode response: %w", err)}
			}
		}
		return nil, nil
	})
	return err
}

func (l *Live) Close() error {
	l.client.CloseIdleConnections()
	return nil
}
