package dataprov

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const binanceStreamURL = "wss://stream.binance.com:9443/ws"

// PriceTick is one streamed price update.
type PriceTick struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// PriceStream subscribes to the exchange miniTicker feed and fans updates
// into a channel. It reconnects with backoff until the context is done.
type PriceStream struct {
	url    string
	symbol string
	log    zerolog.Logger
}

// NewPriceStream builds a stream for one symbol. An empty url uses the
// public Binance endpoint.
func NewPriceStream(url, symbol string, log zerolog.Logger) *PriceStream {
	if url == "" {
		url = binanceStreamURL
	}
	if symbol == "" {
		symbol = "BTCUSDT"
	}
	return &PriceStream{
		url:    url,
		symbol: symbol,
		log:    log.With().Str("component", "pricestream").Logger(),
	}
}

type miniTicker struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
	Time   int64  `json:"E"`
}

// Run streams ticks until ctx is cancelled. The returned channel closes
// when the stream shuts down.
func (s *PriceStream) Run(ctx context.Context) <-chan PriceTick {
	out := make(chan PriceTick, 16)
	go func() {
		defer close(out)
		backoff := time.Second
		for {
			if err := s.consume(ctx, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn().Err(err).Dur("backoff", backoff).Msg("stream dropped, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
	return out
}

func (s *PriceStream) consume(ctx context.Context, out chan<- PriceTick) error {
	endpoint := fmt.Sprintf("%s/%s@miniTicker", s.url, strings.ToLower(s.symbol))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()
	s.log.Info().Str("symbol", s.symbol).Msg("price stream connected")

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read tick: %w", err)
		}
		var tick miniTicker
		if err := json.Unmarshal(data, &tick); err != nil {
			continue
		}
		price, err := decimal.NewFromString(tick.Close)
		if err != nil {
			continue
		}
		select {
		case out <- PriceTick{Symbol: tick.Symbol, Price: price, Time: time.UnixMilli(tick.Time).UTC()}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
