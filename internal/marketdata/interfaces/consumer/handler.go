// Package consumer 行情与股息事件的 Kafka 摄入
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/marketindex/internal/marketdata/application"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
)

type MarketDataEventHandler struct {
	service *application.MarketDataService
}

func NewMarketDataEventHandler(service *application.MarketDataService) *MarketDataEventHandler {
	return &MarketDataEventHandler{service: service}
}

// HandleMarketPrice 消费 market.price：最新价，收盘标记时同时落日收盘价
func (h *MarketDataEventHandler) HandleMarketPrice(ctx context.Context, msg kafkago.Message) error {
	var event struct {
		Ticker        string `json:"ticker"`
		Price         string `json:"price"`
		TrailingYield string `json:"trailing_yield"`
		IsClose       bool   `json:"is_close"`
		Timestamp     int64  `json:"timestamp"`
		Source        string `json:"source"`
	}
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}

	price, err := decimal.NewFromString(event.Price)
	if err != nil {
		slog.Warn("dropping market price event with bad price", "ticker", event.Ticker, "price", event.Price)
		return nil
	}
	var trailingYield *decimal.Decimal
	if event.TrailingYield != "" {
		if y, err := decimal.NewFromString(event.TrailingYield); err == nil {
			trailingYield = &y
		}
	}

	ts := time.UnixMilli(event.Timestamp).UTC()
	if err := h.service.SaveQuote(ctx, event.Ticker, price, trailingYield, ts, event.Source); err != nil {
		return err
	}
	if event.IsClose {
		return h.service.SaveDailyClose(ctx, event.Ticker, ts, price)
	}
	return nil
}

// HandleDividend 消费 corporateaction.dividend：现金股息按除权日入库。
// 迟到的股息记录同样走这里，之后由重算接口拉平历史序列。
func (h *MarketDataEventHandler) HandleDividend(ctx context.Context, msg kafkago.Message) error {
	var event struct {
		Ticker string `json:"ticker"`
		ExDate string `json:"ex_date"`
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}

	exDate, err := time.Parse("2006-01-02", event.ExDate)
	if err != nil {
		slog.Warn("dropping dividend event with bad ex_date", "ticker", event.Ticker, "ex_date", event.ExDate)
		return nil
	}
	amount, err := decimal.NewFromString(event.Amount)
	if err != nil || !amount.IsPositive() {
		slog.Warn("dropping dividend event with bad amount", "ticker", event.Ticker, "amount", event.Amount)
		return nil
	}

	slog.Info("ingesting dividend event", "ticker", event.Ticker, "ex_date", event.ExDate, "amount", amount.String())
	return h.service.SaveDividend(ctx, event.Ticker, exDate, amount)
}

func (h *MarketDataEventHandler) SubscribePrices(ctx context.Context, consumer *kafka.Consumer) {
	consumer.Start(ctx, 1, h.HandleMarketPrice)
}

func (h *MarketDataEventHandler) SubscribeDividends(ctx context.Context, consumer *kafka.Consumer) {
	consumer.Start(ctx, 1, h.HandleDividend)
}
