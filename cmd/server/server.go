package main

import (
	"context"
	"os/signal"
	"syscall"

	"fenrir/internal/coin"
	"fenrir/internal/fees"
	"fenrir/internal/net"
	"fenrir/internal/orderbook"

	"github.com/rs/zerolog/log"
)

const protocolAddress = "fenrir"

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	iStore := coin.NewMemoryStore(6)
	qStore := coin.NewMemoryStore(6)

	cfg := orderbook.Config{
		IDecimals:      6,
		QDecimals:      2,
		MaxCacheSize:   32,
		FeeType:        fees.Standard,
		InstrumentType: "AAPL",
		QuoteType:      "USD",
	}

	srv := net.New("0.0.0.0", 9001, protocolAddress, iStore, qStore)
	market, err := orderbook.InitMarket(cfg, iStore, qStore, srv, fees.ZeroSchedule{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init market")
	}
	srv.SetMarket(market)

	go srv.Run(ctx)
	<-ctx.Done()
}
