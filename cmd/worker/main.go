package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/joripage/tradegate/config"
	"github.com/joripage/tradegate/pkg/eventbus"
	"github.com/joripage/tradegate/pkg/infra/postgres"
	"github.com/joripage/tradegate/pkg/logging"
	"github.com/joripage/tradegate/pkg/ordmgmt/repo"
	"github.com/joripage/tradegate/pkg/worker"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	if _, err := logging.Init(cfg.LogLevel); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	db, err := postgres.ConnectWithBackoff(cfg.GatewayDB)
	if err != nil {
		panic(err)
	}

	bus, err := eventbus.NewJetStreamBus(*cfg.NATS)
	if err != nil {
		panic(err)
	}
	defer bus.Close()

	sub, err := bus.PullSubscribe("tradegate-worker")
	if err != nil {
		panic(err)
	}

	w := worker.NewWorker(repo.NewRepo(db))
	if err := w.Run(ctx, sub); err != nil && err != context.Canceled {
		panic(err)
	}
}
