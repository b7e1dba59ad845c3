package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/joripage/tradegate/config"
	"github.com/joripage/tradegate/pkg/eventbus"
	"github.com/joripage/tradegate/pkg/infra/redisconn"
	"github.com/joripage/tradegate/pkg/logging"
	"github.com/joripage/tradegate/pkg/ordmgmt"
	fixgateway "github.com/joripage/tradegate/pkg/ordmgmt/fix"
	"github.com/joripage/tradegate/pkg/ordmgmt/riskrule"
	"github.com/joripage/tradegate/pkg/ordmgmt/statestore"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	go func() {
		http.ListenAndServe("localhost:6060", nil) // nolint
	}()

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

	fixGateway := fixgateway.NewFixGateway(cfg.Fix)
	engine, err := ordmgmt.NewEngine(cfg.Engine, fixGateway)
	if err != nil {
		panic(err)
	}
	fixGateway.AddEngineInstance(engine)

	if cfg.Redis != nil {
		client, err := redisconn.Connect(cfg.Redis)
		if err != nil {
			panic(err)
		}
		engine.SetStateStore(statestore.NewRedisStore(client, ""))
	} else {
		engine.SetStateStore(statestore.NewInMemoryStore())
	}

	var pubs eventbus.Multi
	var jsBus *eventbus.JetStreamBus
	if cfg.NATS != nil {
		jsBus, err = eventbus.NewJetStreamBus(*cfg.NATS)
		if err != nil {
			panic(err)
		}
		defer jsBus.Close()
		pubs = append(pubs, jsBus)
	}
	if cfg.Kafka != nil {
		kBus := eventbus.NewKafkaBus(*cfg.Kafka)
		defer kBus.Close() // nolint
		pubs = append(pubs, kBus)
	}
	if len(pubs) > 0 {
		engine.SetEventPublisher(pubs)
	}

	risk, err := riskrule.BuildManager(cfg.Risk)
	if err != nil {
		panic(err)
	}
	engine.SetRiskManager(risk)

	if cfg.TradeLogPath != "" {
		tradeLog, err := logging.NewTradeLog(cfg.TradeLogPath)
		if err != nil {
			panic(err)
		}
		engine.SetTradeLog(tradeLog)
	}

	if err := fixGateway.Start(ctx); err != nil {
		panic(err)
	}
	if err := engine.Start(ctx, statestore.State{}); err != nil {
		panic(err)
	}
	fmt.Println("Gateway started. Press Ctrl+C to exit.")

	<-sigs
	fmt.Println("Shutting down...")

	cancel()
	engine.Stop()
	fixGateway.Stop()
	zap.L().Sync() // nolint

	fmt.Println("Exited cleanly.")
}
