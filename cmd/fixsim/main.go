package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/fixsim"
	"github.com/joripage/tradegate/pkg/logging"
)

func main() {
	var configFile string
	var fillQty int64
	var rejectEveryNth int
	var partialOnly bool
	flag.StringVar(&configFile, "config-file", "./config/fixsim.cfg", "Specify FIX acceptor config file path")
	flag.Int64Var(&fillQty, "fill-qty", 0, "Fill this quantity immediately after confirming; 0 rests the order")
	flag.IntVar(&rejectEveryNth, "reject-every", 0, "Reject every n-th new order; 0 disables")
	flag.BoolVar(&partialOnly, "partial-only", false, "Report all fills as partial")
	flag.Parse()

	if _, err := logging.Init("info"); err != nil {
		panic(err)
	}

	srv := fixsim.NewServer(configFile, fixsim.Behaviour{
		RejectEveryNth: rejectEveryNth,
		FillQty:        decimal.NewFromInt(fillQty),
		PartialOnly:    partialOnly,
	})
	if err := srv.Start(); err != nil {
		panic(err)
	}
	fmt.Println("FIX venue simulator started. Press Ctrl+C to exit.")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	_ = srv.Stop()
	fmt.Println("Exited cleanly.")
}
