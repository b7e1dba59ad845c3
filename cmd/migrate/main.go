package main

import (
	"flag"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joripage/tradegate/config"
	"github.com/joripage/tradegate/pkg/infra"
	"github.com/joripage/tradegate/pkg/logging"
)

func main() {
	var configFile string
	var source string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&source, "source", "file://migrations", "Migration source URL")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}
	if _, err := logging.Init(cfg.LogLevel); err != nil {
		panic(err)
	}

	if err := infra.Migrate(source, cfg.GatewayDB.MigrationConnURL); err != nil {
		panic(err)
	}
}
