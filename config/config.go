package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joripage/tradegate/pkg/eventbus"
	"github.com/joripage/tradegate/pkg/infra/postgres"
	"github.com/joripage/tradegate/pkg/infra/redisconn"
	"github.com/joripage/tradegate/pkg/ordmgmt"
	fixgateway "github.com/joripage/tradegate/pkg/ordmgmt/fix"
	"github.com/joripage/tradegate/pkg/ordmgmt/riskrule"
)

type AppConfig struct {
	ServiceName  string `yaml:"service_name"`
	LogLevel     string `yaml:"log_level"`
	TradeLogPath string `yaml:"trade_log_path"`

	Engine *ordmgmt.Config              `yaml:"engine"`
	Fix    *fixgateway.FixGatewayConfig `yaml:"fix"`
	Risk   *riskrule.Config             `yaml:"risk"`

	GatewayDB *postgres.Config          `yaml:"gateway_db"`
	Redis     *redisconn.Config         `yaml:"redis"`
	NATS      *eventbus.JetStreamConfig `yaml:"nats"`
	Kafka     *eventbus.KafkaConfig     `yaml:"kafka"`
}

// Load reads config from file with environment variables expanded; an
// empty path falls back to $CONFIG_FILE.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("Load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Engine == nil {
		return fmt.Errorf("config: engine section is required")
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Fix == nil || c.Fix.ConfigFilepath == "" {
		return fmt.Errorf("config: fix.config_filepath is required")
	}
	return nil
}
