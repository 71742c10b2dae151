package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Relayer struct {
		RestURL string `yaml:"rest_url"`
		WsURL   string `yaml:"ws_url"`
	} `yaml:"relayer"`

	Ticker struct {
		WsURL         string `yaml:"ws_url"`
		ForexCurrency string `yaml:"forex_currency"`
	} `yaml:"ticker"`

	Chain struct {
		RPCHTTP       string `yaml:"rpc_http"`
		Multicall     string `yaml:"multicall"`
		WalletAddress string `yaml:"wallet_address"`
	} `yaml:"chain"`

	Assets struct {
		RegistryPath string `yaml:"registry_path"`
	} `yaml:"assets"`

	Trading struct {
		SlippagePercentage  string `yaml:"slippage_percentage"`
		ExpiryBufferSeconds int    `yaml:"expiry_buffer_seconds"`
	} `yaml:"trading"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Trading.SlippagePercentage == "" {
		c.Trading.SlippagePercentage = "0.2"
	}
	if c.Trading.ExpiryBufferSeconds == 0 {
		c.Trading.ExpiryBufferSeconds = 30
	}
	if c.Ticker.ForexCurrency == "" {
		c.Ticker.ForexCurrency = "USD"
	}
	if c.Assets.RegistryPath == "" {
		c.Assets.RegistryPath = "./assets.yaml"
	}
	return &c, nil
}

func (c *Config) ExpiryBuffer() time.Duration {
	return time.Duration(c.Trading.ExpiryBufferSeconds) * time.Second
}
