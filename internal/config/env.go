package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides lets deployments keep the gateway credentials out of the
// config file. A set variable wins over the file value.
type envOverrides struct {
	Host      string `env:"MIRAI_WEBHOOK_HOST"`
	Port      int    `env:"MIRAI_WEBHOOK_PORT"`
	Addr      string `env:"MIRAI_WEBHOOK_WS_ADDR"`
	VerifyKey string `env:"MIRAI_WEBHOOK_WS_KEY"`
	QQ        int64  `env:"MIRAI_WEBHOOK_WS_QQ"`
}

func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return err
	}
	if strings.TrimSpace(ov.Host) != "" {
		cfg.Host = ov.Host
	}
	if ov.Port != 0 {
		cfg.Port = ov.Port
	}
	if strings.TrimSpace(ov.Addr) != "" {
		cfg.Gateway.Addr = ov.Addr
	}
	if strings.TrimSpace(ov.VerifyKey) != "" {
		cfg.Gateway.VerifyKey = ov.VerifyKey
	}
	if ov.QQ != 0 {
		cfg.Gateway.QQ = ov.QQ
	}
	return nil
}
