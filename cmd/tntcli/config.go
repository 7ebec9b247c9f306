// Copyright 2025 The tntgo Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// cliConfig is the CLI's connection configuration, loadable from a
// YAML file (tntcli.yaml in the working directory or $HOME), flags,
// or TNTCLI_-prefixed environment variables. Per viper's own merge
// rules a flag wins over an environment variable, which wins over the
// file, which wins over the defaults.
type cliConfig struct {
	Addrs       []string      `mapstructure:"addrs"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

func loadConfig(v *viper.Viper) (cliConfig, error) {
	v.SetConfigName("tntcli")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	v.SetEnvPrefix("TNTCLI")
	v.AutomaticEnv()

	v.SetDefault("timeout", 5*time.Second)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cliConfig{}, fmt.Errorf("tntcli: reading config: %w", err)
		}
	}

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cliConfig{}, fmt.Errorf("tntcli: parsing config: %w", err)
	}
	if len(cfg.Addrs) == 0 {
		if addr := v.GetString("addr"); addr != "" {
			cfg.Addrs = []string{addr}
		}
	}
	return cfg, nil
}
