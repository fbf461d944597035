package config

import (
	"github.com/spf13/pflag"
)

// SimulateConfig holds settings for the simulate command. Results is an
// optional JSONL file of per-step outcomes.
type SimulateConfig struct {
	Scenario string
	Out      string
	Results  string
	Log      Log
}

func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"out": "./data/logs.jsonl",
	})
	if err != nil {
		return SimulateConfig{}, err
	}
	return SimulateConfig{
		Scenario: v.GetString("scenario"),
		Out:      v.GetString("out"),
		Results:  v.GetString("results"),
		Log:      logConfig(v),
	}, nil
}

// ServeConfig holds settings for the serve command.
type ServeConfig struct {
	Scenario string
	Listen   string
	Log      Log
}

func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"listen": "127.0.0.1:8545",
	})
	if err != nil {
		return ServeConfig{}, err
	}
	return ServeConfig{
		Scenario: v.GetString("scenario"),
		Listen:   v.GetString("listen"),
		Log:      logConfig(v),
	}, nil
}

// ProbeConfig holds settings for the probe command.
type ProbeConfig struct {
	RPCURL     string
	Addresses  []string
	Interfaces []string
	Log        Log
}

func LoadProbe(cfgFile string, flags *pflag.FlagSet) (ProbeConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"interface": []string{"erc165", "erc20", "factory"},
	})
	if err != nil {
		return ProbeConfig{}, err
	}
	addresses, err := getHexSlice(v, "address", addressDigits)
	if err != nil {
		return ProbeConfig{}, err
	}
	interfaces, err := getHexSlice(v, "interface", interfaceDigits)
	if err != nil {
		return ProbeConfig{}, err
	}
	return ProbeConfig{
		RPCURL:     v.GetString("rpc"),
		Addresses:  addresses,
		Interfaces: interfaces,
		Log:        logConfig(v),
	}, nil
}

// MigrateConfig holds settings for the migrate command.
type MigrateConfig struct {
	PGDSN string
	Log   Log
}

func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return MigrateConfig{}, err
	}
	return MigrateConfig{
		PGDSN: v.GetString("pg-dsn"),
		Log:   logConfig(v),
	}, nil
}
