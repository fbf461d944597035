package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dexcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadIndexDefaults(t *testing.T) {
	cfg, err := LoadIndex("", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
	assert.Equal(t, "./data/checkpoint.json", cfg.Checkpoint)
	assert.True(t, cfg.CheckpointEnabled)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
	assert.Empty(t, cfg.Factories)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
rpc: http://file:8545
factory:
  - 0x00000000000000000000000000000000000000f1
batch-size: 50
log-level: warn
`)
	t.Setenv("DEXCORE_BATCH_SIZE", "75")
	t.Setenv("DEXCORE_ADDRESS", "0xaa, 0xbb ,")

	flags := pflag.NewFlagSet("index", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Uint64("batch-size", 2000, "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://flag:8545"}))

	cfg, err := LoadIndex(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "http://flag:8545", cfg.RPCURL)
	assert.Equal(t, uint64(75), cfg.BatchSize)
	assert.Equal(t, []string{"0x00000000000000000000000000000000000000f1"}, cfg.Factories)
	assert.Equal(t, []string{"0xaa", "0xbb"}, cfg.Addresses)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadHexListsFromYAML(t *testing.T) {
	path := writeConfig(t, `
factory:
  - 0xf1
  - 0x1f9840a85d5AF5bf1D1762F925BDADdC4201F984
topic0:
  - 0x01
`)
	cfg, err := LoadIndex(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0x00000000000000000000000000000000000000f1",
		"0x1f9840a85d5AF5bf1D1762F925BDADdC4201F984",
	}, cfg.Factories)
	assert.Equal(t, []string{"0x" + strings.Repeat("0", 63) + "1"}, cfg.Topic0)

	path = writeConfig(t, `
address: [0x0a]
interface: [erc20, 0x01ffc9a7]
`)
	probe, err := LoadProbe(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x000000000000000000000000000000000000000a"}, probe.Addresses)
	assert.Equal(t, []string{"erc20", "0x01ffc9a7"}, probe.Interfaces)
}

func TestLoadRejectsNonHexListItems(t *testing.T) {
	path := writeConfig(t, "factory:\n  - true\n")
	_, err := LoadIndex(path, nil)
	assert.ErrorContains(t, err, "factory[0]")

	path = writeConfig(t, "address:\n  - -5\n")
	_, err = LoadProbe(path, nil)
	assert.ErrorContains(t, err, "negative")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadDecode(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadDecodeTopicMap(t *testing.T) {
	t.Setenv("DEXCORE_TOPIC0_MAP", "0x01=Swap, bad ,0x02=PoolCreated,=x")
	cfg, err := LoadDecode("", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0x01": "Swap", "0x02": "PoolCreated"}, cfg.Topic0Map)
	assert.Equal(t, "./data/typed_events.jsonl", cfg.Out)

	path := writeConfig(t, "topic0-map:\n  \"0x03\": LiquidityAdded\n")
	t.Setenv("DEXCORE_TOPIC0_MAP", "")
	cfg, err = LoadDecode(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "LiquidityAdded", cfg.Topic0Map["0x03"])
}

func TestLoadAggregateWindow(t *testing.T) {
	cfg, err := LoadAggregate("", nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Window)

	flags := pflag.NewFlagSet("aggregate", pflag.ContinueOnError)
	flags.Duration("window", 5*time.Minute, "")
	require.NoError(t, flags.Parse([]string{"--window", "1h"}))
	cfg, err = LoadAggregate("", flags)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Window)
}

func TestLoadProbeInterfaces(t *testing.T) {
	cfg, err := LoadProbe("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"erc165", "erc20", "factory"}, cfg.Interfaces)
}

func TestLoadServeAndSimulate(t *testing.T) {
	serve, err := LoadServe("", nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8545", serve.Listen)

	t.Setenv("DEXCORE_SCENARIO", "deploy.yaml")
	sim, err := LoadSimulate("", nil)
	require.NoError(t, err)
	assert.Equal(t, "deploy.yaml", sim.Scenario)
	assert.Equal(t, "./data/logs.jsonl", sim.Out)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("")
	require.NoError(t, err)
	assert.Zero(t, ts)

	ts, err = ParseTimestamp(" 1700000000 ")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), ts)

	_, err = ParseTimestamp("1969-01-01T00:00:00Z")
	assert.Error(t, err)
	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}
