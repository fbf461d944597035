// Package config loads command settings from a config file, DEXCORE_*
// environment variables and command flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "DEXCORE"

// Log configures the process logger. A non-empty File sends output to a
// size-rotated file instead of stderr.
type Log struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// load builds a viper instance with defaults, environment, flags and the
// config file. Without an explicit file ./config.* is read when present.
func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("log-max-size", 100)
	v.SetDefault("log-max-backups", 3)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func logConfig(v *viper.Viper) Log {
	return Log{
		Level:      v.GetString("log-level"),
		File:       v.GetString("log-file"),
		MaxSizeMB:  v.GetInt("log-max-size"),
		MaxBackups: v.GetInt("log-max-backups"),
	}
}

// Hex digit widths for values YAML may have decoded as integers.
const (
	addressDigits   = 40
	hashDigits      = 64
	interfaceDigits = 8
)

// getHexSlice accepts a list or a comma-separated string of 0x values or
// names. YAML decodes an unquoted 0x value that fits in 64 bits as an
// integer; such items are turned back into hex left-padded to digits.
func getHexSlice(v *viper.Viper, key string, digits int) ([]string, error) {
	if !v.IsSet(key) {
		return nil, nil
	}
	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed), nil
	case string:
		return cleanStrings(strings.Split(typed, ",")), nil
	case []interface{}:
		items := make([]string, 0, len(typed))
		for i, item := range typed {
			text, err := hexItem(item, digits)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			items = append(items, text)
		}
		return cleanStrings(items), nil
	default:
		return nil, fmt.Errorf("%s: unsupported value %v", key, typed)
	}
}

func hexItem(item interface{}, digits int) (string, error) {
	var n uint64
	switch typed := item.(type) {
	case string:
		return typed, nil
	case int:
		if typed < 0 {
			return "", fmt.Errorf("negative value %d", typed)
		}
		n = uint64(typed)
	case int64:
		if typed < 0 {
			return "", fmt.Errorf("negative value %d", typed)
		}
		n = uint64(typed)
	case uint64:
		n = typed
	default:
		return "", fmt.Errorf("unsupported value %v", item)
	}
	return fmt.Sprintf("0x%0*x", digits, n), nil
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getStringMap accepts a mapping or a comma-separated list of key=value.
func getStringMap(v *viper.Viper, key string) map[string]string {
	out := make(map[string]string)
	if !v.IsSet(key) {
		return out
	}
	switch typed := v.Get(key).(type) {
	case map[string]string:
		for k, val := range typed {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range typed {
			out[k] = fmt.Sprint(val)
		}
	case string:
		for _, pair := range strings.Split(typed, ",") {
			k, val, ok := strings.Cut(pair, "=")
			k, val = strings.TrimSpace(k), strings.TrimSpace(val)
			if ok && k != "" && val != "" {
				out[k] = val
			}
		}
	}
	return out
}
