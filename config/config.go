// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/cardinalhq/settingstore/settings"
	"github.com/cardinalhq/settingstore/settingscache"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ModeDatabase = "database"
	ModeCache    = "cache"
)

// Config aggregates configuration for the application.
type Config struct {
	Store StoreConfig `mapstructure:"store"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Auth  AuthConfig  `mapstructure:"auth"`
}

// StoreConfig selects the repository backing settings Stores.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`
	// Mode is "database" to read storage directly, or "cache" to memoize
	// the full rowset until the next write.
	Mode           string `mapstructure:"mode"`
	SQLitePath     string `mapstructure:"sqlite_path"`
	CacheKey       string `mapstructure:"cache_key"`
	DefaultPackage string `mapstructure:"default_package"`
}

type HTTPConfig struct {
	Port           int    `mapstructure:"port"`
	IdentityHeader string `mapstructure:"identity_header"`
}

// AuthConfig enables bearer token identities when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver:         DriverPostgres,
			Mode:           ModeCache,
			SQLitePath:     "settings.db",
			CacheKey:       settingscache.DefaultCacheKey,
			DefaultPackage: settings.DefaultPackage,
		},
		HTTP: HTTPConfig{
			Port:           8080,
			IdentityHeader: "X-Identity-Id",
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "SETTINGSTORE" and the dot character
// in keys is replaced by an underscore. For example, "store.driver" becomes
// "SETTINGSTORE_STORE_DRIVER".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("SETTINGSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Store.Mode = strings.ToLower(strings.TrimSpace(cfg.Store.Mode))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can be acted on.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (must be %s or %s)", c.Store.Driver, DriverPostgres, DriverSQLite)
	}
	switch c.Store.Mode {
	case ModeDatabase, ModeCache:
	default:
		return fmt.Errorf("unknown store.mode %q (must be %s or %s)", c.Store.Mode, ModeDatabase, ModeCache)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range", c.HTTP.Port)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
