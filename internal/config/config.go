// Package config loads the core's own runtime settings: output device
// name, default volume, decoder preference and ring-buffer sizing. It
// mirrors the teacher's internal/configs/loader.go: koanf defaults
// seeded from a struct, overlaid by an optional TOML file.
package config

import (
	"os"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// configFileName is the file xdg.ConfigFile resolves against XDG_CONFIG_HOME
// (or its platform equivalent), the same way the teacher's utils/app
// resolves its own config path via xdg.ConfigFile.
const configFileName = "inlimbo-core/config.toml"

// DefaultPath resolves the config file path callers should pass to Load
// when they have no path of their own — XDG_CONFIG_HOME (or the
// platform's equivalent default) joined with the core's config file
// name, creating any missing parent directories.
func DefaultPath() (string, error) {
	path, err := xdg.ConfigFile(configFileName)
	if err != nil {
		return "", errors.Wrap(err, "resolve default config path")
	}
	return path, nil
}

// Config holds the settings the Audio Service needs before it can
// initialize a backend and start decoding.
type Config struct {
	Device        string  `koanf:"device"`
	DefaultVolume float32 `koanf:"default_volume"`
	PreferMiniMP3 bool    `koanf:"prefer_minimp3"`
	RingSeconds   float64 `koanf:"ring_seconds"`
}

// Default returns the settings used when no config file is present.
func Default() Config {
	return Config{
		Device:        "",
		DefaultVolume: 1.0,
		PreferMiniMP3: false,
		RingSeconds:   5.0,
	}
}

// Load reads path as a TOML file, overlaying it onto Default(). A
// missing file is not an error: Default() is returned unchanged.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, errors.Wrap(err, "load default config")
	}

	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "load config file %q", path)
		}
	}

	cfg := Config{}
	unmarshalConf := koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result: &cfg,
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	return cfg, nil
}
