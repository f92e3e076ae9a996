package config

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
)

// Load baca config: ENV > YAML > env-default tags.
// A missing file is fine unless the path was set explicitly via CONFIG_PATH.
func Load(path string, explicit bool) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
	} else if explicit {
		return nil, errors.Wrapf(err, "config: file %s", path)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: read env")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config: validate")
	}
	return &cfg, nil
}
