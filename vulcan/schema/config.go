package schema

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Repository is the directory holding the package definitions.
	Repository string `yaml:"repository"`

	Stores      Stores   `yaml:"stores"`
	LogDir      string   `yaml:"log_dir"`
	SourceCache string   `yaml:"source_cache"`
	Shebang     string   `yaml:"shebang,omitempty"`
	Parallel    string   `yaml:"parallel,omitempty"`
	Database    Database `yaml:"database"`

	Endpoints []Endpoint `yaml:"endpoints"`
}

type Stores struct {
	Staging string `yaml:"staging"`
	Release string `yaml:"release"`
}

type Database struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type Endpoint struct {
	Name    string `yaml:"name"`
	Addr    string `yaml:"addr"`
	User    string `yaml:"user"`
	Key     string `yaml:"key"`
	MaxJobs int    `yaml:"max_jobs"`
	WorkDir string `yaml:"work_dir,omitempty"`
}

const defaultShebang = "#!/bin/bash"

// LoadConfig parses a vulcan config file. String fields support ${VAR}
// expansion from the OS environment, so credentials can stay out of the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config YAML")
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) expand() error {
	fields := []*string{
		&c.Repository,
		&c.Stores.Staging, &c.Stores.Release,
		&c.LogDir, &c.SourceCache,
		&c.Database.Host, &c.Database.Port, &c.Database.User,
		&c.Database.Password, &c.Database.Name,
	}
	for _, f := range fields {
		expanded, err := ExpandString(*f)
		if err != nil {
			return err
		}
		*f = expanded
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Repository == "" {
		return errors.New("config: repository directory is required")
	}
	if c.Stores.Staging == "" || c.Stores.Release == "" {
		return errors.New("config: stores.staging and stores.release are required")
	}
	if len(c.Endpoints) == 0 {
		return errors.New("config: at least one endpoint is required")
	}
	seen := make(map[string]bool, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		if ep.Name == "" || ep.Addr == "" {
			return errors.Errorf("config: endpoint %d needs name and addr", i)
		}
		if seen[ep.Name] {
			return errors.Errorf("config: duplicate endpoint name %q", ep.Name)
		}
		seen[ep.Name] = true
	}
	return nil
}

// ScriptShebang returns the configured shebang or the default.
func (c *Config) ScriptShebang() string {
	if c.Shebang == "" {
		return defaultShebang
	}
	return c.Shebang
}
