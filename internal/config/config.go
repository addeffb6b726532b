// Package config loads a pipeline definition document: which modules run
// in what order, under which instance, with what CPU/priority and option
// assignments, so a pipeline can be launched by config file instead of a
// long command line.
//
// Grounded on the teacher's config/config.go TOML-via-go-toml/v2 shape,
// generalized from a table of exchange configs to a table of pipeline
// stage configs. A .env file is loaded alongside it with godotenv, the
// teacher's dependency for this purpose, wired here so it is actually
// exercised: environment values referenced as ${VAR} in option strings
// are substituted after the .env file (if any) has been loaded.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level pipeline-definition document.
type Config struct {
	Instance int                    `toml:"instance"`
	ShmDir   string                 `toml:"shm_dir"`
	Stages   map[string]StageConfig `toml:"stages"`
	Order    []string               `toml:"order"`
}

// StageConfig is one module's placement and options within the pipeline.
type StageConfig struct {
	Module   string            `toml:"module"`
	CPU      int               `toml:"cpu"`
	Mask     uint64            `toml:"mask"`
	Priority int               `toml:"priority"`
	Options  map[string]string `toml:"options"`
}

// LoadEnv loads a .env file at path into the process environment,
// best-effort: a missing file is not an error, since most deployments
// rely on the ambient environment instead.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load reads and parses a pipeline definition document at path, expanding
// ${VAR} references in stage option values against the process
// environment.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	for name, stage := range c.Stages {
		for k, v := range stage.Options {
			stage.Options[k] = os.Expand(v, envLookup)
		}
		c.Stages[name] = stage
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func envLookup(name string) string {
	return os.Getenv(name)
}

func (c *Config) validate() error {
	if len(c.Order) == 0 {
		return fmt.Errorf("config: order must list at least one stage")
	}
	seen := make(map[string]bool, len(c.Order))
	for _, name := range c.Order {
		if seen[name] {
			return fmt.Errorf("config: stage %q listed more than once in order", name)
		}
		seen[name] = true
		stage, ok := c.Stages[name]
		if !ok {
			return fmt.Errorf("config: order references undefined stage %q", name)
		}
		if stage.Module == "" {
			return fmt.Errorf("config: stage %q missing module name", name)
		}
	}
	return nil
}

// Args renders stage's command-line-equivalent argv tokens, as if it had
// been typed on the CLI, so config-driven and CLI-driven launches share
// the same parser. Priority has no CLI flag (the host's flag table only
// covers cpu/mask/option/instance), so the caller applies it to the
// resulting ThreadArgs directly after Build; see cmd/hashpipe.
func (s StageConfig) Args() []string {
	var out []string
	if s.Mask != 0 {
		out = append(out, "--mask", fmt.Sprintf("%d", s.Mask))
	} else if s.CPU > 0 {
		out = append(out, "--cpu", fmt.Sprintf("%d", s.CPU))
	}
	for k, v := range s.Options {
		out = append(out, "--option", k+"="+v)
	}
	out = append(out, s.Module)
	return out
}

// JoinArgs flattens an ordered sequence of stage argv tokens into one
// argv slice. Build resets its per-module option scope at each module
// token, so stages can simply be concatenated with no separator.
func JoinArgs(stages []StageConfig) []string {
	var out []string
	for _, s := range stages {
		out = append(out, s.Args()...)
	}
	return out
}
