package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sarchlab/envelope/errs"
)

// EnvPrefix starts every variable that overrides a setting.
const EnvPrefix = "ENVSIM_"

type lookupFunc func(key string) (string, bool)

// environment merges envFile under the process environment.
func environment(envFile string) (lookupFunc, error) {
	fileVars := map[string]string{}

	if envFile != "" {
		vars, err := godotenv.Read(envFile)

		switch {
		case err == nil:
			fileVars = vars
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, errs.Configf("env_file", "reading %s: %v", envFile, err)
		}
	}

	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := fileVars[key]

		return v, ok
	}, nil
}

type envOverride struct {
	name  string
	apply func(c *Config, v string) error
}

var envOverrides = []envOverride{
	{"POLICY", func(c *Config, v string) error {
		c.Device.Policy = v
		return nil
	}},
	{"GPU_MEMORY", func(c *Config, v string) error {
		return parseUint(v, &c.Device.GPUMemory)
	}},
	{"MEMORY_FREE", func(c *Config, v string) error {
		return parseUint(v, &c.Budget.OverrideFree)
	}},
	{"MEMORY_TOTAL", func(c *Config, v string) error {
		return parseUint(v, &c.Budget.OverrideTotal)
	}},
	{"TILE_SIZE", func(c *Config, v string) error {
		return parseInt(v, &c.Tiling.TileSize)
	}},
	{"OVERLAP", func(c *Config, v string) error {
		return parseInt(v, &c.Tiling.Overlap)
	}},
	{"NUM_STREAMS", func(c *Config, v string) error {
		return parseInt(v, &c.Scheduler.NumStreams)
	}},
	{"BATCH_SIZE", func(c *Config, v string) error {
		return parseInt(v, &c.Scheduler.BatchSize)
	}},
	{"MAX_ITERATIONS", func(c *Config, v string) error {
		return parseInt(v, &c.Loop.MaxIterations)
	}},
	{"TOLERANCE", func(c *Config, v string) error {
		return parseFloat(v, &c.Loop.Tolerance)
	}},
	{"NORMALIZATION", func(c *Config, v string) error {
		c.FFT.Normalization = v
		return nil
	}},
	{"SWAP_DIR", func(c *Config, v string) error {
		c.FFT.SwapDir = v
		return nil
	}},
	{"RECORDING", func(c *Config, v string) error {
		return parseBool(v, &c.Recording.Enabled)
	}},
	{"RECORDING_PATH", func(c *Config, v string) error {
		c.Recording.Path = v
		return nil
	}},
	{"MONITOR", func(c *Config, v string) error {
		return parseBool(v, &c.Monitoring.Enabled)
	}},
	{"MONITOR_PORT", func(c *Config, v string) error {
		return parseInt(v, &c.Monitoring.Port)
	}},
}

func (c *Config) applyEnvOverrides(lookup lookupFunc) error {
	for _, o := range envOverrides {
		key := EnvPrefix + o.name

		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}

		if err := o.apply(c, v); err != nil {
			return errs.Configf(key, "invalid value %q: %v", v, err)
		}
	}

	return nil
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}

	*dst = n

	return nil
}

func parseUint(v string, dst *uint64) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return err
	}

	*dst = n

	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}

	*dst = f

	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*dst = b

	return nil
}
