package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sarchlab/envelope/config"
	"github.com/sarchlab/envelope/field"
)

var (
	configPath string
	envFile    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "envsim",
	Short: "envsim solves 7D envelope equations in memory-bounded tiles.",
	Long: `envsim solves the nonlinear envelope equation over a 7D domain ` +
		`(three spatial, three phase and one temporal axis). The domain is ` +
		`split into tiles that fit the device memory budget, every tile is ` +
		`solved locally and the results are blended until the field settles.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error

		logger, err = newLogger(verbose)
		if err != nil {
			return err
		}

		cfg, err = config.Load(configPath, envFile)

		return err
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"file with ENVSIM_* variables, ignored when missing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log at debug level")
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()

	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return zc.Build()
}

// parseDims reads a shape written as seven comma-separated extents.
func parseDims(s string) (field.Shape, error) {
	parts := strings.Split(s, ",")
	dims := make([]int, 0, len(parts))

	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return field.Shape{}, fmt.Errorf("invalid extent %q in %q", p, s)
		}

		dims = append(dims, n)
	}

	return field.NewShape(dims...)
}
