package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/types"
)

type Config struct {
	StoreKind     string `envconfig:"DIAC_STORE_KIND" default:"file"`
	StorePath     string `envconfig:"DIAC_STORE_PATH" default:"."`
	StorePrefix   string `envconfig:"DIAC_STORE_PREFIX" default:"diac:"`
	DataRoot      string `envconfig:"DIAC_DATA_ROOT" default:"preprocessed"`
	DecodeWorkers int    `envconfig:"DIAC_DECODE_WORKERS" default:"4"`
	TrainWorkers  int    `envconfig:"DIAC_TRAIN_WORKERS" default:"4"`
	RestAPIPort   string `envconfig:"DIAC_REST_API_PORT" default:"10000"`
}

type options struct {
	configPath string
	order      int
}

func main() {
	logger.SetupLogging()
	mainLogger := logger.NewLogger("Main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		mainLogger.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "diac",
		Short:         "Character n-gram Arabic diacritizer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML run profile")
	root.PersistentFlags().IntVarP(&opts.order, "order", "n", types.DefaultOrder, "context order N (ignored with --config)")

	root.AddCommand(
		newTrainCmd(opts),
		newDecodeCmd(opts),
		newEvaluateCmd(opts),
		newExportCmd(opts),
		newPrepareCmd(),
		newSplitCmd(),
		newStripCmd(opts),
		newServeCmd(opts),
		newWorkerCmd(opts),
	)
	return root
}

func readConfig() (Config, error) {
	var config Config
	err := envconfig.Process("", &config)
	return config, err
}

// resolveProfile returns the run profile named by --config, or one built
// from --order and the environment.
func resolveProfile(opts *options) (types.RunConfig, Config, error) {
	config, err := readConfig()
	if err != nil {
		return types.RunConfig{}, config, err
	}
	if opts.configPath != "" {
		profile, err := types.LoadRunConfig(opts.configPath)
		return profile, config, err
	}
	profile := types.DefaultRunConfigAt(opts.order, config.DataRoot)
	profile.Store = types.StoreConfig{
		Kind:   config.StoreKind,
		Path:   config.StorePath,
		Prefix: config.StorePrefix,
	}
	profile.DecodeWorkers = config.DecodeWorkers
	profile.TrainWorkers = config.TrainWorkers
	return profile, config, profile.Validate()
}

// argOr returns args[i] when present, otherwise fallback.
func argOr(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}
	return fallback
}
