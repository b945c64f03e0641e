package serve

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdUtil "github.com/driftkv/driftkv/cmd/util"
	"github.com/driftkv/driftkv/internal/config"
	"github.com/driftkv/driftkv/internal/logging"
	"github.com/driftkv/driftkv/internal/node"
)

var (
	serveCfg *config.Config
	ServeCmd = &cobra.Command{
		Use:     "serve",
		Short:   "Start a driftkv worker node",
		Long:    `Start a driftkv worker node for the tier named by the SERVER_TYPE environment variable (memory or ebs). Configuration is read from --config's YAML file, with DRIFTKV_<flag> environment overrides.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	key := "config"
	ServeCmd.PersistentFlags().String(key, "config.yaml", cmdUtil.WrapString("Path to the YAML config file describing this cluster's tiers, replication factors and this node's server identity"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Directory used for persisting the EBS tier's on-disk serializer state"))

	key = "codec"
	ServeCmd.PersistentFlags().String(key, "gob", cmdUtil.WrapString("Wire codec used between threads and peers (json, gob, binary)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags,
// environment variables and config file and resolves it into serveCfg.
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(viper.GetString("config"), os.Getenv("SERVER_TYPE"))
	if err != nil {
		return err
	}
	if dataDir := viper.GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if codec := viper.GetString("codec"); codec != "" {
		cfg.Codec = codec
	}
	if logLevel := viper.GetString("log-level"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	serveCfg = cfg
	return nil
}

// run starts the node and blocks until a worker exits with an error or
// the process is asked to stop.
func run(_ *cobra.Command, _ []string) error {
	logging.SetGlobalLevel(logging.ParseLevel(serveCfg.LogLevel))

	n, err := node.Start(serveCfg)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	return n.Wait()
}

// initConfig reads in the env files and ENV variables if set.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("driftkv")
	viper.AutomaticEnv()
}
