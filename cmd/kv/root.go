package kv

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftkv/driftkv/cmd/util"
	"github.com/driftkv/driftkv/internal/kvclient"
	"github.com/driftkv/driftkv/internal/wire"
)

var (
	client *kvclient.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform GET/PUT operations against a running driftkv worker",
		PersistentPreRunE: setupClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	key := "target"
	KeyValueCommands.PersistentFlags().String(key, "tcp://127.0.0.1:7203", util.WrapString("The request endpoint of the worker thread to talk to (tid 0's request port by default)"))
	key = "codec"
	KeyValueCommands.PersistentFlags().String(key, "gob", util.WrapString("Wire codec to use (json, gob, binary) — must match the target worker's configured codec"))
	key = "timeout"
	KeyValueCommands.PersistentFlags().Int(key, 5, util.WrapString("Timeout in seconds to wait for a reply"))

	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(addCmd)
}

// setupClient initializes the kvclient.Client used by every subcommand
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	codec, err := wire.ByName(viper.GetString("codec"))
	if err != nil {
		return err
	}
	client = kvclient.New(viper.GetString("target"), codec, time.Duration(viper.GetInt("timeout"))*time.Second)
	return nil
}

func printResult(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
