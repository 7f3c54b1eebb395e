package main

import (
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "cart",
	Short: "decision trees, extra trees, random forests and gradient boosting",

	// SilenceUsage is an option to silence usage when an error occurs.
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	},

	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		memprofile := viper.GetString("memprofile")
		if memprofile == "" {
			return nil
		}
		f, err := os.Create(memprofile)
		if err != nil {
			return err
		}
		defer f.Close()
		runtime.GC()
		return pprof.WriteHeapProfile(f)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "debug flag")
	rootCmd.PersistentFlags().String("config", "cart_config.json", "a config file for the run of the program")
	rootCmd.PersistentFlags().String("memprofile", "", "write memory profile to `file`")
}

func main() {
	viper.SetEnvPrefix("cart")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		log.WithError(err).Errorf("failed to bind persistent flags. please check the flag settings.")
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatalf("cannot execute command")
	}
}
