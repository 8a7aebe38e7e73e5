package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/gcpipe/config"
)

var (
	cfgFile    string
	port       string
	baud       int
	addr       string
	dataDir    string
	motionPort string
	bridgeURL  string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "gcpipe",
	Short: "G-code intake pipeline",
	Long: `gcpipe reads G/M-code from an interactive link and from stored files,
validates every command and forwards it to a motion consumer.

Commands:
  serve  - run the pipeline, console and HTTP API
  check  - parse a G-code file offline`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (.toml, .yaml or .yml).")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log every line handled by the parser.")
}

// loadConfig applies flags that were set on top of the config file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = port
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baud
		cfg.Motion.Baud = baud
	}
	if flags.Changed("addr") {
		cfg.HTTP.Addr = addr
	}
	if flags.Changed("dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("motion-port") {
		cfg.Motion.Port = motionPort
	}
	if flags.Changed("spjs") {
		cfg.Motion.Bridge = bridgeURL
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	return cfg, cfg.Validate()
}

func main() {
	log.SetFlags(log.Lshortfile)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
