package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pollchain/pollchain-go/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "pollchain",
		Short: "On-chain polls gateway",
		Long: `A gateway service for an on-chain polling dApp: it owns the wallet
connection, wraps the polls contract behind a REST API, and keeps a
local cache of poll aggregates synchronized with chain state.`,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
}

func GetConfig() *config.Config {
	return cfg
}
