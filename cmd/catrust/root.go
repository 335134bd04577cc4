package main

import (
	"github.com/sensiblebit/catrust/internal"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "catrust",
	Short: "CA trust-store compiler",
	Long:  "Compile certificate-list sources (NSS certdata.txt, PEM trust bundles, PKCS#7) into deterministic trust-store artifacts for different cryptographic libraries.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetupLogger(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(formatsCmd)
}
