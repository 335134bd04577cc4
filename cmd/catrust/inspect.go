package main

import (
	"fmt"
	"os"

	"github.com/sensiblebit/catrust"
	"github.com/sensiblebit/catrust/internal/truststore"
	"github.com/spf13/cobra"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <bundle>",
	Short: "List the entries of a PEM trust bundle",
	Long:  "Re-parse an emitted (or hand-written) PEM trust bundle and print each certificate with its fingerprint and per-purpose trust.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Print the machine-readable index instead of text")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	table := truststore.NewTable(truststore.PolicyDistrustWins)
	parser, err := truststore.NewParser("pem")
	if err != nil {
		return err
	}
	if err := parser.Parse(data, args[0], table); err != nil {
		return err
	}
	table.Freeze()

	for _, d := range table.Diagnostics() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", d)
	}

	if inspectJSON {
		emitter, err := truststore.NewEmitter("json-index")
		if err != nil {
			return err
		}
		out, err := emitter.Emit(table)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	for _, e := range table.Entries() {
		label := e.Label
		if label == "" {
			if label = catrust.CertificateSubject(e.DER); label == "" {
				label = e.Fingerprint.Hex()
			}
		}
		fmt.Printf("%s\n", label)
		fmt.Printf("  fingerprint: %s\n", e.Fingerprint.ColonHex())
		for _, p := range e.Trust.Purposes() {
			fmt.Printf("  %s: %s\n", p, e.Trust[p])
		}
		if len(e.Trust.Purposes()) == 0 {
			fmt.Printf("  trust: unspecified\n")
		}
	}
	fmt.Printf("%d entries\n", table.Len())
	return nil
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported input and output formats",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("input formats:")
		for _, f := range truststore.ParserFormats() {
			fmt.Printf("  %s\n", f)
		}
		fmt.Println("output formats:")
		for _, f := range truststore.EmitterFormats() {
			fmt.Printf("  %s\n", f)
		}
	},
}
