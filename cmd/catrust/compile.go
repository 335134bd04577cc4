package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/breml/rootcerts/embedded"
	"github.com/sensiblebit/catrust"
	"github.com/sensiblebit/catrust/internal"
	"github.com/sensiblebit/catrust/internal/truststore"
	"github.com/spf13/cobra"
)

var (
	compileInputs   []string
	compileOutputs  []string
	compileManifest string
	compilePolicy   string
	compileBuiltin  string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile certificate-list sources into trust-store artifacts",
	Long:  "Parse one or more certificate-list sources, merge them into a canonical trust table, and emit every requested trust-store artifact. A run that raises a fatal diagnostic writes nothing.",
	Example: `  catrust compile --input certdata.txt --output pem-bundle=ca-bundle.trust.pem
  catrust compile --input extra.pem:pem --output pem-anchors=anchors.pem --output json-index=index.json
  catrust compile --manifest truststores.yaml --conflict-policy fail
  catrust compile --builtin mozilla --output jks=cacerts.jks`,
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringArrayVarP(&compileInputs, "input", "i", nil, "Input source as path[:format]; format defaults by file name")
	compileCmd.Flags().StringArrayVarP(&compileOutputs, "output", "o", nil, "Requested artifact as format=path")
	compileCmd.Flags().StringVarP(&compileManifest, "manifest", "m", "", "Manifest YAML with inputs, outputs, and policy")
	compileCmd.Flags().StringVar(&compilePolicy, "conflict-policy", string(truststore.PolicyDistrustWins), "Trust conflict policy: distrust-wins or fail")
	compileCmd.Flags().StringVar(&compileBuiltin, "builtin", "", "Add a built-in source: mozilla (embedded Mozilla CA bundle, trusted for server-auth)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	policy, err := truststore.ParseConflictPolicy(compilePolicy)
	if err != nil {
		return err
	}

	var (
		sources []truststore.Source
		outputs []truststore.Output
	)

	if compileManifest != "" {
		manifest, err := internal.LoadManifest(compileManifest)
		if err != nil {
			return fmt.Errorf("loading manifest: %w", err)
		}
		if manifest.ConflictPolicy != "" && !cmd.Flags().Changed("conflict-policy") {
			if policy, err = truststore.ParseConflictPolicy(manifest.ConflictPolicy); err != nil {
				return fmt.Errorf("manifest: %w", err)
			}
		}
		if sources, err = manifest.Sources(); err != nil {
			return err
		}
		outputs = manifest.PipelineOutputs()
	}

	for _, spec := range compileInputs {
		src, err := inputSource(spec)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	if compileBuiltin != "" {
		src, err := builtinSource(compileBuiltin)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	for _, spec := range compileOutputs {
		format, path, ok := strings.Cut(spec, "=")
		if !ok || format == "" || path == "" {
			return fmt.Errorf("output %q: want format=path", spec)
		}
		outputs = append(outputs, truststore.Output{Format: format, Path: path})
	}

	if len(outputs) == 0 {
		return fmt.Errorf("no outputs requested (use --output or a manifest)")
	}

	result, err := truststore.Run(cmd.Context(), truststore.Options{
		Sources: sources,
		Outputs: outputs,
		Policy:  policy,
	})
	if err != nil {
		return err
	}

	reportDiagnostics(result.Diagnostics)
	if result.Status == truststore.StatusFailed {
		return fmt.Errorf("compile failed with %d diagnostic(s); no artifacts written", len(result.Diagnostics))
	}
	return internal.WriteArtifacts(result.Artifacts)
}

// inputSource loads one --input flag value, splitting an optional trailing
// :format specifier.
func inputSource(spec string) (truststore.Source, error) {
	path := spec
	format := ""
	if idx := strings.LastIndex(spec, ":"); idx > 0 {
		if _, err := truststore.NewParser(spec[idx+1:]); err == nil {
			path, format = spec[:idx], spec[idx+1:]
		}
	}
	if format == "" {
		format = detectFormat(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return truststore.Source{}, fmt.Errorf("reading input: %w", err)
	}
	return truststore.Source{Name: path, Format: format, Data: data}, nil
}

// detectFormat guesses an input format from the file name.
func detectFormat(path string) string {
	base := filepath.Base(path)
	switch filepath.Ext(base) {
	case ".pem", ".crt":
		return "pem"
	case ".p7b", ".p7c":
		return "pkcs7"
	}
	if strings.Contains(base, "certdata") {
		return "certdata"
	}
	return "pem"
}

// builtinSource returns a named built-in input source.
func builtinSource(name string) (truststore.Source, error) {
	switch name {
	case "mozilla":
		return truststore.Source{
			Name:   "builtin:mozilla",
			Format: "pem",
			Data:   []byte(embedded.MozillaCACertificatesPEM()),
			DefaultTrust: catrust.TrustMap{
				catrust.PurposeServerAuth: catrust.Trusted,
			},
		}, nil
	default:
		return truststore.Source{}, fmt.Errorf("unknown builtin source %q (have: mozilla)", name)
	}
}

// reportDiagnostics logs every diagnostic with its provenance before the
// command decides the exit status.
func reportDiagnostics(diags []truststore.Diagnostic) {
	for _, d := range diags {
		attrs := []any{"code", string(d.Code), "source", d.Prov.String()}
		if d.Severity == truststore.SeverityFatal {
			slog.Error(d.Message, attrs...)
		} else {
			slog.Warn(d.Message, attrs...)
		}
	}
}
