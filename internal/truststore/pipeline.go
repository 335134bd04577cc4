package truststore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sensiblebit/catrust"
	"golang.org/x/sync/errgroup"
)

// Source is one input to a compiler run.
type Source struct {
	// Name tags provenance in diagnostics, usually the file path.
	Name string
	// Format selects the parser.
	Format string
	// Data is the raw source content.
	Data []byte
	// DefaultTrust, when non-empty, is applied to records whose source
	// declared no trust at all (PKCS#7 bundles, bare PEM files).
	DefaultTrust catrust.TrustMap
}

// Output is one requested artifact.
type Output struct {
	// Format selects the emitter.
	Format string
	// Path is the destination the caller will write the artifact to. The
	// pipeline itself never touches the filesystem.
	Path string
}

// Options configures a compiler run. All configuration is explicit; there is
// no ambient state.
type Options struct {
	Sources []Source
	Outputs []Output
	// Policy must be set; there is no implicit conflict policy.
	Policy ConflictPolicy
}

// Artifact is one emitted trust-store file, held in memory until the caller
// decides the run succeeded.
type Artifact struct {
	Format string
	Path   string
	Data   []byte
}

// Result is the outcome of a compiler run. Artifacts is nil when Status is
// StatusFailed: a failed run never produces output.
type Result struct {
	Status      Status
	Table       *Table
	Diagnostics []Diagnostic
	Artifacts   []Artifact
}

// Run executes the pipeline: parse every source in order, fold records into
// the canonical table, freeze it, then fan out all emitters against the
// frozen table. Record-level problems become diagnostics and the run
// continues; a fatal diagnostic yields StatusFailed with no artifacts. The
// returned error covers only caller mistakes (unknown formats, missing
// policy) and context cancellation, never input-data problems.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if _, err := ParseConflictPolicy(string(opts.Policy)); err != nil {
		return nil, err
	}
	srcParsers := make([]Parser, len(opts.Sources))
	for i, src := range opts.Sources {
		p, err := NewParser(src.Format)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		srcParsers[i] = p
	}
	outEmitters := make([]Emitter, len(opts.Outputs))
	for i, out := range opts.Outputs {
		e, err := NewEmitter(out.Format)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", out.Path, err)
		}
		outEmitters[i] = e
	}

	table := NewTable(opts.Policy)
	for i, src := range opts.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slog.Debug("parsing source", "name", src.Name, "format", src.Format)
		var h RecordHandler = table
		if len(src.DefaultTrust) > 0 {
			h = &defaultTrustHandler{inner: table, trust: src.DefaultTrust}
		}
		if err := srcParsers[i].Parse(src.Data, src.Name, h); err != nil {
			slog.Error("source aborted", "name", src.Name, "error", err)
			// A handler abort has already recorded its fatal diagnostic. A
			// read failure has not, and the unread remainder of this source
			// and every later one may carry distrust declarations, so the
			// run must still fail.
			if statusOf(table.Diagnostics()) != StatusFailed {
				table.HandleDiagnostic(Diagnostic{
					Code:     CodeSourceError,
					Severity: SeverityFatal,
					Prov:     Provenance{Source: src.Name},
					Message:  err.Error(),
				})
			}
			break
		}
	}
	table.Freeze()

	result := &Result{
		Table:       table,
		Diagnostics: table.Diagnostics(),
	}
	result.Status = statusOf(result.Diagnostics)
	if result.Status == StatusFailed {
		logRunSummary(result, len(opts.Sources))
		return result, nil
	}

	// Emitters only read the frozen table, so they run concurrently. An
	// unsupported entry fails its own emitter without blocking the others;
	// any other emitter error is an internal fault and cancels the group.
	var (
		mu        sync.Mutex
		emitDiags []Diagnostic
	)
	artifacts := make([]Artifact, len(opts.Outputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, out := range opts.Outputs {
		emitter := outEmitters[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := emitter.Emit(table)
			if err != nil {
				var unsupported *UnsupportedEntryError
				if errors.As(err, &unsupported) {
					mu.Lock()
					emitDiags = append(emitDiags, Diagnostic{
						Code:        CodeUnsupportedEntry,
						Severity:    SeverityFatal,
						Prov:        Provenance{Source: out.Path},
						Fingerprint: unsupported.Fingerprint,
						Message:     unsupported.Error(),
					})
					mu.Unlock()
					return nil
				}
				return fmt.Errorf("emitting %s: %w", out.Format, err)
			}
			artifacts[i] = Artifact{Format: out.Format, Path: out.Path, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Diagnostics = append(result.Diagnostics, emitDiags...)
	result.Status = statusOf(result.Diagnostics)
	if result.Status == StatusFailed {
		logRunSummary(result, len(opts.Sources))
		return result, nil
	}
	result.Artifacts = artifacts
	logRunSummary(result, len(opts.Sources))
	return result, nil
}

// defaultTrustHandler fills in a source's default trust on records that
// declared nothing, then forwards to the table.
type defaultTrustHandler struct {
	inner RecordHandler
	trust catrust.TrustMap
}

func (h *defaultTrustHandler) HandleRecord(rec *Record) error {
	if len(rec.Trust.Purposes()) == 0 {
		rec.Trust = h.trust.Clone()
	}
	return h.inner.HandleRecord(rec)
}

func (h *defaultTrustHandler) HandleDiagnostic(d Diagnostic) {
	h.inner.HandleDiagnostic(d)
}

func logRunSummary(result *Result, sources int) {
	slog.Info("compile finished",
		"status", result.Status.String(),
		"sources", sources,
		"entries", result.Table.Len(),
		"artifacts", len(result.Artifacts),
		"diagnostics", len(result.Diagnostics))
}
