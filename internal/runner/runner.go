// Package runner discovers declaration files under a root, fans each file
// out to a bounded worker pool running the Load→Scan→Plan→Apply pipeline,
// and folds the per-file results into one RunReport through a single-writer
// merge.
package runner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"awaitlint/internal/apply"
	"awaitlint/internal/config"
	"awaitlint/internal/plan"
	"awaitlint/internal/report"
	"awaitlint/internal/rules"
	"awaitlint/internal/syntax"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures one run.
type Options struct {
	// Root is the file or directory to scan. Must exist; a missing root is
	// the one error that aborts before any file is processed.
	Root   string
	Config config.Config

	// Requested selects the rules allowed to rewrite files. Apply mode
	// with an empty set degenerates to a dry run.
	Requested plan.RuleSet
	Mode      report.Mode
	Log       *zap.Logger
}

// Runner executes runs. Each worker owns its SourceFile and its own parser
// exclusively; the aggregator goroutine is the only writer to the report.
type Runner struct {
	opts    Options
	scanner *rules.Scanner
	log     *zap.Logger
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	scanOpts := rules.Options{
		WrapperSymbol: opts.Config.Wrapper.Symbol,
		WrapperModule: opts.Config.Wrapper.Module,
		Lexicon:       opts.Config.Lexicon,
	}
	return &Runner{
		opts:    opts,
		scanner: rules.NewScanner(scanOpts, opts.Log),
		log:     opts.Log,
	}
}

// Run performs one full traversal. Per-file failures never abort the run;
// cancellation is honored between files, with remaining files reported as
// skipped.
func (r *Runner) Run(ctx context.Context) (*report.RunReport, error) {
	info, err := os.Stat(r.opts.Root)
	if err != nil {
		return nil, fmt.Errorf("root path %s: %w", r.opts.Root, err)
	}

	var paths []string
	if info.IsDir() {
		paths, err = r.discover()
		if err != nil {
			return nil, err
		}
	} else {
		paths = []string{r.opts.Root}
	}

	rep := report.NewRunReport(r.opts.Mode, r.opts.Root)
	results := make(chan report.FileResult)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for fr := range results {
			rep.Merge(fr)
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Config.Workers)
	for _, path := range paths {
		if ctx.Err() != nil {
			results <- report.FileResult{
				Path:       path,
				Skipped:    true,
				SkipReason: "run cancelled",
			}
			continue
		}
		path := path
		g.Go(func() error {
			results <- r.processFile(ctx, path)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done

	rep.Finalize()
	r.log.Info("run complete",
		zap.String("run_id", rep.RunID),
		zap.String("mode", string(rep.Mode)),
		zap.Int("files", rep.FilesScanned),
		zap.Int("violations", rep.TotalViolations),
		zap.Int("errors", rep.ErrorCount))
	return rep, nil
}

// discover enumerates matching files exactly once, so no two workers ever
// own the same path.
func (r *Runner) discover() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(r.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != r.opts.Root && r.ignoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") && !strings.HasSuffix(d.Name(), ".pyi") {
			return nil
		}
		ok, matchErr := filepath.Match(r.opts.Config.Pattern, d.Name())
		if matchErr != nil {
			return fmt.Errorf("pattern %q: %w", r.opts.Config.Pattern, matchErr)
		}
		if ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("traverse %s: %w", r.opts.Root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (r *Runner) ignoredDir(name string) bool {
	for _, ig := range r.opts.Config.IgnoreDirs {
		if name == ig {
			return true
		}
	}
	return false
}

// processFile runs the whole pipeline for one file inside one worker.
func (r *Runner) processFile(ctx context.Context, path string) report.FileResult {
	start := time.Now()
	fr := report.FileResult{Path: path}

	content, err := os.ReadFile(path)
	if err != nil {
		fr.Err = &report.IoError{Path: path, Op: "read", Cause: err}
		return fr
	}

	// Parsers are not safe to share across goroutines; one per worker task.
	loader := syntax.NewLoader(r.log)
	sf, err := loader.Load(ctx, path, content)
	if err != nil {
		fr.Err = err
		return fr
	}

	fr.Violations = r.scanner.Scan(sf)
	for _, v := range fr.Violations {
		fr.Previews = append(fr.Previews, apply.PreviewViolation(sf, v))
	}

	fr.FixExempt = r.exemptFromFix(path)

	p, err := plan.Build(sf, fr.Violations, r.opts.Requested)
	if err != nil {
		fr.Err = err
		return fr
	}
	fr.Plan = p

	if r.opts.Mode == report.Apply && !p.IsEmpty() && !fr.FixExempt {
		updated, err := apply.Splice(sf, p)
		if err != nil {
			fr.Err = err
			return fr
		}
		if err := apply.WriteFile(path, updated); err != nil {
			fr.Err = &report.IoError{Path: path, Op: "write", Cause: err}
			return fr
		}
		fr.Fixed = true
	}

	r.log.Debug("processed file",
		zap.String("file", filepath.Base(path)),
		zap.Int("violations", len(fr.Violations)),
		zap.Bool("fixed", fr.Fixed),
		zap.Duration("elapsed", time.Since(start)))
	return fr
}

// exemptFromFix matches the file against the allow/deny globs. A pattern is
// tried against the base name and against every path suffix of the
// root-relative path, so "tests/*" exempts files at any depth. Exempt files
// are still scanned for reporting.
func (r *Runner) exemptFromFix(path string) bool {
	rel, err := filepath.Rel(r.opts.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	segments := strings.Split(rel, "/")
	for _, pattern := range r.opts.Config.FixExempt {
		for i := range segments {
			candidate := strings.Join(segments[i:], "/")
			if ok, _ := filepath.Match(pattern, candidate); ok {
				return true
			}
		}
	}
	return false
}
