// Package runner wires the passes into one pipeline: load, model,
// graph, stratify, dead code, performance, modules, optional dialect
// crosscheck; results land in a report.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"manglint/internal/config"
	"manglint/internal/crosscheck"
	"manglint/internal/deadcode"
	"manglint/internal/graph"
	"manglint/internal/model"
	"manglint/internal/modules"
	"manglint/internal/perf"
	"manglint/internal/report"
	"manglint/internal/stratify"
)

// Runner executes analysis runs under one configuration. Each run owns
// a private program model, so independent runs may execute in parallel.
type Runner struct {
	cfg config.AnalysisConfig
	log *zap.Logger
}

// New builds a runner.
func New(cfg config.AnalysisConfig, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, log: log}
}

// RunResult bundles the report with the intermediate artifacts the CLI
// renders on demand (DOT graphs, strata, the module file graph).
type RunResult struct {
	Report  *report.Report
	Program *model.Program
	Graph   *graph.Graph
	Strat   *stratify.Result
	Modules *modules.Result
}

// Failed applies the fail-on threshold plus the completeness contract.
func (r *RunResult) Failed(min model.Severity) bool {
	if r.Report.Outcome() == report.OutcomeFatalError {
		return true
	}
	if r.Modules != nil && r.Modules.Failed {
		return true
	}
	return r.Report.HasSeverityAtLeast(min)
}

// Run analyzes one file set end to end.
func (r *Runner) Run(ctx context.Context, files []string) (*RunResult, error) {
	rep := report.New(files)
	r.log.Info("analysis run starting",
		zap.String("run_id", rep.RunID),
		zap.Int("files", len(files)))

	prog := model.NewProgram(
		model.WithVirtualPredicates(r.cfg.VirtualPredicates...),
		model.WithBuiltinPredicates(r.cfg.BuiltinPredicates...),
		model.WithLogger(r.log),
	)

	sources := make(map[string]string, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			rep.FatalFiles = append(rep.FatalFiles, model.FileError{File: file, Err: err})
			r.log.Warn("file excluded from run", zap.String("file", file), zap.Error(err))
			continue
		}
		sources[file] = string(data)
		prog.LoadSource(file, sources[file])
	}
	prog.Finalize()
	rep.Add(prog.Issues...)

	g := graph.Build(prog)
	strat := stratify.Analyze(prog, g)
	rep.Add(strat.Violations...)
	rep.Stratified = strat.Stratified()
	rep.MaxStratum = strat.MaxStratum

	rep.Add(deadcode.Analyze(prog)...)

	sizes, err := LoadSizes(r.cfg.SizesFile)
	if err != nil {
		return nil, err
	}
	rep.Add(perf.Analyze(prog, g, perf.Options{Sizes: sizes})...)

	mods := modules.Analyze(prog, modules.Options{Completeness: r.cfg.Completeness})
	rep.Add(mods.Issues...)

	if r.cfg.Dialect {
		rep.Add(crosscheck.CheckProgram(sources, r.log)...)
	}

	rep.Sort()
	r.log.Info("analysis run finished",
		zap.String("run_id", rep.RunID),
		zap.Int("issues", len(rep.Issues)),
		zap.String("outcome", rep.Outcome().String()))

	return &RunResult{
		Report:  rep,
		Program: prog,
		Graph:   g,
		Strat:   strat,
		Modules: mods,
	}, nil
}

// RunGroups analyzes independent file sets in parallel. Results come
// back in group order; the first hard error cancels the rest.
func (r *Runner) RunGroups(ctx context.Context, groups [][]string) ([]*RunResult, error) {
	results := make([]*RunResult, len(groups))
	eg, ctx := errgroup.WithContext(ctx)
	for i, files := range groups {
		i, files := i, files
		eg.Go(func() error {
			res, err := r.Run(ctx, files)
			if err != nil {
				return fmt.Errorf("group %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// LoadSizes reads the optional JSON map of predicate name to estimated
// row count. An empty path means no estimates.
func LoadSizes(path string) (map[string]int, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sizes file: %w", err)
	}
	var sizes map[string]int
	if err := json.Unmarshal(data, &sizes); err != nil {
		return nil, fmt.Errorf("parse sizes file %s: %w", path, err)
	}
	return sizes, nil
}
