package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"manglint/internal/config"
	"manglint/internal/model"
	"manglint/internal/runner"
	"manglint/internal/syntax"
	"manglint/internal/trace"
	"manglint/internal/watch"
)

var (
	// Global flags
	verbose    bool
	configPath string
	jsonOut    bool

	// check flags
	failOn       string
	strict       bool
	sizesPath    string
	virtualPreds []string
	dialect      bool

	// explain flags
	allPaths     bool
	maxDepth     int
	maxSteps     int
	stratumAware bool

	// graph flags
	fileGraph bool

	// watch flags
	debounceMs int

	logger   *zap.Logger
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "manglint",
	Short: "Static analysis for Mangle/Datalog programs",
	Long: `manglint parses Mangle-like Datalog source and runs five analysis
passes over one shared program model: stratification, dead code,
performance risks, cross-file module structure, and an optional
dialect crosscheck against the upstream mangle parser. It can also
explain why a goal holds by deriving a bounded proof tree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [files...]",
	Short: "Run every analysis pass over the given files",
	Long: `Loads the files into one program model and runs stratification,
dead-code, performance and module analysis. Exit code 0 means clean,
1 means findings at or above the fail-on threshold, 2 means a fatal
error such as an unreadable file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

var explainCmd = &cobra.Command{
	Use:   "explain [goal] [files...]",
	Short: "Derive a goal and print its proof tree",
	Long: `Parses the goal (for example 'has_vehicle(X)'), resolves it against
the facts and rules in the given files and prints every requested
instantiation with the proof tree and the EDB facts it rests on.

Example:
  manglint explain 'has_vehicle(X)' fleet.mg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExplain,
}

var graphCmd = &cobra.Command{
	Use:   "graph [files...]",
	Short: "Export the dependency graph as Graphviz DOT",
	Long: `Prints the predicate dependency graph clustered by stratum, or with
--files the file-level dependency graph, in DOT syntax on stdout.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGraph,
}

var watchCmd = &cobra.Command{
	Use:   "watch [files...]",
	Short: "Re-run analysis whenever a watched file changes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a manglint YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit JSON instead of text")

	checkCmd.Flags().StringVar(&failOn, "fail-on", "", "minimum severity that fails the run (info, low, medium, warning, high, error)")
	checkCmd.Flags().BoolVar(&strict, "strict", false, "fail on any finding and require every used predicate to be defined")
	checkCmd.Flags().StringVar(&sizesPath, "sizes", "", "JSON file mapping predicate names to estimated row counts")
	checkCmd.Flags().StringSliceVar(&virtualPreds, "virtual", nil, "predicate names exempt from undefined/unused checks")
	checkCmd.Flags().BoolVar(&dialect, "dialect", false, "crosscheck statements against the upstream mangle parser")

	explainCmd.Flags().BoolVar(&allPaths, "all-paths", false, "enumerate every derivation instead of the first")
	explainCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "proof depth bound (0 uses the config default)")
	explainCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "resolution step bound (0 uses the config default)")
	explainCmd.Flags().BoolVar(&stratumAware, "stratum-aware", false, "make negation honor stratum order")

	graphCmd.Flags().BoolVar(&fileGraph, "files", false, "export the file-level dependency graph instead")

	watchCmd.Flags().IntVar(&debounceMs, "debounce", 0, "debounce window in milliseconds (0 uses the config default)")

	rootCmd.AddCommand(checkCmd, explainCmd, graphCmd, watchCmd)
}

// loadConfig layers CLI flags over the config file over the defaults.
// Without --config, .manglint.yml in the working directory is used when
// present.
func loadConfig() (config.AnalysisConfig, error) {
	path := configPath
	if path == "" {
		path = ".manglint.yml"
	}
	cfg, err := config.LoadAnalysisConfig(path)
	if err != nil {
		return cfg, err
	}
	if sizesPath != "" {
		cfg.SizesFile = sizesPath
	}
	if len(virtualPreds) > 0 {
		cfg.VirtualPredicates = append(cfg.VirtualPredicates, virtualPreds...)
	}
	if failOn != "" {
		cfg.FailOn = failOn
	}
	if dialect {
		cfg.Dialect = true
	}
	if strict {
		cfg.FailOn = "info"
		cfg.Completeness = true
	}
	if maxDepth > 0 {
		cfg.Tracer.MaxDepth = maxDepth
	}
	if maxSteps > 0 {
		cfg.Tracer.MaxSteps = maxSteps
	}
	if allPaths {
		cfg.Tracer.AllPaths = true
	}
	if stratumAware {
		cfg.Tracer.StratumAware = true
	}
	if debounceMs > 0 {
		cfg.Watch.DebounceMs = debounceMs
	}
	return cfg, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	min, err := model.ParseSeverity(cfg.FailOn)
	if err != nil {
		return err
	}

	res, err := runner.New(cfg, logger).Run(cmd.Context(), args)
	if err != nil {
		return err
	}

	if jsonOut {
		out, err := res.Report.RenderJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(res.Report.RenderText())
	}

	switch {
	case len(res.Report.FatalFiles) > 0:
		exitCode = 2
	case res.Failed(min):
		exitCode = 1
	}
	return nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	goal, err := parseGoal(args[0])
	if err != nil {
		return err
	}

	res, err := runner.New(cfg, logger).Run(cmd.Context(), args[1:])
	if err != nil {
		return err
	}
	if len(res.Report.FatalFiles) > 0 {
		exitCode = 2
		for _, fe := range res.Report.FatalFiles {
			fmt.Fprintf(os.Stderr, "FATAL %s: %v\n", fe.File, fe.Err)
		}
		return nil
	}

	tr := trace.New(res.Program, trace.Options{
		MaxDepth:     cfg.Tracer.MaxDepth,
		MaxSteps:     cfg.Tracer.MaxSteps,
		AllPaths:     cfg.Tracer.AllPaths,
		StratumAware: cfg.Tracer.StratumAware,
		Logger:       logger,
	})
	result := tr.Explain(goal)

	if jsonOut {
		out, err := result.RenderJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(result.RenderText())
	}
	if len(result.Goals) == 0 {
		exitCode = 1
	}
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	res, err := runner.New(cfg, logger).Run(cmd.Context(), args)
	if err != nil {
		return err
	}
	if len(res.Report.FatalFiles) > 0 {
		exitCode = 2
		return nil
	}
	if fileGraph {
		fmt.Print(res.Modules.WriteDOT())
		return nil
	}
	fmt.Print(res.Graph.WriteDOT(res.Strat.Strata))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	min, err := model.ParseSeverity(cfg.FailOn)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	r := runner.New(cfg, logger)
	w, err := watch.New(r, args, time.Duration(cfg.Watch.DebounceMs)*time.Millisecond,
		func(res *runner.RunResult) {
			fmt.Print(res.Report.RenderText())
			if res.Failed(min) {
				fmt.Println("status: failing")
			} else {
				fmt.Println("status: passing")
			}
		}, logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	return nil
}

// parseGoal turns 'name(args)' into a predicate, reusing the statement
// parser so goal syntax matches rule syntax exactly.
func parseGoal(s string) (syntax.Predicate, error) {
	text := strings.TrimSpace(s)
	if !strings.HasSuffix(text, ".") {
		text += "."
	}
	st := syntax.Statement{Text: text, StartLine: 1, EndLine: 1}
	parsed, perr := syntax.ParseStatement(st, "<goal>")
	if perr != nil {
		return syntax.Predicate{}, fmt.Errorf("invalid goal %q: %s", s, perr.Msg)
	}
	switch parsed.Kind {
	case syntax.StmtQuery:
		return *parsed.Query, nil
	case syntax.StmtFact:
		return parsed.Fact.Pred, nil
	}
	return syntax.Predicate{}, fmt.Errorf("goal %q is not a predicate", s)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}
