package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"esdl/internal/model"
	esdlapi "esdl/pkg/esdl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err := run(ctx, os.Args[1:], os.Stdout)
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCommand(out)
	root.SetArgs(args)
	return root.ExecuteContext(klog.NewContext(ctx, klog.NewKlogr()))
}

func newRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "esdlctl",
		Short:         "Run and inspect evolutionary system definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(
		newRunCommand(),
		newCheckCommand(),
		newOperatorsCommand(),
		newShowCommand(),
		newLandscapesCommand(),
	)
	return root
}

type runOptions struct {
	config      string
	algorithm   string
	definition  string
	landscape   string
	seed        int64
	generations int
	workers     int
	metricsAddr string
	set         []string
}

func (o *runOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.config, "config", "", "configuration file (.yaml, .json, .ini or .toml)")
	fs.StringVar(&o.algorithm, "algorithm", "", "built-in algorithm: ga|de|pso|aco")
	fs.StringVar(&o.definition, "definition", "", "file holding the system definition")
	fs.StringVar(&o.landscape, "landscape", "", "landscape class: onemax|sphere|rosenbrock")
	fs.Int64Var(&o.seed, "seed", 0, "random seed; 0 picks one unless the configuration sets it")
	fs.IntVar(&o.generations, "generations", 0, "generation limit")
	fs.IntVar(&o.workers, "workers", 0, "concurrent fitness evaluations")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	fs.StringArrayVar(&o.set, "set", nil, "override a configuration value, path=value (repeatable)")
}

func (o *runOptions) request() (esdlapi.RunRequest, error) {
	req := esdlapi.RunRequest{
		Algorithm:   o.algorithm,
		ConfigPath:  o.config,
		Landscape:   o.landscape,
		Seed:        o.seed,
		Generations: o.generations,
		Workers:     o.workers,
		Overrides:   o.set,
	}
	if o.definition != "" {
		data, err := os.ReadFile(o.definition)
		if err != nil {
			return req, fmt.Errorf("read definition: %w", err)
		}
		req.Definition = string(data)
	}
	return req, nil
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a definition until a limit is reached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}

func runRun(ctx context.Context, out io.Writer, opts *runOptions) error {
	req, err := opts.request()
	if err != nil {
		return err
	}
	logger := klog.FromContext(ctx)

	var reg prometheus.Registerer
	if opts.metricsAddr != "" {
		registry := prometheus.NewRegistry()
		reg = registry
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(err, "Metrics server failed", "addr", opts.metricsAddr)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
		logger.V(1).Info("Serving metrics", "addr", opts.metricsAddr)
	}

	client, err := esdlapi.New(esdlapi.Options{Registerer: reg})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, runErr := client.Run(ctx, req)
	if summary.RunID != "" {
		fmt.Fprintf(out, "run_id=%s seed=%d generations=%d births=%d evaluations=%d\n",
			summary.RunID, summary.Seed, summary.Generations, summary.Births, summary.Evaluations)
		fmt.Fprintf(out, "reason=%q best=%g phenome=%s\n",
			summary.Reason, summary.FinalBestFitness, model.FormatValues(summary.BestPhenome))
	}
	return runErr
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Compile a definition and report errors and warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			warnings, err := esdlapi.Check(string(data))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintln(out, w)
			}
			fmt.Fprintf(out, "%s: ok (%d warnings)\n", args[0], len(warnings))
			return nil
		},
	}
}

func newOperatorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "operators",
		Short: "List registered operators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, op := range esdlapi.Operators() {
				fmt.Fprintln(cmd.OutOrStdout(), op)
			}
			return nil
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ALGORITHM",
		Short: "Print a built-in definition and its default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range esdlapi.Definitions() {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			src, lines, err := esdlapi.Definition(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, src)
			fmt.Fprintln(out)
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newLandscapesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "landscapes",
		Short: "List built-in landscapes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range esdlapi.Landscapes() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
