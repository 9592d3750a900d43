package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/agentcore/internal/agent"
	"github.com/nextlevelbuilder/agentcore/internal/bus"
	"github.com/nextlevelbuilder/agentcore/internal/config"
	"github.com/nextlevelbuilder/agentcore/internal/providers"
	"github.com/nextlevelbuilder/agentcore/internal/tools"
	"github.com/nextlevelbuilder/agentcore/internal/trajectory"
	"github.com/nextlevelbuilder/agentcore/internal/trajectory/otelexport"
	"github.com/nextlevelbuilder/agentcore/pkg/protocol"
)

func runCmd() *cobra.Command {
	var (
		providerName string
		maxSteps     int
		parallel     bool
		workdir      string
		jsonOutput   bool
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "run \"<instruction>\"",
		Short: "Execute one task to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(args[0], runOptions{
				provider:   providerName,
				maxSteps:   maxSteps,
				parallel:   parallel,
				workdir:    workdir,
				jsonOutput: jsonOutput,
				quiet:      quiet,
			})
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "", "provider name from config (default: default_provider)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "override the step budget")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "dispatch multi-tool steps concurrently")
	cmd.Flags().StringVar(&workdir, "workdir", ".", "workspace directory for file tools")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress progress output")
	return cmd
}

type runOptions struct {
	provider   string
	maxSteps   int
	parallel   bool
	workdir    string
	jsonOutput bool
	quiet      bool
}

func runTask(instruction string, opts runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	provOpts, err := cfg.ResolveProvider(opts.provider)
	if err != nil {
		return err
	}
	provider, err := providers.New(provOpts)
	if err != nil {
		return fmt.Errorf("provider %s: %w", provOpts.Name, err)
	}

	registry, err := tools.NewRegistry(tools.Builtins(opts.workdir)...)
	if err != nil {
		return err
	}

	runCfg := cfg.RunConfig(provOpts.Name)
	if opts.maxSteps > 0 {
		runCfg.MaxSteps = opts.maxSteps
	}
	if opts.parallel {
		runCfg.ParallelToolCalls = true
	}

	loop := agent.NewLoop(agent.NewTask(instruction), runCfg, provider, registry)

	// Config edits during a long run adjust the step and reflection budgets
	// without restarting the task.
	if watcher, werr := config.NewWatcher(resolveConfigPath()); werr != nil {
		slog.Warn("config watch unavailable", "error", werr)
	} else {
		watcher.OnChange(func(next *config.Config) {
			rc := next.RunConfig(provOpts.Name)
			loop.UpdateLimits(rc.MaxSteps, rc.MaxReflectionDepth)
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watch unavailable", "error", err)
		}
		defer watcher.Stop()
	}

	statusBus := bus.New()
	defer statusBus.Close()
	if !opts.quiet && !opts.jsonOutput {
		statusBus.Subscribe("cli", printProgress)
	}
	loop.SetStatusBus(statusBus)

	collector, err := setupTrajectory(cfg)
	if err != nil {
		return err
	}
	if collector != nil {
		collector.Start()
		defer collector.Stop()
		loop.SetTrajectory(collector)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := loop.Run(ctx)
	if err != nil {
		return reportFailure(err, opts.jsonOutput)
	}

	if opts.jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(res.Output)
	fmt.Fprintf(os.Stderr, "\ncompleted in %d steps, %d tokens (%s)\n",
		res.Steps, res.Usage.Total(), res.Elapsed.Round(10*time.Millisecond))
	return nil
}

// setupTrajectory wires the SQLite store and optional OTLP exporter.
func setupTrajectory(cfg *config.Config) (*trajectory.Collector, error) {
	if !cfg.Trajectory.Enabled {
		return nil, nil
	}
	store, err := trajectory.NewSQLiteStore(cfg.Trajectory.Path)
	if err != nil {
		return nil, fmt.Errorf("open trajectory store: %w", err)
	}

	collector := trajectory.NewCollector(store)
	if cfg.Telemetry.Enabled {
		exporter, err := otelexport.New(context.Background(), otelexport.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			ServiceName: cfg.Telemetry.ServiceName,
			Headers:     cfg.Telemetry.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("otel exporter: %w", err)
		}
		collector.SetExporter(exporter)
	}
	return collector, nil
}

// printProgress renders bus events as one-line progress updates.
func printProgress(evt bus.Event) {
	switch evt.Type {
	case protocol.StepEventThinking:
		fmt.Fprintf(os.Stderr, "· step %v thinking\n", evt.Payload["step"])
	case protocol.ToolEventCall:
		fmt.Fprintf(os.Stderr, "· step %v tool %v\n", evt.Payload["step"], evt.Payload["tool"])
	case protocol.RunEventReflected:
		fmt.Fprintf(os.Stderr, "· step %v recovered from %v error\n",
			evt.Payload["step"], evt.Payload["category"])
	}
}

// reportFailure prints a coded failure and returns a non-nil error so the
// process exits 1.
func reportFailure(err error, jsonOutput bool) error {
	var rerr *agent.RunError
	if errors.As(err, &rerr) {
		if jsonOutput {
			data, _ := json.MarshalIndent(map[string]interface{}{
				"code":       rerr.Code,
				"step":       rerr.Step,
				"error":      rerr.Err.Error(),
				"root_cause": rerr.RootCause,
			}, "", "  ")
			fmt.Println(string(data))
			return errors.New(strings.ToLower(rerr.Code))
		}
		fmt.Fprintf(os.Stderr, "run failed [%s] at step %d: %v\n", rerr.Code, rerr.Step, rerr.Err)
		if rerr.RootCause != "" {
			fmt.Fprintf(os.Stderr, "root cause: %s\n", rerr.RootCause)
		}
		return errors.New(strings.ToLower(rerr.Code))
	}
	return err
}
