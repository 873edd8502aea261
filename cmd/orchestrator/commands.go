package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/config"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/events"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/graph"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/media"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/nodes"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/orchestrator"
	"github.com/Priyanshuthapliyal2005/weavy.ai-sub000/internal/providers/openai"
)

var (
	selectIDs  []string
	layered    bool
	configPath string
	showEvents bool
	outputPath string

	rootCmd = &cobra.Command{
		Use:          "orchestrator",
		Short:        "Validate, schedule and run workflow files offline",
		SilenceUsage: true,
	}

	validateCmd = &cobra.Command{
		Use:   "validate <workflow.json>",
		Short: "Check a workflow for self-loops and cycles",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	orderCmd = &cobra.Command{
		Use:   "order <workflow.json>",
		Short: "Print the sequential execution order",
		Args:  cobra.ExactArgs(1),
		RunE:  runOrder,
	}
	layersCmd = &cobra.Command{
		Use:   "layers <workflow.json>",
		Short: "Print the parallel execution layers",
		Args:  cobra.ExactArgs(1),
		RunE:  runLayers,
	}
	runCmd = &cobra.Command{
		Use:   "run <workflow.json>",
		Short: "Execute a workflow and print the run result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkflow,
	}
	exportCmd = &cobra.Command{
		Use:   "export <workflow.json>",
		Short: "Rewrite a workflow in the current export format",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
)

func init() {
	for _, c := range []*cobra.Command{orderCmd, layersCmd, runCmd} {
		c.Flags().StringSliceVar(&selectIDs, "select", nil, "only these node ids (comma separated)")
	}
	runCmd.Flags().BoolVar(&layered, "layered", false, "run each layer's nodes concurrently")
	runCmd.Flags().StringVar(&configPath, "config", "", "path to engine.yaml (defaults apply when empty)")
	runCmd.Flags().BoolVar(&showEvents, "events", false, "stream engine events to stderr as JSON lines")
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write to this file instead of stdout")

	rootCmd.AddCommand(validateCmd, orderCmd, layersCmd, runCmd, exportCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	wf, err := graph.LoadWorkflow(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if err := graph.Validate(wf.Nodes, wf.Edges); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				fmt.Fprintf(out, "invalid: %v\n", e)
			}
		}
		return fmt.Errorf("%s: workflow rejected", args[0])
	}
	fmt.Fprintf(out, "ok: %d nodes, %d edges\n", len(wf.Nodes), len(wf.Edges))
	return nil
}

func runOrder(cmd *cobra.Command, args []string) error {
	wf, err := graph.LoadWorkflow(args[0])
	if err != nil {
		return err
	}

	order, err := graph.BuildExecutionOrder(graph.Subset(wf.Nodes, selectIDs), wf.Edges)
	for _, n := range order {
		fmt.Fprintln(cmd.OutOrStdout(), n.ID)
	}
	return err
}

func runLayers(cmd *cobra.Command, args []string) error {
	wf, err := graph.LoadWorkflow(args[0])
	if err != nil {
		return err
	}

	layers, err := graph.BuildExecutionLayers(graph.Subset(wf.Nodes, selectIDs), wf.Edges)
	for i, ids := range graph.LayerIDs(layers) {
		fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, strings.Join(ids, " "))
	}
	return err
}

func runExport(cmd *cobra.Command, args []string) error {
	wf, err := graph.LoadWorkflow(args[0])
	if err != nil {
		return err
	}
	b, err := graph.Export(*wf)
	if err != nil {
		return err
	}
	if outputPath == "" {
		_, err = cmd.OutOrStdout().Write(append(b, '\n'))
		return err
	}
	return os.WriteFile(outputPath, b, 0o644)
}

func loadConfig() (*config.EngineConfig, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadEngineConfig(configPath)
}

// newExecutor wires the node executor from cfg. LLM nodes fail with a
// configuration error when no API key is available.
func newExecutor(cfg *config.EngineConfig, errOut io.Writer) (*nodes.Executor, error) {
	secrets, err := config.LoadSecrets(cfg)
	if err != nil {
		return nil, err
	}

	opts := []nodes.Option{
		nodes.WithMediaTransformer(media.New(cfg.Media.BaseURL, cfg.Media.Timeout)),
		nodes.WithRetryPolicy(cfg.RetryPolicy()),
		nodes.WithLLMTimeout(cfg.Engine.LLMTimeout),
		nodes.WithDefaultModel(cfg.LLM.DefaultModel),
	}
	llm, err := openai.New(openai.Config{
		APIKey:            secrets.LLMAPIKey,
		BaseURL:           cfg.LLM.BaseURL,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})
	if err != nil {
		fmt.Fprintf(errOut, "warning: LLM nodes disabled: %v\n", err)
	} else {
		opts = append(opts, nodes.WithTextGenerator(llm))
	}
	return nodes.New(opts...), nil
}

// streamEvents copies every emitted event to w until the returned stop
// function is called.
func streamEvents(w io.Writer) (stop func()) {
	sub := events.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		enc := json.NewEncoder(w)
		for e := range sub {
			_ = enc.Encode(e)
		}
	}()
	return func() {
		events.Unsubscribe(sub)
		wg.Wait()
	}
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	wf, err := graph.LoadWorkflow(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exec, err := newExecutor(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Engine.RunTimeout)
	defer cancel()

	if showEvents {
		stopEvents := streamEvents(cmd.ErrOrStderr())
		defer stopEvents()
	}

	runner := orchestrator.NewRunner(exec, orchestrator.WithMaxConcurrency(cfg.Engine.MaxConcurrency))
	execute := runner.ExecuteWorkflow
	if layered {
		execute = runner.ExecuteLayered
	}
	run, err := execute(ctx, wf.Nodes, wf.Edges, selectIDs)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return err
	}
	if run.Status == orchestrator.RunFailed {
		return fmt.Errorf("run %s failed", run.RunID)
	}
	return nil
}
