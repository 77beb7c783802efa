package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/peacemap/riskengine/internal/application/dto"
	"github.com/peacemap/riskengine/internal/application/manager"
	"github.com/peacemap/riskengine/internal/domain/model"
	"github.com/peacemap/riskengine/internal/domain/valueobject"
	"github.com/peacemap/riskengine/pkg/observability"
)

type scoreOptions struct {
	input      string
	train      string
	calculator string
	output     string
}

// scoreResult is one calculator's output as printed by `riskd score`.
type scoreResult struct {
	Score     dto.ScoreRecord   `json:"score" yaml:"score"`
	Breakdown manager.Breakdown `json:"breakdown" yaml:"breakdown"`
}

func newScoreCmd(root *rootOptions) *cobra.Command {
	opts := &scoreOptions{}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a request file offline and print the result",
		Long: `Score reads a request (JSON, or YAML for .yaml/.yml files; "-" reads JSON
from stdin) and runs one calculator, or every applicable one with
--calculator all. Nothing is persisted or published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd.Context(), root, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "request file")
	cmd.Flags().StringVar(&opts.train, "train", "", "samples file to train the anomaly detector with first")
	cmd.Flags().StringVar(&opts.calculator, "calculator", "all", "composite, regional, supplier, anomaly or all")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "json", "json or yaml")
	return cmd
}

func runScore(ctx context.Context, root *rootOptions, opts *scoreOptions, stdin io.Reader, stdout io.Writer) error {
	if opts.output != "json" && opts.output != "yaml" {
		return fmt.Errorf("unsupported output %q", opts.output)
	}

	cfg, err := root.load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(logConfig(cfg))

	var req dto.ScoreRequest
	if err := decodeFile(opts.input, stdin, &req); err != nil {
		return err
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	mgr, err := manager.New(cfg.Risk.ManagerConfig(), manager.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := mgr.Initialize(ctx); err != nil {
		return err
	}

	if opts.train != "" {
		var train dto.TrainRequest
		if err := decodeFile(opts.train, stdin, &train); err != nil {
			return err
		}
		if err := dto.Validate(train); err != nil {
			return err
		}
		if _, err := mgr.TrainAnomalyDetector(ctx, train.Samples); err != nil {
			return err
		}
	}

	results, err := scoreWith(ctx, mgr, opts.calculator, req)
	if err != nil {
		return err
	}
	return encode(stdout, opts.output, results)
}

func scoreWith(ctx context.Context, mgr *manager.Manager, calculator string, req dto.ScoreRequest) (map[string]scoreResult, error) {
	if strings.EqualFold(calculator, "all") {
		out := map[string]scoreResult{}
		for kind, score := range mgr.CalculateAllRisks(ctx, req.ToService()) {
			out[string(kind)] = newScoreResult(score)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no calculator produced a score")
		}
		return out, nil
	}

	kind, err := valueobject.CalculatorKindFromString(calculator)
	if err != nil {
		return nil, err
	}

	var score model.RiskScore
	switch kind {
	case valueobject.CalculatorComposite:
		score, err = mgr.CalculateCompositeRisk(ctx, req.ToService())
	case valueobject.CalculatorRegional:
		if req.Region == "" {
			return nil, fmt.Errorf("regional scoring needs a region")
		}
		score, err = mgr.CalculateRegionalRisk(ctx, req.Region, req.ToService())
	case valueobject.CalculatorSupplier:
		if req.Supplier == nil {
			return nil, fmt.Errorf("supplier scoring needs a supplier")
		}
		score, err = mgr.CalculateSupplierRisk(ctx, *req.Supplier)
	case valueobject.CalculatorAnomaly:
		score, err = mgr.DetectAnomalies(ctx, req.ToService())
	}
	if err != nil {
		return nil, err
	}
	return map[string]scoreResult{string(kind): newScoreResult(score)}, nil
}

func newScoreResult(score model.RiskScore) scoreResult {
	return scoreResult{Score: dto.FromScore(score), Breakdown: manager.BreakdownOf(score)}
}

func decodeFile(path string, stdin io.Reader, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func encode(w io.Writer, format string, results map[string]scoreResult) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
