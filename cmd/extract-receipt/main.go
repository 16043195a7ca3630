// Command extract-receipt runs one receipt through extraction and, when an
// agreement is given, through the validation rules and the submission gate.
// Nothing is stored.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agreement-validation/internal/config"
	"github.com/garyjia/agreement-validation/internal/container"
	"github.com/garyjia/agreement-validation/internal/domain/entity"
	"github.com/garyjia/agreement-validation/internal/domain/extraction"
	"github.com/garyjia/agreement-validation/internal/domain/gate"
	"github.com/garyjia/agreement-validation/internal/infrastructure/catalog"
	"github.com/garyjia/agreement-validation/internal/infrastructure/document"
	"github.com/garyjia/agreement-validation/internal/infrastructure/external/openai"
	"github.com/garyjia/agreement-validation/pkg/utils"
)

const (
	exitError         = 1
	exitConfiguration = 2
	exitExtraction    = 3
)

// output is what the command prints
type output struct {
	Invoice  *entity.ExtractedInvoice   `json:"invoice"`
	Results  []entity.ValidationResult  `json:"results,omitempty"`
	Decision *entity.SubmissionDecision `json:"decision,omitempty"`
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config.yaml (defaults and environment when empty)")
	file := flag.String("file", "", "Receipt image or PDF")
	agreementID := flag.String("agreement", "", "Validate against this catalog agreement")
	spent := flag.Float64("spent", 0, "Amount already spent today in the agreement's category")
	verified := flag.Bool("verified", false, "Treat the extracted data as manually verified")
	timeout := flag.Duration("timeout", 0, "Extraction timeout (config value when zero)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: extract-receipt --file receipt.jpg [--agreement AGR-2025-001] [--spent 0] [--verified]\n")
		os.Exit(exitError)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitError)
	}

	// Initialize logger
	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{Level: level, OutputPath: "stderr", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(exitError)
	}
	defer logger.Sync()

	code := run(cfg, logger, *file, *agreementID, *spent, *verified, *timeout)
	if code != 0 {
		_ = logger.Sync()
		os.Exit(code)
	}
}

func run(cfg *config.Config, logger *zap.Logger, file, agreementID string, spent float64, verified bool, timeout time.Duration) int {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitError
	}

	var agreement *entity.Agreement
	if agreementID != "" {
		if agreement = findAgreement(cat, agreementID); agreement == nil {
			fmt.Fprintf(os.Stderr, "ERROR: agreement %s is not in the catalog\n", agreementID)
			return exitError
		}
	}

	// Checked before the file is even read so a missing key never costs a request
	prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitError
	}
	extractor, err := openai.NewExtractor(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.OpenAI.Timeout,
	}, prompts, logger)
	if err != nil {
		var cfgErr *extraction.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "ERROR: %v (set OPENAI_API_KEY)\n", cfgErr)
			return exitConfiguration
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitError
	}

	content, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitError
	}

	if timeout <= 0 {
		timeout = cfg.Session.ExtractionTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	images, err := document.NewRenderer(document.DefaultConfig(), logger).Render(ctx, content, http.DetectContentType(content))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: could not read %s: %v\n", file, err)
		return exitError
	}

	categories := cfg.Validation.Categories
	if len(categories) == 0 {
		categories = cat.Categories()
	}

	raw, err := extractor.Extract(ctx, images, categories)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: extraction failed: %v\n", err)
		return exitExtraction
	}

	inv, err := extraction.NewNormalizer(categories).Normalize(raw).Unwrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitExtraction
	}
	inv.Recalculate()

	out := output{Invoice: inv}
	if agreement != nil {
		out.Results, out.Decision = evaluate(cfg, cat, agreement, inv, spent, verified)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitError
	}
	return 0
}

// evaluate runs the rules and the gate with the configured tolerances. The
// daily budget comes from the catalog's default limit.
func evaluate(cfg *config.Config, cat *catalog.Catalog, agreement *entity.Agreement, inv *entity.ExtractedInvoice, spent float64, verified bool) ([]entity.ValidationResult, *entity.SubmissionDecision) {
	settings := container.ValidationSettings(&container.ValidationConfig{
		PriceTolerance:          cfg.Validation.PriceTolerance,
		ReconciliationTolerance: cfg.Validation.ReconciliationTolerance,
		ConfidenceThreshold:     cfg.Validation.ConfidenceThreshold,
		Reconcile:               cfg.Validation.Reconcile,
		RequireVendor:           cfg.Validation.RequireVendor,
	})

	budget := entity.DailyBudget{Category: agreement.Category, TodaySpend: spent}
	if limit, ok := cat.DailyLimits[agreement.Category]; ok {
		budget.Limit = limit
		budget.HasLimit = true
	}

	results := settings.Rules.Revalidate(agreement, inv, budget, entity.DateOf(time.Now()))
	if settings.Reconcile {
		results = append(results, settings.Rules.Reconcile(inv))
	}

	decision := settings.Gate.Evaluate(gate.Input{
		Agreement:        agreement,
		Invoice:          inv,
		Results:          results,
		ManuallyVerified: verified,
	})
	return results, &decision
}

func findAgreement(cat *catalog.Catalog, id string) *entity.Agreement {
	for _, a := range cat.Agreements {
		if a.ID == id {
			return a
		}
	}
	return nil
}
