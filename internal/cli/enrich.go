package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/enrichr/internal/config"
	"github.com/raphaelgruber/enrichr/internal/export"
	"github.com/raphaelgruber/enrichr/internal/llm"
	"github.com/raphaelgruber/enrichr/internal/metrics"
	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/raphaelgruber/enrichr/internal/parser"
	"github.com/raphaelgruber/enrichr/internal/search"
	"github.com/raphaelgruber/enrichr/internal/service"
	"github.com/spf13/cobra"
)

var (
	enrichColumn        string
	enrichTemplate      string
	enrichInstruction   string
	enrichOutput        string
	enrichFormat        string
	enrichSheet         string
	enrichWorkers       int
	enrichTopK          int
	enrichResults       int
	enrichCache         string
	enrichEmptyEvidence string
	enrichWithStatus    bool
	enrichStats         bool
	enrichJob           string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [file]",
	Short: "Answer a question for every entity in a column",
	Long: `Answer a templated question for every distinct value of a column.

The template must contain exactly one {object} placeholder, which is replaced
by each entity. Alternatively --instruction appends free-form text to the entity.

Supported inputs: .csv, .tsv, .xlsx, .txt (one entity per line, column "text").
Output goes to stdout unless -o is given; the format follows the file extension.

Examples:
  enrichr enrich companies.csv --column Company \
    --template "What country is {object} headquartered in?" -o countries.csv
  enrichr enrich leads.xlsx --sheet Q3 --column Name --instruction "number of employees"
  enrichr enrich --job job.yaml --workers 8 --stats`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().StringVarP(&enrichColumn, "column", "c", "", "column holding the entities")
	enrichCmd.Flags().StringVarP(&enrichTemplate, "template", "t", "", "question template containing {object}")
	enrichCmd.Flags().StringVarP(&enrichInstruction, "instruction", "i", "", "free-form instruction appended to each entity")
	enrichCmd.Flags().StringVarP(&enrichOutput, "output", "o", "", "output file (default stdout)")
	enrichCmd.Flags().StringVar(&enrichFormat, "format", "", "output format: csv, tsv or jsonl (default from extension)")
	enrichCmd.Flags().StringVar(&enrichSheet, "sheet", "", "workbook sheet for .xlsx input (default first sheet)")
	enrichCmd.Flags().IntVarP(&enrichWorkers, "workers", "w", 0, "entities processed concurrently (default ENRICHR_WORKERS)")
	enrichCmd.Flags().IntVarP(&enrichTopK, "top-k", "k", 0, "documents retrieved per answer (default ENRICHR_TOP_K)")
	enrichCmd.Flags().IntVar(&enrichResults, "results", 0, "search results fetched per entity (default ENRICHR_SEARCH_RESULTS)")
	enrichCmd.Flags().StringVar(&enrichCache, "cache", "", "search cache: off, memory or redis (default ENRICHR_CACHE)")
	enrichCmd.Flags().StringVar(&enrichEmptyEvidence, "empty-evidence", "", "no-evidence policy: generate or marker (default ENRICHR_EMPTY_EVIDENCE)")
	enrichCmd.Flags().BoolVar(&enrichWithStatus, "with-status", false, "add status, stage, error and evidence columns")
	enrichCmd.Flags().BoolVar(&enrichStats, "stats", false, "print run statistics to stderr")
	enrichCmd.Flags().StringVar(&enrichJob, "job", "", "YAML job file; flags override its fields")
}

// enrichRequest is the resolved input of one enrich run.
type enrichRequest struct {
	Input    string
	Sheet    string
	Column   string
	Template models.PromptTemplate
	Output   string
	Format   export.Format
}

// resolveRequest merges the job file, positional args and flags. Flags win.
func resolveRequest(cmd *cobra.Command, args []string, job config.Job) (enrichRequest, error) {
	flags := cmd.Flags()
	override := func(name, flagVal string, jobVal *string) {
		if flags.Changed(name) || *jobVal == "" {
			*jobVal = flagVal
		}
	}

	if len(args) == 1 {
		job.Input = args[0]
	}
	override("column", enrichColumn, &job.Column)
	override("sheet", enrichSheet, &job.Sheet)
	override("output", enrichOutput, &job.Output)
	override("format", enrichFormat, &job.Format)
	if flags.Changed("template") || flags.Changed("instruction") {
		job.Template, job.Instruction = enrichTemplate, enrichInstruction
	}

	if job.Input == "" {
		return enrichRequest{}, &models.ConfigError{Field: "input", Reason: "no input file given"}
	}
	if job.Column == "" {
		return enrichRequest{}, &models.ConfigError{Field: "column", Reason: "--column is required"}
	}

	var tmpl models.PromptTemplate
	var err error
	switch {
	case job.Template != "" && job.Instruction != "":
		return enrichRequest{}, &models.ConfigError{Field: "template", Reason: "use either --template or --instruction, not both"}
	case job.Template != "":
		tmpl, err = models.ParseTemplate(job.Template)
	case job.Instruction != "":
		tmpl, err = models.InstructionTemplate(job.Instruction)
	default:
		return enrichRequest{}, &models.ConfigError{Field: "template", Reason: "--template or --instruction is required"}
	}
	if err != nil {
		return enrichRequest{}, err
	}

	format := export.FormatFor(job.Output)
	if job.Format != "" {
		if format, err = export.ParseFormat(job.Format); err != nil {
			return enrichRequest{}, &models.ConfigError{Field: "format", Reason: err.Error()}
		}
	}

	return enrichRequest{
		Input:    job.Input,
		Sheet:    job.Sheet,
		Column:   job.Column,
		Template: tmpl,
		Output:   job.Output,
		Format:   format,
	}, nil
}

// applyFlagOverrides copies pipeline flags onto cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = enrichWorkers
	}
	if flags.Changed("top-k") {
		cfg.TopK = enrichTopK
	}
	if flags.Changed("results") {
		cfg.SearchResults = enrichResults
	}
	if flags.Changed("cache") {
		cfg.Cache = config.CacheMode(enrichCache)
	}
	if flags.Changed("empty-evidence") {
		cfg.EmptyEvidence = config.EmptyEvidencePolicy(enrichEmptyEvidence)
	}
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var job config.Job
	if enrichJob != "" {
		var err error
		if job, err = config.LoadJob(enrichJob); err != nil {
			return err
		}
		job.Apply(&cfg)
	}

	req, err := resolveRequest(cmd, args, job)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	table, err := parser.Load(req.Input, req.Sheet)
	if err != nil {
		return err
	}
	entities, err := table.DistinctValues(req.Column)
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return fmt.Errorf("column %q has no non-empty values", req.Column)
	}

	slog.Info("enrich started",
		"input", req.Input,
		"column", req.Column,
		"entities", len(entities),
		"template", req.Template.String(),
		"llm", cfg.LLMProvider,
		"embed", cfg.EmbedProvider)

	mc := metrics.NewCollector()
	orch, cleanup, err := buildOrchestrator(ctx, cfg, mc)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Warn("failed to close search cache", "error", err)
		}
	}()

	batch := service.NewBatch(entities)
	var rows []models.ResultRow
	var runErr error
	if showProgress(cmd) {
		rows, runErr = RunBatchProgress(ctx, orch, batch, req.Template)
	} else {
		rows, runErr = orch.Execute(ctx, batch, req.Template)
	}
	if rows == nil {
		return runErr
	}

	opts := export.Options{
		Format:       req.Format,
		EntityColumn: req.Column,
		Template:     req.Template,
		WithStatus:   enrichWithStatus,
	}
	if req.Output == "" || req.Output == "-" {
		err = export.Write(cmd.OutOrStdout(), rows, opts)
	} else {
		err = export.WriteFile(req.Output, rows, opts)
	}
	if err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	printSummary(cmd, batch.Snapshot(), req.Output)
	if enrichStats {
		printStats(cmd.ErrOrStderr(), mc.Snapshot())
	}

	if errors.Is(runErr, context.Canceled) {
		return errors.New("batch canceled; partial results written")
	}
	return runErr
}

// buildOrchestrator wires providers from cfg. The cleanup function is never nil.
func buildOrchestrator(ctx context.Context, cfg config.Config, mc *metrics.Collector) (*service.Orchestrator, func() error, error) {
	fetcher, closeFetcher, err := search.New(ctx, cfg, mc)
	if err != nil {
		return nil, closeFetcher, fmt.Errorf("init search: %w", err)
	}

	embedder, err := llm.NewEmbedder(ctx, cfg, mc)
	if err != nil {
		return nil, closeFetcher, fmt.Errorf("init embedder: %w", err)
	}

	model, err := llm.NewModel(ctx, cfg, mc)
	if err != nil {
		return nil, closeFetcher, fmt.Errorf("init model: %w", err)
	}

	answerer := service.NewAnswerer(model, cfg.TopK, cfg.EmptyEvidence)
	return service.NewOrchestrator(fetcher, embedder, answerer, cfg.Workers, mc), closeFetcher, nil
}

// printSummary reports the outcome on stderr so stdout stays clean for results.
func printSummary(cmd *cobra.Command, b service.BatchSnapshot, output string) {
	w := cmd.ErrOrStderr()
	dest := output
	if dest == "" || dest == "-" {
		dest = "stdout"
	}
	ok := b.Completed - b.Failed - b.Canceled
	fmt.Fprintf(w, "Enriched %d/%d entities (%d failed, %d canceled) -> %s\n", ok, b.Total, b.Failed, b.Canceled, dest)
	if b.Rejected > 0 {
		fmt.Fprintf(w, "%d entities were rejected by a provider; check API credentials and quota.\n", b.Rejected)
	}
	if b.Failed > 0 && !enrichWithStatus {
		fmt.Fprintf(w, "Failed rows contain %s; rerun with --with-status for reasons.\n", models.FailureMarker)
	}
}
