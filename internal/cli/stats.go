package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/raphaelgruber/enrichr/internal/metrics"
)

// printStats displays run statistics collected during an enrich run.
func printStats(w io.Writer, stats metrics.Snapshot) {
	fmt.Fprintf(w, "\nRun Statistics\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Elapsed: %.1f seconds\n", stats.UptimeSeconds)

	if stats.Entity != nil {
		fmt.Fprintf(w, "\nEntities:\n")
		printOpStats(w, stats.Entity)
	}

	if stats.Search != nil || stats.CacheHits > 0 {
		fmt.Fprintf(w, "\nSearch:\n")
		if stats.Search != nil {
			printOpStats(w, stats.Search)
		}
		if stats.CacheHits > 0 {
			fmt.Fprintf(w, "  Cache hits: %d\n", stats.CacheHits)
		}
	}

	if stats.Embedding != nil {
		fmt.Fprintf(w, "\nEmbeddings:\n")
		printOpStats(w, stats.Embedding)
	}

	if stats.LLMGenerate != nil {
		fmt.Fprintf(w, "\nLLM Generate:\n")
		printOpStats(w, stats.LLMGenerate)
		printTokenStats(w, stats.LLMGenerate)
	}

	if len(stats.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures by stage:\n")
		stages := make([]string, 0, len(stats.Failures))
		for stage := range stats.Failures {
			stages = append(stages, stage)
		}
		slices.Sort(stages)
		for _, stage := range stages {
			fmt.Fprintf(w, "  %-10s %d\n", stage, stats.Failures[stage])
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(w, ", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Fprintf(w, ", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Fprintln(w)
}
