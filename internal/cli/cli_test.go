package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/raphaelgruber/enrichr/internal/config"
	"github.com/raphaelgruber/enrichr/internal/export"
	"github.com/raphaelgruber/enrichr/internal/metrics"
	"github.com/raphaelgruber/enrichr/internal/models"
	"github.com/raphaelgruber/enrichr/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(t *testing.T, cmds ...*cobra.Command) {
	t.Helper()
	for _, c := range cmds {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		})
	}
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(t, rootCmd, enrichCmd, columnsCmd, templateCheckCmd)
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fakeSerpAPI serves one HQ result for Acme Corp and nothing for anyone else.
func fakeSerpAPI(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Query().Get("q"), "Acme Corp") {
			_, _ = w.Write([]byte(`{"organic_results":[{"title":"Acme HQ","snippet":"Acme Corp is headquartered in Springfield, USA.","link":"http://example.com/a"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"organic_results":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func hashVector(text string) []float64 {
	v := make([]float64, 64)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!:")))
		v[h.Sum32()%64]++
	}
	return v
}

// fakeOpenAI implements the embeddings and chat completion endpoints.
// The chat answer is "USA" when the prompt context mentions it, "unknown" otherwise.
func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			var req struct {
				Input json.RawMessage `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var inputs []string
			if err := json.Unmarshal(req.Input, &inputs); err != nil {
				var single string
				if err := json.Unmarshal(req.Input, &single); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				inputs = []string{single}
			}
			data := make([]map[string]any, len(inputs))
			for i, in := range inputs {
				data[i] = map[string]any{"object": "embedding", "index": i, "embedding": hashVector(in)}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   data,
				"model":  "fake-embed",
				"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
			})

		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			var req struct {
				Messages []struct {
					Role    string `json:"role"`
					Content any    `json:"content"`
				} `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			raw, _ := json.Marshal(req.Messages[len(req.Messages)-1].Content)
			userPrompt := string(raw)
			contextText, _, _ := strings.Cut(userPrompt, "Question:")

			answer := "unknown"
			if strings.Contains(contextText, "USA") {
				answer = "USA"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "fake-chat",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": answer},
					"finish_reason": "stop",
				}},
				"usage": map[string]int{"prompt_tokens": 20, "completion_tokens": 1, "total_tokens": 21},
			})

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setTestEnv(t *testing.T, serpURL, openaiURL string) {
	t.Helper()
	t.Setenv("SERPAPI_API_KEY", "serp-test")
	t.Setenv("SERPAPI_URL", serpURL)
	t.Setenv("ENRICHR_SEARCH_RPS", "0")
	t.Setenv("ENRICHR_LLM_RPS", "0")
	t.Setenv("ENRICHR_LLM_PROVIDER", "openai")
	t.Setenv("ENRICHR_LLM_MODEL", "fake-chat")
	t.Setenv("ENRICHR_EMBED_PROVIDER", "openai")
	t.Setenv("ENRICHR_EMBED_MODEL", "fake-embed")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", openaiURL)
	t.Setenv("ENRICHR_CACHE", "off")
	t.Setenv("ENRICHR_LOG_FILE", filepath.Join(t.TempDir(), "enrichr.log"))
	t.Setenv("ENRICHR_LOG_LEVEL", "ERROR")
}

func TestEnrichEndToEnd(t *testing.T) {
	var serpCalls atomic.Int32
	setTestEnv(t, fakeSerpAPI(t, &serpCalls).URL, fakeOpenAI(t).URL)

	input := writeInput(t, "companies.csv", "Company,Size\nAcme Corp,big\nGlobex,small\nAcme Corp,big\n,none\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	_, stderr, err := runCLI(t, "enrich", input,
		"--column", "Company",
		"--template", "What country is {object} headquartered in?",
		"--workers", "2",
		"-o", output,
		"--stats",
		"--no-progress")
	require.NoError(t, err, stderr)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t,
		"Company,What country is {object} headquartered in?\nAcme Corp,USA\nGlobex,unknown\n",
		string(data))

	assert.Equal(t, int32(2), serpCalls.Load(), "one search per distinct entity")
	assert.Contains(t, stderr, "Enriched 2/2 entities")
	assert.Contains(t, stderr, "Run Statistics")
}

func TestEnrichInvalidTemplateFailsBeforeSearch(t *testing.T) {
	var serpCalls atomic.Int32
	setTestEnv(t, fakeSerpAPI(t, &serpCalls).URL, "http://127.0.0.1:1")

	input := writeInput(t, "companies.csv", "Company\nAcme Corp\n")

	for _, tmpl := range []string{"Where is it?", "{object} or {object}"} {
		_, _, err := runCLI(t, "enrich", input, "--column", "Company", "--template", tmpl, "--no-progress")
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrConfiguration)
	}
	assert.Equal(t, int32(0), serpCalls.Load())
}

func TestEnrichMissingCredentials(t *testing.T) {
	var serpCalls atomic.Int32
	setTestEnv(t, fakeSerpAPI(t, &serpCalls).URL, "http://127.0.0.1:1")
	t.Setenv("SERPAPI_API_KEY", "")

	input := writeInput(t, "companies.csv", "Company\nAcme Corp\n")
	_, _, err := runCLI(t, "enrich", input, "--column", "Company", "--template", "Who runs {object}?", "--no-progress")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Contains(t, err.Error(), "SERPAPI_API_KEY")
}

func TestResolveRequest(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		flags   map[string]string
		job     config.Job
		want    enrichRequest
		wantErr bool
	}{
		{
			name:  "flags only",
			args:  []string{"in.csv"},
			flags: map[string]string{"column": "Company", "template": "Who founded {object}?", "output": "out.tsv"},
			want: enrichRequest{
				Input: "in.csv", Column: "Company", Output: "out.tsv", Format: export.FormatTSV,
				Template: models.MustParseTemplate("Who founded {object}?"),
			},
		},
		{
			name:  "flags override job",
			flags: map[string]string{"column": "Name"},
			job:   config.Job{Input: "job.xlsx", Sheet: "Q3", Column: "Company", Instruction: "revenue", Format: "jsonl"},
			want: enrichRequest{
				Input: "job.xlsx", Sheet: "Q3", Column: "Name", Format: export.FormatJSONL,
				Template: mustInstruction(t, "revenue"),
			},
		},
		{
			name:    "template and instruction",
			args:    []string{"in.csv"},
			flags:   map[string]string{"column": "C", "template": "{object}?", "instruction": "x"},
			wantErr: true,
		},
		{
			name:    "missing column",
			args:    []string{"in.csv"},
			flags:   map[string]string{"template": "{object}?"},
			wantErr: true,
		},
		{
			name:    "missing input",
			flags:   map[string]string{"column": "C", "template": "{object}?"},
			wantErr: true,
		},
		{
			name:    "bad format",
			args:    []string{"in.csv"},
			flags:   map[string]string{"column": "C", "template": "{object}?", "format": "xml"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t, enrichCmd)
			for k, v := range tt.flags {
				require.NoError(t, enrichCmd.Flags().Set(k, v))
			}

			got, err := resolveRequest(enrichCmd, tt.args, tt.job)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func mustInstruction(t *testing.T, s string) models.PromptTemplate {
	t.Helper()
	tmpl, err := models.InstructionTemplate(s)
	require.NoError(t, err)
	return tmpl
}

func TestColumnsCommand(t *testing.T) {
	input := writeInput(t, "companies.csv", "Company,Country\nAcme Corp,US\nGlobex,US\nAcme Corp,\n")
	t.Setenv("ENRICHR_LOG_FILE", filepath.Join(t.TempDir(), "enrichr.log"))

	stdout, _, err := runCLI(t, "columns", input)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Columns (2), rows: 3")
	assert.Contains(t, stdout, "Company")
	assert.Contains(t, stdout, "2 distinct  e.g. Acme Corp")
	assert.Contains(t, stdout, "1 distinct  e.g. US")
}

func TestTemplateCheckCommand(t *testing.T) {
	t.Setenv("ENRICHR_LOG_FILE", filepath.Join(t.TempDir(), "enrichr.log"))

	stdout, _, err := runCLI(t, "template", "check", "What country is {object} headquartered in?", "--entity", "Globex")
	require.NoError(t, err)
	assert.Contains(t, stdout, "query: What country is Globex headquartered in?")

	stdout, _, err = runCLI(t, "template", "check", "--instruction", "founding year")
	require.NoError(t, err)
	assert.Contains(t, stdout, "query: Acme Corp founding year")

	_, _, err = runCLI(t, "template", "check", "no placeholder")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestStageSummary(t *testing.T) {
	states := []service.EntityState{
		{Entity: "a", Stage: models.StageFetching},
		{Entity: "b", Stage: models.StageFetching},
		{Entity: "c", Stage: models.StageAnswering},
		{Entity: "d", Stage: models.StageDone, Status: models.StatusOK},
		{Entity: "e", Stage: models.StagePending},
	}
	assert.Equal(t, "fetching 2 · answering 1", stageSummary(states))
	assert.Empty(t, stageSummary(nil))
}

func TestPrintSummary(t *testing.T) {
	b := service.NewBatch([]string{"Acme Corp", "Globex", "Initech"})
	b.Finish(0, models.ResultRow{Entity: "Acme Corp", Answer: "USA", Status: models.StatusOK})
	b.Finish(1, models.FailedRow("Globex", models.StageAnswering, nil))
	b.Finish(2, models.CanceledRow("Initech"))

	resetFlags(t, enrichCmd)
	var stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetErr(&stderr)

	printSummary(cmd, b.Snapshot(), "")
	assert.Equal(t,
		"Enriched 1/3 entities (1 failed, 1 canceled) -> stdout\n"+
			"Failed rows contain #N/A; rerun with --with-status for reasons.\n",
		stderr.String())
}

func TestPrintSummaryProviderRejections(t *testing.T) {
	b := service.NewBatch([]string{"Acme Corp"})
	b.Finish(0, models.FailedRow("Acme Corp", models.StageAnswering, nil))
	b.Reject()

	resetFlags(t, enrichCmd)
	var stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetErr(&stderr)

	printSummary(cmd, b.Snapshot(), "out.csv")
	assert.Contains(t, stderr.String(), "-> out.csv")
	assert.Contains(t, stderr.String(), "1 entities were rejected by a provider")
}

func TestPrintStats(t *testing.T) {
	mc := metrics.NewCollector()
	mc.RecordTiming(metrics.OpSearch, 0)
	mc.RecordCacheHit()
	mc.RecordLLMUsage(metrics.OpLLMGenerate, 0, 100, 5)
	mc.RecordFailure("answering")

	var buf bytes.Buffer
	printStats(&buf, mc.Snapshot())

	out := buf.String()
	assert.Contains(t, out, "Search:")
	assert.Contains(t, out, "Cache hits: 1")
	assert.Contains(t, out, "Tokens In:  100 total")
	assert.Contains(t, out, "answering")
}
