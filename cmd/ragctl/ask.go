package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shahryar908/agenticrag/internal/app"
	"github.com/shahryar908/agenticrag/internal/util"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

var (
	askServer   string
	askResults  int
	askJSON     bool
	askTimeout  time.Duration
	showSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question",
	Long: `Answer a question through the agentic workflow.

Without --server the workflow runs in process against the configured
vector store and LLM. With --server the question is posted to a running
API server's /ask endpoint.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askServer, "server", "", "API server base URL, e.g. http://localhost:8000")
	askCmd.Flags().IntVarP(&askResults, "results", "n", 0, "passages to retrieve (default: retrieval.top_k)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
	askCmd.Flags().BoolVar(&showSources, "sources", true, "include retrieved sources")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "request timeout when using --server")
}

// answer is the printable shape shared by local and remote runs.
type answer struct {
	Query      string         `json:"query"`
	Answer     string         `json:"answer"`
	QueryType  string         `json:"query_type"`
	Confidence float64        `json:"confidence"`
	Reasoning  []string       `json:"reasoning"`
	Path       []string       `json:"path"`
	Sources    []answerSource `json:"sources,omitempty"`
}

type answerSource struct {
	ID         string  `json:"id"`
	Document   string  `json:"document"`
	Similarity float64 `json:"similarity"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	var (
		out *answer
		err error
	)
	if askServer != "" {
		out, err = askRemote(cmd, query)
	} else {
		out, err = askLocal(cmd, query)
	}
	if err != nil {
		return err
	}
	if askJSON {
		return printJSON(cmd, out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Query type: %s (confidence %.2f)\n", out.QueryType, out.Confidence)
	fmt.Fprintf(w, "Path: %s\n\n", strings.Join(out.Path, " -> "))
	fmt.Fprintln(w, out.Answer)
	if len(out.Reasoning) > 0 {
		fmt.Fprintln(w, "\nReasoning:")
		for i, step := range out.Reasoning {
			fmt.Fprintf(w, "  %d. %s\n", i+1, step)
		}
	}
	if showSources && len(out.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range out.Sources {
			fmt.Fprintf(w, "  [%s] %.3f %s\n", s.ID, s.Similarity, util.Preview(s.Document, 80))
		}
	}
	return nil
}

func askLocal(cmd *cobra.Command, query string) (*answer, error) {
	svc, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	res, err := svc.Engine.Run(cmd.Context(), query, workflows.RunOptions{TopK: askResults})
	if err != nil {
		return nil, err
	}
	out := &answer{
		Query:      query,
		Answer:     res.State.Answer,
		QueryType:  res.State.QueryType.String(),
		Confidence: res.State.Confidence,
		Reasoning:  res.State.ReasoningTrace,
	}
	for _, n := range res.Path {
		out.Path = append(out.Path, n.String())
	}
	for _, d := range res.State.RetrievedDocs {
		out.Sources = append(out.Sources, answerSource{ID: d.ID, Document: d.Text, Similarity: d.Similarity})
	}
	return out, nil
}

func askRemote(cmd *cobra.Command, query string) (*answer, error) {
	body := map[string]interface{}{"query": query, "show_sources": showSources}
	if askResults > 0 {
		body["n_results"] = askResults
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, strings.TrimRight(askServer, "/")+"/ask", bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: askTimeout}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("ask %s: %w", askServer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var detail struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, detail.Detail)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out answer
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
