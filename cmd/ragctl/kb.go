package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shahryar908/agenticrag/internal/app"
	"github.com/shahryar908/agenticrag/internal/ingestion"
)

var (
	seedFile  string
	clearYes  bool
	statsJSON bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Add PDF, YAML corpus or plain text files to the knowledge base",
	Long: `Add files to the knowledge base.

  *.pdf          every page with text becomes a document
  *.yaml, *.yml  a corpus manifest (name + documents with text and metadata)
  anything else  read as one plain text document`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the bundled agentic AI sample corpus",
	RunE:  runSeed,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE:  runStats,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every document from the knowledge base",
	RunE:  runClear,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "config/seed_corpus.yaml", "corpus manifest to load")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print as JSON")
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "skip the confirmation check")
}

func runIngest(cmd *cobra.Command, args []string) error {
	var docs []ingestion.Document
	for _, path := range args {
		fileDocs, err := readDocuments(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d document(s)\n", path, len(fileDocs))
		docs = append(docs, fileDocs...)
	}
	return addDocuments(cmd, docs, "cli")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	corpus, err := ingestion.LoadCorpus(seedFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Loading corpus %q (%d documents)\n", corpus.Name, len(corpus.Documents))
	return addDocuments(cmd, corpus.Documents, "seed")
}

func addDocuments(cmd *cobra.Command, docs []ingestion.Document, source string) error {
	k, err := app.OpenKnowledge(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer k.Close()

	res, err := k.Base.AddBatch(cmd.Context(), docs, source)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %d document(s) as %d record(s). Total documents: %d\n",
		res.DocumentsAdded, len(res.IDs), res.TotalDocuments)
	return nil
}

// readDocuments turns one file into documents according to its extension.
func readDocuments(path string) ([]ingestion.Document, error) {
	name := filepath.Base(path)
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ingestion.IsPDFName(name):
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pages, total, err := ingestion.ExtractPDF(data)
		if err != nil {
			return nil, err
		}
		return ingestion.PDFDocuments(name, pages, total), nil
	case ext == ".yaml" || ext == ".yml":
		corpus, err := ingestion.LoadCorpus(path)
		if err != nil {
			return nil, err
		}
		return corpus.Documents, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc := ingestion.Document{
			Text:     string(data),
			Metadata: map[string]interface{}{"source": "file", "filename": name},
		}
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		return []ingestion.Document{doc}, nil
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	k, err := app.OpenKnowledge(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer k.Close()

	st, err := k.Base.Stats(cmd.Context())
	if err != nil {
		return err
	}
	if statsJSON {
		return printJSON(cmd, st)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Total documents: %d\n", st.TotalDocuments)
	fmt.Fprintf(w, "Embedding model: %s\n", st.EmbeddingModel)
	fmt.Fprintf(w, "LLM model:       %s\n", cfg.LLM.Model)
	fmt.Fprintf(w, "Collection:      %s\n", st.Collection)
	fmt.Fprintf(w, "Vector store:    %s\n", st.VectorStore)
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to clear %s/%s without --yes", cfg.VectorStore.Backend, cfg.VectorStore.Collection)
	}
	k, err := app.OpenKnowledge(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer k.Close()

	if err := k.Base.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All documents cleared")
	return nil
}
