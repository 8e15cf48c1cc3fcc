package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/classify"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/config"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/embed"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/feed"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/index"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/ingest"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/mail"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/rank"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/reconcile"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/registry"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/server"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "bbrag",
	Short:   "Searchable archive for Bloomberg news alerts",
	Long:    "bbrag classifies incoming Bloomberg alerts, reconciles stub placeholders with complete articles, and serves hybrid semantic and recency search over the indexed archive.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// API keys may live in a local .env next to the binary.
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bbrag", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/bbrag/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the mailbox root, feeds, and embedding provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive and registry status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := openRegistry()
		if err != nil {
			return err
		}

		docs, err := db.CountDocuments()
		if err != nil {
			return fmt.Errorf("counting documents: %w", err)
		}
		embs, err := db.CountEmbeddings()
		if err != nil {
			return fmt.Errorf("counting embeddings: %w", err)
		}
		stats := reg.Stats()

		fmt.Println("Archive:")
		fmt.Printf("  Documents indexed: %d\n", docs)
		fmt.Printf("  Embeddings stored: %d\n", embs)
		fmt.Println("\nStub registry:")
		fmt.Printf("  Total records: %d\n", stats.Total)
		fmt.Printf("  Pending: %d\n", stats.Pending)
		fmt.Printf("  Completed: %d\n", stats.Completed)
		fmt.Printf("  Pending with story id: %d\n", stats.PendingWithStoryID)
		fmt.Printf("  Pending without story id: %d\n", stats.PendingWithoutStoryID)

		mailbox, err := openMailbox()
		if err != nil {
			return err
		}
		fmt.Println("\nMailbox:")
		for _, folder := range []string{cfg.Mailbox.Source, cfg.Mailbox.Stubs, cfg.Mailbox.Indexed, cfg.Mailbox.Processed} {
			items, err := mailbox.List(folder)
			if err != nil {
				return err
			}
			fmt.Printf("  %s: %d\n", folder, len(items))
		}
		return nil
	},
}

// --- fetch command ---

var fetchDaysBack int

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Pull configured feeds into the source folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Feeds) == 0 {
			fmt.Println("No feeds configured. Add feeds to config.yaml.")
			return nil
		}

		mailbox, err := openMailbox()
		if err != nil {
			return err
		}

		sources := make([]feed.Source, len(cfg.Feeds))
		for i, f := range cfg.Feeds {
			sources[i] = feed.Source{URL: f.URL, Name: f.Name}
		}

		items := feed.NewFetcher(sources).FetchAll(fetchDaysBack)
		delivered := 0
		for _, item := range items {
			if _, err := mailbox.Read(item.ID); err == nil {
				continue // already delivered on a previous fetch
			}
			if err := mailbox.Deliver(cfg.Mailbox.Source, item); err != nil {
				log.Printf("Failed to deliver %s: %v", item.ID, err)
				continue
			}
			delivered++
		}

		fmt.Printf("Fetched %d entries, delivered %d new into %s.\n", len(items), delivered, cfg.Mailbox.Source)
		if delivered > 0 {
			fmt.Println("Run 'bbrag sync' to classify and index them.")
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchDaysBack, "days-back", 1, "Lookback window (days)")
}

// --- sync command ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Classify, reconcile, and index items in the source folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		mailbox, err := openMailbox()
		if err != nil {
			return err
		}
		embedder := newEmbedder()
		if embedder == nil {
			return fmt.Errorf("no embedding provider available")
		}
		ix, err := ingest.LoadIndex(db)
		if err != nil {
			return err
		}

		classifier := classify.NewClassifier(cfg.Classify.MinCompleteLength, cfg.Classify.ProseThreshold)
		fp := classify.NewFingerprinter(time.Duration(cfg.Classify.FingerprintBucketMinutes) * time.Minute)
		reconciler := reconcile.New(reg, fp)

		pipe := ingest.New(mailbox, cfg.Mailbox, classifier, reconciler, reg, db, embedder, ix)
		counts, err := pipe.Run(context.Background())
		if err != nil {
			return err
		}

		fmt.Println("Sync complete:")
		fmt.Printf("  Processed: %d\n", counts.Processed)
		fmt.Printf("  Indexed: %d\n", counts.Indexed)
		fmt.Printf("  Stubs filed: %d\n", counts.Stubs)
		fmt.Printf("  Completed stubs: %d\n", counts.Completed)
		fmt.Printf("  Already seen: %d\n", counts.AlreadySeen)
		if counts.Malformed > 0 {
			fmt.Printf("  Malformed: %d\n", counts.Malformed)
		}
		if counts.Failed > 0 {
			fmt.Printf("  Failed: %d\n", counts.Failed)
		}
		return nil
	},
}

// --- search command ---

var (
	searchTopK    int
	searchWeight  float64
	searchTopics  string
	searchPeople  string
	searchTickers string
	searchFrom    string
	searchTo      string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the archive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ranker, err := newRanker(db)
		if err != nil {
			return err
		}

		query := rank.Query{
			Text: strings.Join(args, " "),
			TopK: searchTopK,
		}
		if cmd.Flags().Changed("weight") {
			query.RecencyWeight = &searchWeight
		}
		query.Filter.Topics = splitArg(searchTopics)
		query.Filter.People = splitArg(searchPeople)
		query.Filter.Tickers = splitArg(searchTickers)
		if searchFrom != "" {
			start, err := time.Parse("2006-01-02", searchFrom)
			if err != nil {
				return fmt.Errorf("invalid --from date: %s", searchFrom)
			}
			query.Filter.Start = start
		}
		if searchTo != "" {
			end, err := time.Parse("2006-01-02", searchTo)
			if err != nil {
				return fmt.Errorf("invalid --to date: %s", searchTo)
			}
			query.Filter.End = end
		}

		results, err := ranker.Rank(context.Background(), query)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}

		for _, res := range results {
			fmt.Printf("%2d. %s\n", res.Rank, res.Doc.Subject)
			fmt.Printf("    %s", res.Doc.EffectiveDate().Format("2006-01-02"))
			if res.Doc.Author != "" {
				fmt.Printf("  %s", res.Doc.Author)
			}
			fmt.Printf("  [combined %.3f, semantic %.3f, recency %.3f]\n", res.Combined, res.Semantic, res.Recency)
			if preview := res.Doc.Preview(160); preview != "" {
				fmt.Printf("    %s\n", strings.ReplaceAll(preview, "\n", " "))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top", "k", 0, "Number of results (default from config)")
	searchCmd.Flags().Float64VarP(&searchWeight, "weight", "w", 0, "Recency weight, 0 to 1")
	searchCmd.Flags().StringVar(&searchTopics, "topics", "", "Comma-separated topic filter")
	searchCmd.Flags().StringVar(&searchPeople, "people", "", "Comma-separated people filter")
	searchCmd.Flags().StringVar(&searchTickers, "tickers", "", "Comma-separated ticker filter")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "Earliest date (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "Latest date (YYYY-MM-DD)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		ranker, err := newRanker(db)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, reg, ranker, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- wiring helpers ---

func openDB() (*store.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.Open(filepath.Join(dataDir, "bbrag.db"))
}

func openRegistry() (*registry.Registry, error) {
	fs, err := registry.NewFileStore(filepath.Join(cfg.GetDataDir(), "registry.json"))
	if err != nil {
		return nil, err
	}
	return registry.New(fs, cfg.Retrieval.OldestPendingFirst)
}

func openMailbox() (*mail.Maildrop, error) {
	return mail.NewMaildrop(cfg.MailboxRoot(),
		cfg.Mailbox.Source, cfg.Mailbox.Indexed, cfg.Mailbox.Stubs, cfg.Mailbox.Processed)
}

func newEmbedder() embed.Embedder {
	e := cfg.Embedding
	return embed.Create(e.Provider, e.Model, e.OllamaURL, e.OpenAIModel, e.APIKeyEnv)
}

func newRanker(db *store.DB) (*rank.Ranker, error) {
	embedder := newEmbedder()
	if embedder == nil {
		return nil, fmt.Errorf("no embedding provider available")
	}
	ix, err := ingest.LoadIndex(db)
	if err != nil {
		return nil, err
	}
	semantic := index.NewSemantic(embedder, ix)
	return rank.NewRanker(semantic, db, rank.Options{
		TopK:           cfg.Retrieval.TopK,
		RecencyWeight:  cfg.Retrieval.RecencyWeight,
		HalflifeDays:   cfg.Retrieval.HalflifeDays,
		CandidateFloor: cfg.Retrieval.CandidateFloor,
	}), nil
}

func splitArg(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
