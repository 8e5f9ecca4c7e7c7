// Package main is the yobou CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/yobou/internal/artifact"
	"github.com/hyperjump/yobou/internal/cli"
	"github.com/hyperjump/yobou/internal/config"
	"github.com/hyperjump/yobou/internal/embedding"
	"github.com/hyperjump/yobou/internal/extract"
	"github.com/hyperjump/yobou/internal/indexer"
	"github.com/hyperjump/yobou/internal/ingest"
	"github.com/hyperjump/yobou/internal/keyword"
	"github.com/hyperjump/yobou/internal/models"
	"github.com/hyperjump/yobou/internal/retrieval"
	"github.com/hyperjump/yobou/internal/scoring"
	"github.com/hyperjump/yobou/internal/server"
	"github.com/hyperjump/yobou/internal/storage"
	"github.com/hyperjump/yobou/internal/vector"
	"github.com/hyperjump/yobou/internal/watcher"
	"github.com/hyperjump/yobou/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/yobou/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so "yobou server" from the
// project dir uses the project's config. Returns the config and the path that
// was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "score":
		runScore()
	case "ask":
		runAsk()
	case "index":
		runIndex()
	case "ingest":
		runIngest()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("yobou version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	idx := components.Indexer
	exts := cfg.Watch.Extensions
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		exts,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			if err := idx.IndexFile(context.Background(), path, exts); err != nil {
				logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			if err := idx.DeleteDocument(context.Background(), indexer.FileDocID(path)); err != nil {
				logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Retrieval,
		components.Indexer,
		components.Storage,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" && components.VectorIndex != nil {
		if err := components.VectorIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runScore() {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage)")
	horizonsFlag := fs.String("horizons", "", "comma-separated horizons, e.g. 24h,72h (default: configured set)")
	asOfFlag := fs.String("as-of", "", "score as of this RFC3339 time (default: now)")
	anomaly := fs.Bool("anomaly", true, "include the anomaly score")
	factors := fs.Bool("factors", true, "include ranked contributing factors")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: yobou score [flags] <machine-id>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	req := &models.ScoreRequest{
		MachineID:      fs.Arg(0),
		IncludeAnomaly: *anomaly,
		IncludeFactors: *factors,
	}
	if *horizonsFlag != "" {
		req.Horizons = strings.Split(*horizonsFlag, ",")
	}
	if *asOfFlag != "" {
		asOf, err := time.Parse(time.RFC3339, *asOfFlag)
		if err != nil {
			fmt.Printf("Invalid --as-of: %v\n", err)
			os.Exit(1)
		}
		req.AsOf = asOf
	}

	var result *scoring.Result
	if *serverURL != "" {
		result, err = postJSON[scoring.Result](*serverURL+"/api/v1/predict", req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scoring failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components := mustInitialize(*configPath)
		defer components.Close()
		result, err = components.Orchestrator.Score(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Scoring failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteScoreResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage)")
	topK := fs.Int("top-k", 0, "candidate chunks to consider (default: configured)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: yobou ask [flags] <question>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	// Join positional args so multi-word questions work without quotes.
	req := &models.AskRequest{
		Question: strings.TrimSpace(strings.Join(fs.Args(), " ")),
		TopK:     *topK,
	}

	var answer *models.Answer
	if *serverURL != "" {
		answer, err = postJSON[models.Answer](*serverURL+"/api/v1/chat", req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components := mustInitialize(*configPath)
		defer components.Close()
		answer, err = components.Retrieval.Ask(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: yobou index [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components := mustInitialize(*configPath)
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Indexer.IndexDirectory(ctx, path, components.Config.Watch.Extensions)
		if err != nil {
			fmt.Printf("Indexing directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d file(s) from %s\n", n, path)
	} else {
		if err := components.Indexer.IndexFile(ctx, path, nil); err != nil {
			fmt.Printf("Indexing failed: %v\n", err)
			os.Exit(1)
		}
		absPath, _ := filepath.Abs(path)
		fmt.Printf("Manual indexed: %s\n", indexer.FileDocID(absPath))
	}
	if components.Config.Storage.VectorIndexPath != "" {
		if err := components.VectorIndex.Save(components.Config.Storage.VectorIndexPath); err != nil {
			fmt.Printf("Vector index save failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: yobou ingest [flags] <readings.csv|readings.xlsx>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	var readings []models.Reading
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		readings, err = ingest.ReadXLSX(f)
	default:
		readings, err = ingest.ReadCSV(f)
	}
	if err != nil {
		fmt.Printf("Failed to parse readings: %v\n", err)
		os.Exit(1)
	}

	components := mustInitialize(*configPath)
	defer components.Close()

	inserted, err := components.Storage.InsertReadings(context.Background(), readings)
	if err != nil {
		fmt.Printf("Insert failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d reading(s) (%d new) from %s\n", len(readings), inserted, path)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status := map[string]interface{}{}
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Decode failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components := mustInitialize(*configPath)
		defer components.Close()
		ctx := context.Background()
		readings, _ := components.Storage.CountReadings(ctx)
		machines, _ := components.Storage.ListMachines(ctx)
		docs, _ := components.Storage.CountDocuments(ctx)
		chunks, _ := components.Storage.CountChunks(ctx)
		status["readings"] = readings
		status["machines"] = len(machines)
		status["documents"] = docs
		status["chunks"] = chunks
		status["horizons"] = components.Bundle.Horizons()
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	for _, key := range []string{"readings", "machines", "documents", "chunks", "horizons", "disk_usage_bytes"} {
		if v, ok := status[key]; ok {
			fmt.Printf("%-18s %v\n", key+":", v)
		}
	}
}

// postJSON posts body to url and decodes the JSON response into T.
func postJSON[T any](url string, body interface{}) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Components holds initialized services.
type Components struct {
	Config       *config.Config
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.Index
	KeywordIndex keyword.Index
	Bundle       *artifact.Bundle
	Orchestrator *scoring.Orchestrator
	Retrieval    *retrieval.Engine
	Indexer      *indexer.Indexer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

// mustInitialize loads config and builds the full component graph, exiting on
// failure. Used by the direct-storage subcommands.
func mustInitialize(configPath string) *Components {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	embedder, err := embedding.New(&cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	vectorIndex, err := vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("initialize keyword index: %w", err)
	}

	bundle, err := artifact.Load(cfg.Storage.ArtifactDir, cfg.Scoring.Horizons, logger)
	if err != nil {
		return nil, fmt.Errorf("load model artifacts: %w", err)
	}
	logger.Info("model artifacts loaded", zap.Strings("horizons", bundle.Horizons()))

	orchestrator := scoring.NewOrchestrator(store, bundle, &cfg.Features, &cfg.Scoring,
		scoring.WithLogger(logger))
	engine := retrieval.NewEngine(store, embedder, vectorIndex, keywordIndex, &cfg.Retrieval,
		retrieval.WithLogger(logger))
	idx := indexer.NewIndexer(store, embedder, vectorIndex, keywordIndex, &cfg.Retrieval,
		extract.NewExtractor(), indexer.WithLogger(logger))

	return &Components{
		Config:       cfg,
		Storage:      store,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Bundle:       bundle,
		Orchestrator: orchestrator,
		Retrieval:    engine,
		Indexer:      idx,
	}, nil
}

func printUsage() {
	fmt.Println(`yobou - Machine health scoring and manual retrieval

Usage:
  yobou server [flags]              Start the HTTP server
  yobou score [flags] <machine-id>  Score a machine's failure risk
  yobou ask [flags] <question>      Answer a question from the manuals
  yobou index [flags] <path>        Index a manual file or directory
  yobou ingest [flags] <file>       Ingest sensor readings (CSV or XLSX)
  yobou status [flags]              Show storage and model status
  yobou version                     Show version
  yobou help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/yobou/config.yaml)
  --debug            Enable debug logging

Score Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --horizons string  Comma-separated horizons, e.g. 24h,72h (default: configured set)
  --as-of string     Score as of this RFC3339 time (default: now)
  --anomaly          Include the anomaly score (default: true)
  --factors          Include ranked contributing factors (default: true)
  --output string    Output format: text or json (default: text)

Ask Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --top-k int        Candidate chunks to consider
  --output string    Output format: text or json (default: text)

Examples:
  yobou server
  yobou score cnc-12
  yobou score --horizons 24h --as-of 2025-06-01T12:00:00Z press-3
  yobou ask "How often should the spindle bearing be replaced?"
  yobou ingest readings.csv
  yobou index ./manuals
  yobou status --output json`)
}
