// Package main is the Naosu CLI entry point.
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
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/naosu/internal/access"
	"github.com/hyperjump/naosu/internal/cli"
	"github.com/hyperjump/naosu/internal/config"
	"github.com/hyperjump/naosu/internal/evaluation"
	"github.com/hyperjump/naosu/internal/history"
	"github.com/hyperjump/naosu/internal/metrics"
	"github.com/hyperjump/naosu/internal/models"
	"github.com/hyperjump/naosu/internal/queue"
	"github.com/hyperjump/naosu/internal/review"
	"github.com/hyperjump/naosu/internal/server"
	"github.com/hyperjump/naosu/internal/storage"
	"github.com/hyperjump/naosu/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/naosu/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "naosu server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
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
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "queue":
		runQueue()
	case "versions":
		runVersions()
	case "evaluate":
		runEvaluate()
	case "decide":
		runDecide()
	case "rollback":
		runRollback()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("naosu version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
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
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(
		components.Store,
		components.Ledger,
		components.Queue,
		components.History,
		components.Review,
		components.Access,
		cfg,
		logger,
		components.Metrics,
		components.Registry,
	)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	cfgWatcher := config.NewWatcher(resolvedConfigPath, logger, srv.UpdateConfig)
	if err := cfgWatcher.Start(watchCtx); err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	} else {
		defer cfgWatcher.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runQueue() {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage)")
	sortBy := fs.String("sort-by", "created_at", "sort key: created_at, consensus, evaluation_count, resolved_at")
	order := fs.String("order", "desc", "sort order: asc or desc")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: naosu queue [flags] <document-id>")
		os.Exit(1)
	}
	documentID := fs.Arg(0)
	format := parseOutputFormat(*outputFormat)

	var items []*models.PendingReplacement
	if *serverURL != "" {
		url := fmt.Sprintf("%s/api/v1/documents/%s/queue?sort_by=%s&order=%s",
			*serverURL, documentID, *sortBy, *order)
		var out struct {
			Items []*models.PendingReplacement `json:"items"`
		}
		if err := getJSON(url, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Queue listing failed: %v\n", err)
			os.Exit(1)
		}
		items = out.Items
	} else {
		components := mustInitDirect(*configPath)
		defer components.Close()
		var err error
		items, err = components.Queue.List(context.Background(), documentID, *sortBy, *order)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Queue listing failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteQueueItems(os.Stdout, items, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runVersions() {
	fs := flag.NewFlagSet("versions", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage)")
	page := fs.Int("page", 1, "page number (1-based)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: naosu versions [flags] <paragraph-id>")
		os.Exit(1)
	}
	paragraphID := fs.Arg(0)
	format := parseOutputFormat(*outputFormat)

	var listing models.VersionListing
	if *serverURL != "" {
		url := fmt.Sprintf("%s/api/v1/paragraphs/%s/versions?page=%d", *serverURL, paragraphID, *page)
		if err := getJSON(url, &listing); err != nil {
			fmt.Fprintf(os.Stderr, "Version listing failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components := mustInitDirect(*configPath)
		defer components.Close()
		got, err := components.History.List(context.Background(), paragraphID, *page)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Version listing failed: %v\n", err)
			os.Exit(1)
		}
		listing = *got
	}
	if err := cli.WriteVersionListing(os.Stdout, &listing, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runEvaluate() {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	actorID := fs.String("actor", "", "acting user id (required)")
	actorRole := fs.String("role", "viewer", "acting user role")
	withdraw := fs.Bool("withdraw", false, "withdraw the vote instead of casting one")
	_ = fs.Parse(os.Args[2:])

	if *actorID == "" {
		fmt.Println("--actor is required")
		os.Exit(1)
	}

	if *withdraw {
		if fs.NArg() < 1 {
			fmt.Println("Usage: naosu evaluate --withdraw --actor <id> <suggestion-id>")
			os.Exit(1)
		}
		var result evaluation.Result
		err := doJSON(http.MethodDelete, *serverURL+"/api/v1/evaluations/"+fs.Arg(0),
			nil, *actorID, *actorRole, &result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Withdraw failed: %v\n", err)
			os.Exit(1)
		}
		printLedgerResult(&result)
		return
	}

	if fs.NArg() < 2 {
		fmt.Println("Usage: naosu evaluate --actor <id> <suggestion-id> <agree|disagree>")
		os.Exit(1)
	}
	value := 0
	switch fs.Arg(1) {
	case "agree", "+1", "1":
		value = evaluation.Agree
	case "disagree", "-1":
		value = evaluation.Disagree
	default:
		fmt.Printf("Unknown evaluation %q; use agree or disagree\n", fs.Arg(1))
		os.Exit(1)
	}

	var result evaluation.Result
	err := doJSON(http.MethodPost, *serverURL+"/api/v1/evaluations",
		map[string]interface{}{"suggestion_id": fs.Arg(0), "value": value},
		*actorID, *actorRole, &result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Evaluation failed: %v\n", err)
		os.Exit(1)
	}
	printLedgerResult(&result)
}

func printLedgerResult(result *evaluation.Result) {
	fmt.Printf("suggestion:  %s\n", result.SuggestionID)
	fmt.Printf("agree:       %d\n", result.AgreeCount)
	fmt.Printf("disagree:    %d\n", result.DisagreeCount)
	fmt.Printf("consensus:   %.4f\n", result.Consensus)
}

func runDecide() {
	fs := flag.NewFlagSet("decide", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	actorID := fs.String("actor", "", "acting admin id (required)")
	actorRole := fs.String("role", "admin", "acting user role")
	notes := fs.String("notes", "", "decision notes (required for reject)")
	editedText := fs.String("edited-text", "", "admin-edited replacement text (approve only)")
	_ = fs.Parse(os.Args[2:])

	if *actorID == "" {
		fmt.Println("--actor is required")
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fmt.Println("Usage: naosu decide --actor <id> <queue-id> <approve|reject>")
		os.Exit(1)
	}
	queueID, action := fs.Arg(0), fs.Arg(1)
	if action != "approve" && action != "reject" {
		fmt.Printf("Unknown action %q; use approve or reject\n", action)
		os.Exit(1)
	}

	var item models.PendingReplacement
	err := doJSON(http.MethodPost, *serverURL+"/api/v1/queue/"+queueID+"/decision",
		map[string]string{"action": action, "notes": *notes, "admin_edited_text": *editedText},
		*actorID, *actorRole, &item)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Decision failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Queue item %s is now %s\n", item.ID, item.Status)
}

func runRollback() {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	actorID := fs.String("actor", "", "acting owner id (required)")
	actorRole := fs.String("role", "owner", "acting user role")
	notes := fs.String("notes", "", "rollback notes")
	_ = fs.Parse(os.Args[2:])

	if *actorID == "" {
		fmt.Println("--actor is required")
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fmt.Println("Usage: naosu rollback --actor <id> <paragraph-id> <version>")
		os.Exit(1)
	}
	targetVersion, err := strconv.Atoi(fs.Arg(1))
	if err != nil || targetVersion < 1 {
		fmt.Printf("Invalid version %q\n", fs.Arg(1))
		os.Exit(1)
	}

	var p models.Paragraph
	err = doJSON(http.MethodPost, *serverURL+"/api/v1/paragraphs/"+fs.Arg(0)+"/rollback",
		map[string]interface{}{"version": targetVersion, "notes": *notes},
		*actorID, *actorRole, &p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Paragraph %s restored to version %d content (now at version %d)\n",
		p.ID, targetVersion, p.VersionNumber)
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Stats             *storage.Stats         `json:"stats"`
	Config            map[string]interface{} `json:"config,omitempty"`
	DatabaseSizeBytes int64                  `json:"database_size_bytes"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		components := mustInitDirect(*configPath)
		defer components.Close()
		stats, err := components.Store.Read().GetStats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Stats:             stats,
			DatabaseSizeBytes: storage.DatabaseSizeBytes(cfg.Storage.DatabasePath),
			Config: map[string]interface{}{
				"default_threshold": cfg.Review.DefaultThreshold,
				"min_evaluations":   cfg.Review.MinEvaluations,
				"database_path":     cfg.Storage.DatabasePath,
			},
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if status.Stats != nil {
			fmt.Printf("documents:      %d\n", status.Stats.Documents)
			fmt.Printf("paragraphs:     %d\n", status.Stats.Paragraphs)
			fmt.Printf("suggestions:    %d\n", status.Stats.Suggestions)
			fmt.Printf("evaluations:    %d\n", status.Stats.Evaluations)
			fmt.Printf("pending_items:  %d\n", status.Stats.PendingItems)
			fmt.Printf("history_rows:   %d\n", status.Stats.HistoryRows)
		}
		fmt.Printf("db_size_bytes:  %d\n", status.DatabaseSizeBytes)
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{"default_threshold", "min_evaluations", "history_page_size", "database_path"} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-19s %v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func parseOutputFormat(s string) cli.OutputFormat {
	switch s {
	case "json":
		return cli.OutputJSON
	case "text":
		return cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", s)
		os.Exit(1)
		return cli.OutputText
	}
}

func getJSON(url string, dst interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doJSON sends an authenticated mutation and decodes the response body.
func doJSON(method, url string, body interface{}, actorID, actorRole string, dst interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", actorID)
	req.Header.Set("X-Actor-Role", actorRole)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Store    *storage.Store
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Queue    *queue.Queue
	Ledger   *evaluation.Ledger
	History  *history.Store
	Access   access.Resolver
	Review   *review.Handler
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewWith(registry)

	q := queue.New(store, logger, m, cfg.Review.MinEvaluations, cfg.Review.DefaultThreshold)
	ledger := evaluation.New(store, logger, m, q)
	hist := history.New(store, logger, m, cfg.History.PageSize)
	resolver := access.NewRoleResolver(store)
	rev := review.New(store, hist, resolver, logger, m)

	return &Components{
		Store:    store,
		Metrics:  m,
		Registry: registry,
		Queue:    q,
		Ledger:   ledger,
		History:  hist,
		Access:   resolver,
		Review:   rev,
	}, nil
}

// mustInitDirect loads config and builds components for direct storage access
// (when the server is not running). Exits on failure.
func mustInitDirect(configPath string) *Components {
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

func printUsage() {
	fmt.Println(`naosu - Consensus-gated document revision server

Usage:
  naosu server [flags]                          Start the HTTP server
  naosu queue [flags] <document-id>             List a document's replacement queue
  naosu versions [flags] <paragraph-id>         List a paragraph's version history
  naosu evaluate [flags] <suggestion-id> <agree|disagree>
                                                Cast a vote on a suggestion
  naosu decide [flags] <queue-id> <approve|reject>
                                                Resolve a pending replacement
  naosu rollback [flags] <paragraph-id> <version>
                                                Restore a prior paragraph version
  naosu status [flags]                          Show store and review status
  naosu version                                 Show version
  naosu help                                    Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/naosu/config.yaml)
  --debug            Enable debug logging

Queue / Versions Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --config string    Config file path (for direct storage mode)
  --sort-by string   Queue sort key: created_at, consensus, evaluation_count, resolved_at
  --order string     Sort order: asc or desc (default: desc)
  --page int         Version history page, 1-based (default: 1)
  --output string    Output format: text or json (default: text)

Evaluate / Decide / Rollback Flags:
  --server string    Server URL (default: http://localhost:8080)
  --actor string     Acting user id (required)
  --role string      Acting user role (viewer, editor, admin, owner)
  --notes string     Decision or rollback notes (required for reject)
  --edited-text string  Admin-edited replacement text (approve only)
  --withdraw         With evaluate: withdraw the vote instead of casting

Examples:
  naosu server
  naosu queue doc-123 --sort-by consensus
  naosu versions para-42 --page 2
  naosu evaluate --actor u7 sug-9 agree
  naosu decide --actor adm1 q-15 approve --notes "reads better"
  naosu decide --actor adm1 q-16 reject --notes "changes the meaning"
  naosu rollback --actor owner1 para-42 3
  naosu status --output json`)
}
