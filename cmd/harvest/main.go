package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/crawl"
	"github.com/fwojciec/harvest/gemini"
	"github.com/fwojciec/harvest/goquery"
	harvesthttp "github.com/fwojciec/harvest/http"
	"github.com/fwojciec/harvest/ollama"
	"github.com/fwojciec/harvest/openai"
	"github.com/fwojciec/harvest/readability"
	harvestslog "github.com/fwojciec/harvest/slog"
	"github.com/fwojciec/harvest/store"
	"github.com/fwojciec/harvest/trafilatura"
	"github.com/joho/godotenv"
	"google.golang.org/genai"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env file is not an error.
	_ = godotenv.Load()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if harvest.ErrorCode(err) == harvest.EINTERNAL {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintln(os.Stderr, harvest.ErrorMessage(err))
		}
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Store opened for the current command.
	Store *store.Store

	// Embedder overrides the one selected by flags. Used for end-to-end testing.
	Embedder harvest.Embedder
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// Initialize dependencies struct for Kong binding
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := NewParser(cli, deps, stdout, stderr)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'harvest --help' to see available commands")
	}

	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cmd := kongCtx.Selected().Name

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	deps.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	deps.StorePath = cli.Store

	preview := cmd == "fetch" && cli.Fetch.Preview

	// Writers create the store on first use; readers refuse to start
	// without an intact one.
	switch {
	case preview:
	case cmd == "ingest" || cmd == "fetch":
		m.Store, err = store.Open(cli.Store, cli.Dimension, harvest.Metric(cli.Metric))
		if err != nil {
			if harvest.ErrorCode(err) == harvest.EDIMENSION {
				fmt.Fprintln(stderr, "Hint: --dimension and --metric must match the existing store")
			}
			return err
		}
	default:
		m.Store, err = store.Load(cli.Store)
		if err != nil {
			if harvest.ErrorCode(err) == harvest.ENOTFOUND {
				fmt.Fprintln(stderr, "Hint: run 'harvest ingest' first or set HARVEST_STORE")
			}
			return err
		}
	}
	if m.Store != nil {
		deps.Store = m.Store
	}

	if !preview && cmd != "recent" && cmd != "stats" {
		embedder, err := m.newEmbedder(ctx, cli)
		if err != nil {
			return err
		}
		deps.Embedder = harvestslog.NewLoggingEmbedder(embedder, deps.Logger)
	}

	if (cmd == "ingest" || cmd == "fetch") && cli.Embedder == "gemini" && m.Embedder == nil {
		tokenCounter, err := gemini.NewTokenCounter(gemini.DefaultTokenizerModel)
		if err != nil {
			return fmt.Errorf("failed to create token counter: %w", err)
		}
		deps.TokenCounter = tokenCounter
	}

	if cmd == "fetch" {
		sitemaps := harvesthttp.NewSitemapService(nil)
		sitemaps.UserAgent = cli.Fetch.UserAgent
		deps.Sitemaps = harvestslog.NewLoggingSitemapService(sitemaps, deps.Logger)

		fetcher := harvesthttp.NewFetcher(
			harvesthttp.WithTimeout(cli.Fetch.Timeout),
			harvesthttp.WithUserAgent(cli.Fetch.UserAgent),
		)
		defer fetcher.Close()

		deps.Collector = &crawl.Collector{
			Sitemaps:    deps.Sitemaps,
			Fetcher:     harvestslog.NewLoggingFetcher(fetcher, deps.Logger),
			Extractor:   trafilatura.NewExtractor(),
			Fallback:    readability.NewExtractor(),
			Links:       goquery.NewListingSelector(),
			Dates:       goquery.NewDateDetector(),
			RateLimiter: crawl.NewDomainLimiter(cli.Fetch.RPS),
			Concurrency: cli.Fetch.Concurrency,
			Logger:      deps.Logger,
		}
	}

	return kongCtx.Run(deps)
}

func (m *Main) newEmbedder(ctx context.Context, cli *CLI) (harvest.Embedder, error) {
	if m.Embedder != nil {
		return m.Embedder, nil
	}

	switch cli.Embedder {
	case "gemini":
		if cli.GeminiAPIKey == "" {
			return nil, harvest.Errorf(harvest.EINVALID, "GEMINI_API_KEY not set. Get a key at https://aistudio.google.com/apikey")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cli.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Gemini API: %w", err)
		}
		e := gemini.NewEmbedder(client)
		e.Dimension = cli.Dimension
		if cli.EmbedModel != "" {
			e.Model = cli.EmbedModel
		}
		return e, nil
	case "openai":
		if cli.OpenAIAPIKey == "" {
			return nil, harvest.Errorf(harvest.EINVALID, "OPENAI_API_KEY not set")
		}
		e := openai.NewEmbedder(cli.OpenAIAPIKey)
		e.Dimension = cli.Dimension
		if cli.EmbedModel != "" {
			e.Model = cli.EmbedModel
		}
		return e, nil
	default:
		e := ollama.NewEmbedder(cli.OllamaURL)
		if cli.EmbedModel != "" {
			e.Model = cli.EmbedModel
		}
		return e, nil
	}
}
