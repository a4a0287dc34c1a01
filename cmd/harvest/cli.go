package main

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/crawl"
	harvesthttp "github.com/fwojciec/harvest/http"
	"github.com/fwojciec/harvest/ingest"
	"github.com/fwojciec/harvest/ollama"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx          context.Context
	Stdout       io.Writer
	Stderr       io.Writer
	Logger       *slog.Logger
	StorePath    string
	Store        harvest.DocumentStore
	Embedder     harvest.Embedder
	TokenCounter harvest.TokenCounter
	Sitemaps     harvest.SitemapService
	Collector    *crawl.Collector
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config  kong.ConfigFlag `help:"Load flag values from a TOML file" type:"path"`
	Verbose bool            `short:"v" help:"Enable debug logging"`

	Store     string `default:"harvest" env:"HARVEST_STORE" help:"Store path prefix (<prefix>.index and <prefix>.sqlite)"`
	Dimension int    `default:"768" env:"HARVEST_DIMENSION" help:"Embedding dimension for a new store"`
	Metric    string `default:"cosine" enum:"cosine,inner_product" env:"HARVEST_METRIC" help:"Similarity metric for a new store"`

	Embedder     string `default:"ollama" enum:"gemini,openai,ollama" env:"HARVEST_EMBEDDER" help:"Embedding provider"`
	EmbedModel   string `env:"HARVEST_EMBED_MODEL" help:"Embedding model name (provider default if empty)"`
	GeminiAPIKey string `env:"GEMINI_API_KEY" help:"Gemini API key"`
	OpenAIAPIKey string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"OpenAI API key"`
	OllamaURL    string `env:"OLLAMA_URL" default:"${ollama_url}" help:"Ollama server URL"`

	Ingest IngestCmd `cmd:"" help:"Ingest articles from JSON or JSON Lines files"`
	Fetch  FetchCmd  `cmd:"" help:"Collect articles from a site's sitemap or listing page and ingest them"`
	Search SearchCmd `cmd:"" help:"Search the store by meaning"`
	Recent RecentCmd `cmd:"" help:"List recently published documents"`
	Stats  StatsCmd  `cmd:"" help:"Show store statistics"`
	Serve  ServeCmd  `cmd:"" help:"Serve the JSON query API"`
}

// PipelineFlags configures pacing and retries for ingestion.
type PipelineFlags struct {
	Delay      time.Duration `default:"${delay}" help:"Minimum interval between articles"`
	MaxRetries int           `default:"${max_retries}" help:"Embedding retries per article"`
	BaseDelay  time.Duration `default:"${base_delay}" help:"Backoff before the first retry"`
	MaxDelay   time.Duration `default:"${max_delay}" help:"Backoff cap (0 for none)"`
	Report     string        `type:"path" help:"Write the run report as JSON to this file"`
}

// PipelineConfig returns the ingest configuration the flags describe.
func (f PipelineFlags) PipelineConfig() ingest.Config {
	return ingest.Config{
		Delay:      f.Delay,
		MaxRetries: f.MaxRetries,
		BaseDelay:  f.BaseDelay,
		MaxDelay:   f.MaxDelay,
	}
}

// IngestCmd is the "ingest" subcommand.
type IngestCmd struct {
	Files []string `arg:"" type:"existingfile" help:"Article files"`

	PipelineFlags `embed:""`
}

// FetchCmd is the "fetch" subcommand.
type FetchCmd struct {
	URL         string        `arg:"" help:"Site or section URL"`
	Channel     string        `help:"Channel recorded on collected articles"`
	Module      string        `help:"Module recorded on collected articles"`
	Filter      []string      `short:"F" help:"Only collect URLs matching regex (repeatable)"`
	Exclude     []string      `short:"x" help:"Skip URLs matching regex (repeatable)"`
	Since       string        `help:"Skip sitemap entries last modified before this date"`
	Listing     bool          `short:"l" help:"Treat URL as a channel listing page instead of a sitemap root"`
	Preview     bool          `short:"p" help:"Show URLs without fetching"`
	Concurrency int           `short:"c" default:"4" help:"Concurrent fetch limit"`
	RPS         float64       `name:"rps" default:"1" help:"Requests per second per host (0 for unlimited)"`
	Timeout     time.Duration `default:"10s" help:"Per-request timeout"`
	UserAgent   string        `default:"${user_agent}" help:"User-Agent header"`

	PipelineFlags `embed:""`
}

// SearchCmd is the "search" subcommand.
type SearchCmd struct {
	Query    string  `arg:"" help:"Query text"`
	TopK     int     `short:"k" default:"5" help:"Number of results"`
	Start    string  `help:"Earliest publish date"`
	End      string  `help:"Latest publish date (a bare date covers the whole day)"`
	MinScore float32 `help:"Drop results scoring below this value"`
	Content  bool    `help:"Print document content"`
	JSON     bool    `name:"json" help:"Print results as JSON"`
}

// RecentCmd is the "recent" subcommand.
type RecentCmd struct {
	Days  int  `default:"7" help:"Number of days back from today"`
	Limit int  `default:"20" help:"Maximum documents to list"`
	JSON  bool `name:"json" help:"Print documents as JSON"`
}

// StatsCmd is the "stats" subcommand.
type StatsCmd struct {
	JSON bool `name:"json" help:"Print statistics as JSON"`
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	Addr string `default:"127.0.0.1:8080" env:"HARVEST_ADDR" help:"Listen address"`
}

// NewParser builds the kong parser for cli, binding deps for command Run methods.
// Flags may also be set from a TOML file given with --config.
func NewParser(cli *CLI, deps *Dependencies, stdout, stderr io.Writer) (*kong.Kong, error) {
	defaults := ingest.DefaultConfig()
	return kong.New(cli,
		kong.Name("harvest"),
		kong.Description("Collect, embed and search scraped articles"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
		kong.Configuration(TOMLConfig),
		kong.Vars{
			"delay":       defaults.Delay.String(),
			"max_retries": strconv.Itoa(defaults.MaxRetries),
			"base_delay":  defaults.BaseDelay.String(),
			"max_delay":   defaults.MaxDelay.String(),
			"user_agent":  harvesthttp.DefaultUserAgent,
			"ollama_url":  ollama.DefaultURL,
		},
	)
}
