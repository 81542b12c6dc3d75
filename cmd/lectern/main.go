// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/lectern"
	"github.com/poiesic/lectern/api"
	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/ingestion"
	"github.com/urfave/cli/v2"
)

// libraryOptions are appended to every lectern.Open call.
var libraryOptions []lectern.Option

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "lectern",
		Usage:     "Ask questions about your documents",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "lectern.yaml",
				EnvVars: []string{"LECTERN_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a file or URL and wait until it is ready",
				ArgsUsage: "<file|url>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "Content type (PDF, HTML, TEXT, URL); detected from the source when empty",
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Chunk strategy (fixed, overlapping, semantic)",
						Value: string(core.ChunkSemantic),
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Document title (defaults to the file name)",
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show the ingestion status of a document",
				ArgsUsage: "<document-id>",
				Action:    statusCommand,
			},
			{
				Name:   "documents",
				Usage:  "List documents, newest first",
				Action: documentsCommand,
			},
			{
				Name:      "query",
				Usage:     "Ask a question about a document",
				ArgsUsage: "<document-id> <question>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max-results",
						Usage: "Number of passages to retrieve (0 uses the configured value)",
					},
					&cli.Float64Flag{
						Name:  "temperature",
						Usage: "Sampling temperature (negative uses the configured value)",
						Value: -1,
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Print retrieved passages and the prompt",
					},
				},
			},
			{
				Name:      "ask-selection",
				Usage:     "Ask a question about a piece of text",
				ArgsUsage: "<question>",
				Action:    askSelectionCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "text",
						Usage: "Selected text",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "Read the selected text from a file (- for stdin)",
					},
					&cli.Float64Flag{
						Name:  "temperature",
						Usage: "Sampling temperature (negative uses the configured value)",
						Value: -1,
					},
				},
			},
			{
				Name:      "crawl",
				Usage:     "Ingest every page of a site or sitemap, resuming earlier runs",
				ArgsUsage: "<root-url>",
				Action:    crawlCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed all stored passages into the vector index",
				Action: reembedCommand,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (defaults to server.address)",
					},
				},
			},
			{
				Name:      "init-config",
				Usage:     "Write the default configuration to a file",
				ArgsUsage: "<path>",
				Action:    initConfigCommand,
			},
		},
	}
}

// openLibrary loads the configuration named by --config and opens it.
func openLibrary(c *cli.Context) (*lectern.Library, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	opts := append([]lectern.Option{lectern.WithLogger(slog.Default())}, libraryOptions...)
	if c.Bool("verbose") {
		opts = append(opts, lectern.WithQueryMonitor(newVerboseMonitor(c.App.ErrWriter)))
	}
	lib, err := lectern.Open(c.Context, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	return lib, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// detectContentType guesses the content type from a source name.
func detectContentType(source string) core.ContentType {
	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return core.ContentTypeURL
	case strings.HasSuffix(lower, ".pdf"):
		return core.ContentTypePDF
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return core.ContentTypeHTML
	default:
		return core.ContentTypeText
	}
}

func ingestCommand(c *cli.Context) error {
	source := c.Args().First()
	if source == "" {
		return fmt.Errorf("a file or URL is required")
	}

	contentType := core.ContentType(strings.ToUpper(c.String("type")))
	if contentType == "" {
		contentType = detectContentType(source)
	}

	req := &ingestion.Request{
		Title:         c.String("title"),
		Source:        source,
		ContentType:   contentType,
		ChunkStrategy: core.ChunkStrategy(strings.ToLower(c.String("strategy"))),
	}
	if contentType != core.ContentTypeURL {
		data, err := os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", source, err)
		}
		req.Content = data
		req.Source = filepath.Base(source)
	}

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	doc, err := lib.IngestDocument(ctx, req)
	if doc != nil {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%d/%d chunks\n", doc.Id, doc.Status, doc.ProcessedChunks, doc.TotalChunks)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	id, err := core.ParseID(c.Args().First())
	if err != nil {
		return err
	}

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	report, err := lib.Status(c.Context, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s\t%s\t%d/%d chunks\n", report.DocumentId, report.Status, report.ProcessedChunks, report.TotalChunks)
	if report.Error != "" {
		fmt.Fprintf(c.App.Writer, "error: %s\n", report.Error)
	}
	return nil
}

func documentsCommand(c *cli.Context) error {
	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	docs, err := lib.Documents(c.Context)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tSTATUS\tCHUNKS\tINSERTED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			d.Id, d.Title, d.ContentType, d.Status, d.ProcessedChunks, d.TotalChunks,
			d.InsertedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func queryCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("a document id and a question are required")
	}
	id, err := core.ParseID(c.Args().First())
	if err != nil {
		return err
	}
	question := strings.Join(c.Args().Tail(), " ")

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	q := lib.NewFullQuery(id, question)
	if n := c.Int("max-results"); n > 0 {
		q.MaxResults = n
	}
	if t := c.Float64("temperature"); t >= 0 {
		q.Temperature = t
	}

	answer, err := lib.QueryFull(c.Context, q)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, answer.Text)
	if len(answer.Citations) > 0 {
		fmt.Fprintln(c.App.Writer)
		for i, cite := range answer.Citations {
			fmt.Fprintf(c.App.Writer, "[%d] (%.3f) %s\n", i+1, cite.Score, cite.Preview)
		}
	}
	slog.Debug("query answered", "latency", answer.Latency, "tokens", answer.Tokens)
	return nil
}

func askSelectionCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("a question is required")
	}

	selected := c.String("text")
	if path := c.String("file"); path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return fmt.Errorf("failed to read selection: %w", err)
		}
		selected = string(data)
	}

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	temperature := lib.Config().Query.Temperature
	if t := c.Float64("temperature"); t >= 0 {
		temperature = t
	}

	answer, err := lib.QuerySelected(c.Context, selected, question, temperature)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, answer.Text)
	return nil
}

func crawlCommand(c *cli.Context) error {
	root := c.Args().First()
	if root == "" {
		return fmt.Errorf("a root URL is required")
	}

	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	report, err := lib.Crawl(ctx, root, c.App.ErrWriter)
	if report != nil {
		fmt.Fprintf(c.App.Writer, "discovered %d, already settled %d, ingested %d, failed %d\n",
			report.Discovered, report.AlreadySettled, len(report.Documents), len(report.Failed))
		for u, msg := range report.Failed {
			fmt.Fprintf(c.App.Writer, "failed: %s: %s\n", u, msg)
		}
	}
	return err
}

func reembedCommand(c *cli.Context) error {
	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx, cancel := signalContext(c.Context)
	defer cancel()

	_, err = lib.Reembed(ctx, c.App.ErrWriter)
	return err
}

func serveCommand(c *cli.Context) error {
	lib, err := openLibrary(c)
	if err != nil {
		return err
	}
	defer lib.Close()

	cfg := lib.Config()
	addr := c.String("addr")
	if addr == "" {
		addr = cfg.Server.Address
	}

	server, err := api.NewServer(lib,
		api.WithLogger(slog.Default()),
		api.WithMaxBodyBytes(cfg.Ingestion.MaxSizeBytes),
		api.WithQueryDefaults(cfg.Query.MaxResults, cfg.Query.Temperature),
	)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Context)
	defer cancel()
	return server.ListenAndServe(ctx, addr)
}

func initConfigCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("a destination path is required")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
