// Command ingestctl ingests one PDF or a directory of PDFs into the corpus.
// Batch runs honor cancellation at document boundaries: an interrupt stops
// before the next file, never mid-document.
//
//	ingestctl -config config.yaml -category "RPG" ./pdfs/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"mcpress/internal/config"
	"mcpress/internal/ingest"
	"mcpress/internal/observability"
	"mcpress/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	category := flag.String("category", "", "category applied to every ingested document")
	docType := flag.String("type", "", "document type override: book or article")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ingestctl [flags] <pdf-or-directory>")
		os.Exit(2)
	}
	target := flag.Arg(0)

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.Logging.File, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.ConnectionString)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database connection string")
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database pool")
	}
	defer pool.Close()

	p, err := pipeline.New(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to assemble pipeline")
	}

	files, err := collectPDFs(target)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to enumerate input")
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no PDF files found")
		os.Exit(1)
	}

	var ov *ingest.Overrides
	if *category != "" || *docType != "" {
		ov = &ingest.Overrides{Category: *category, DocumentType: *docType}
	}

	ok, failed := 0, 0
	for _, path := range files {
		// Document-boundary cancellation: check between files only.
		if ctx.Err() != nil {
			log.Info().Int("remaining", len(files)-ok-failed).Msg("batch cancelled")
			break
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error().Str("path", path).Err(err).Msg("read failed")
			failed++
			continue
		}
		res, err := p.Ingest(context.WithoutCancel(ctx), filepath.Base(path), data, ov)
		if err != nil {
			log.Error().Str("path", path).Err(err).Msg("ingest failed")
			failed++
			continue
		}
		fmt.Printf("%s: %d chunks, %d pages, authors: %s\n",
			filepath.Base(path), res.ChunksCreated, res.Pages, strings.Join(res.Authors, ", "))
		ok++
	}
	fmt.Printf("done: %d ingested, %d failed\n", ok, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func collectPDFs(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{target}, nil
	}
	var files []string
	err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
