// Command mcpress answers questions against the ingested corpus. It is the
// reference caller of the core: it loads configuration, wires the pipeline,
// and streams one answer per invocation.
//
//	mcpress -config config.yaml "How do I journal a physical file?"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"mcpress/internal/answer"
	"mcpress/internal/config"
	"mcpress/internal/observability"
	"mcpress/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	deadline := flag.Duration("deadline", 2*time.Minute, "per-question deadline")
	migrate := flag.Bool("migrate-authors", false, "run the legacy author migration and exit")
	flag.Parse()

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

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	if *migrate {
		rep, err := p.MigrateLegacyAuthors(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		fmt.Printf("migrated %d/%d books (%d skipped)\n", rep.BooksMigrated, rep.BooksSeen, rep.BooksSkipped)
		for _, v := range rep.Violations {
			fmt.Printf("  violation: %s\n", v)
		}
		return
	}

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "usage: mcpress [-config config.yaml] \"question\"")
		os.Exit(2)
	}

	qctx, cancel := context.WithTimeout(ctx, *deadline)
	defer cancel()
	reqID := uuid.NewString()
	log.Info().Str("request_id", reqID).Str("question", question).Msg("answering")

	for ev := range p.Answer(qctx, question) {
		switch ev.Type {
		case answer.EventToken:
			fmt.Print(ev.Content)
		case answer.EventDone:
			fmt.Println()
			printSources(ev.Sources)
		case answer.EventError:
			fmt.Fprintf(os.Stderr, "\nerror (%s): %s\n", ev.Kind, ev.Message)
			os.Exit(1)
		}
	}
}

func printSources(sources []answer.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	out, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(out))
}
