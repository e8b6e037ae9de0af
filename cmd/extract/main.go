package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ksred/holdings-ingest/internal/batch"
	"github.com/ksred/holdings-ingest/internal/config"
	"github.com/ksred/holdings-ingest/internal/database"
	"github.com/ksred/holdings-ingest/internal/extract"
	"github.com/ksred/holdings-ingest/internal/filings"
	"github.com/ksred/holdings-ingest/internal/resolver"
)

// init configures the logger for the CLI with pretty printing to stderr so
// stdout stays clean JSON
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

type options struct {
	accession string
	write     bool
	strategy  string
	chunkSize int
}

// output is what the CLI prints for one document.
type output struct {
	File     string            `json:"file"`
	Strategy string            `json:"strategy"`
	Attempts []attemptOutput   `json:"attempts"`
	Count    int               `json:"count"`
	Holdings []extract.Holding `json:"holdings"`
	Written  *int              `json:"written,omitempty"`
}

type attemptOutput struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error,omitempty"`
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "extract <information-table.xml>",
		Short: "Extract 13F holdings from a local information table document",
		Long: "Runs the holdings extractor on a local file and prints the holdings as JSON.\n" +
			"With --write and --accession the holdings are stored against an existing filing.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), stdout, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.accession, "accession", "", "accession number of the filing to attach holdings to")
	flags.BoolVar(&opts.write, "write", false, "persist the holdings (requires --accession)")
	flags.StringVar(&opts.strategy, "strategy", "", "force a single strategy: structural or permissive")
	flags.IntVar(&opts.chunkSize, "chunk-size", batch.DefaultChunkSize, "rows per write transaction")
	return cmd
}

func run(ctx context.Context, stdout io.Writer, path string, opts *options) error {
	if opts.write && opts.accession == "" {
		return errors.New("--write requires --accession")
	}

	extractor, err := newExtractor(opts.strategy)
	if err != nil {
		return err
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := extractor.Extract(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	out := output{
		File:     path,
		Strategy: result.Strategy,
		Count:    len(result.Holdings),
		Holdings: result.Holdings,
	}
	for _, a := range result.Attempts {
		ao := attemptOutput{Strategy: a.Strategy}
		if a.Err != nil {
			ao.Error = a.Err.Error()
		}
		out.Attempts = append(out.Attempts, ao)
	}

	if opts.write {
		written, err := write(ctx, opts, result.Holdings)
		if err != nil {
			return err
		}
		out.Written = &written
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newExtractor(strategy string) (*extract.Extractor, error) {
	switch strategy {
	case "":
		return extract.New(), nil
	case "structural":
		return extract.NewWithStrategies(extract.Structural{}), nil
	case "permissive":
		return extract.NewWithStrategies(extract.Permissive{}), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

// write stores holdings against an existing filing row.
func write(ctx context.Context, opts *options, holdings []extract.Holding) (int, error) {
	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return 0, err
	}

	log.Info().Str("database", dbCfg.Redacted()).Msg("Connecting to database")
	db, err := database.NewDatabase(dbCfg, false)
	if err != nil {
		return 0, fmt.Errorf("initialize database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	store := filings.NewDatabase(db)
	filing, err := store.GetFilingByAccession(ctx, opts.accession)
	if err != nil {
		return 0, err
	}

	ids, err := resolver.New(db, resolver.DefaultCacheSize)
	if err != nil {
		return 0, err
	}
	writer := batch.NewWriter(ids, batch.NewGormLoader(db, 0), opts.chunkSize, time.Minute)

	written, err := writer.Write(ctx, filing.ID, holdings)
	if err != nil {
		return written, err
	}
	log.Info().
		Str("accession", opts.accession).
		Uint("filing_id", filing.ID).
		Int("written", written).
		Msg("Holdings stored")
	return written, nil
}
