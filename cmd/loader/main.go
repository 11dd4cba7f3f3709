package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"covid_dashboard/internal/config"
	"covid_dashboard/internal/data"
	"covid_dashboard/internal/export"
	"covid_dashboard/internal/loader"
)

var errOverwriteRefused = errors.New("output exists, pass -y to overwrite")

type options struct {
	output          string
	variants        string
	acceptOverwrite bool
	xlsx            string
	postgres        bool
	debug           bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:           "loader",
		Short:         "Download the upstream COVID-19 datasets and write the merged dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "data.csv", "records CSV to write")
	cmd.Flags().StringVar(&opts.variants, "variants", "variants.csv", "variants CSV to write, empty to skip")
	cmd.Flags().BoolVarP(&opts.acceptOverwrite, "accept-overwrite", "y", false, "overwrite an existing output without asking")
	cmd.Flags().StringVar(&opts.xlsx, "xlsx", "", "also write the dataset as a spreadsheet")
	cmd.Flags().BoolVar(&opts.postgres, "postgres", false, "also save the dataset to DATABASE_URL")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("loader failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdin *os.File, stdout io.Writer) error {
	level := slog.LevelInfo
	if opts.debug || config.DebugRequested() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if _, err := os.Stat(opts.output); err == nil && !opts.acceptOverwrite {
		if !term.IsTerminal(int(stdin.Fd())) {
			return errOverwriteRefused
		}
		ok, err := confirm(stdin, stdout, fmt.Sprintf("%s already exists, overwrite? (Y/n) ", opts.output))
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("keeping existing dataset", "file", opts.output)
			return nil
		}
	}

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fetcherCfg := loader.DefaultFetcherConfig()
	fetcherCfg.Logger = logger
	if cfg.Data.SourceTimeout > 0 {
		fetcherCfg.Timeout = cfg.Data.SourceTimeout
	}

	sources := loader.DefaultSources()
	logger.Info("downloading datasets", "sources", sources.String())

	pipeline := loader.NewPipeline(&loader.PipelineConfig{
		Sources: sources,
		Fetcher: loader.NewFetcher(fetcherCfg),
		Logger:  logger,
	})
	ds, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	stores := data.MultiStore{data.NewFileStore(opts.output, opts.variants, logger)}
	if opts.postgres {
		if cfg.Database.URL == "" {
			return errors.New("--postgres needs DATABASE_URL")
		}
		pool, err := config.NewPool(ctx, cfg.Database.DBConfig(logger))
		if err != nil {
			return err
		}
		defer pool.Close()

		pg := data.NewPostgresStore(pool, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		stores = append(stores, pg)
	}
	if err := stores.Save(ctx, ds); err != nil {
		return err
	}

	if opts.xlsx != "" {
		if err := writeWorkbook(opts.xlsx, ds); err != nil {
			return err
		}
	}

	logger.Info("dataset written",
		"file", opts.output,
		"records", len(ds.Records),
		"variants", len(ds.Variants),
		"countries", len(ds.Countries()),
	)
	return nil
}

// confirm reads one answer line. Anything but "n" proceeds.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	return !strings.EqualFold(strings.TrimSpace(line), "n"), nil
}

func writeWorkbook(path string, ds *data.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.WriteWorkbook(f, ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
