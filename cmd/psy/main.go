package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/raamana/psy/internal/archive"
	"github.com/raamana/psy/internal/cfg"
	"github.com/raamana/psy/internal/metrics"
	"github.com/raamana/psy/internal/monitor"
	"github.com/raamana/psy/internal/report"
	"github.com/raamana/psy/internal/tracker"
	"github.com/raamana/psy/results"
)

func main() {
	godotenv.Load() // a missing .env file is fine

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(settings.LogLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var cmdErr error
	switch os.Args[1] {
	case "inspect":
		cmdErr = runInspect(settings, os.Args[2:])
	case "report":
		cmdErr = runReport(settings, os.Args[2:])
	case "archive":
		cmdErr = runArchive(settings, os.Args[2:])
	case "publish":
		cmdErr = runPublish(settings, os.Args[2:])
	case "serve":
		cmdErr = runServe(settings, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if cmdErr != nil {
		log.Fatal().Err(cmdErr).Str("command", os.Args[1]).Msg("command failed")
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: psy <command> [flags]

Commands:
  inspect   print the summary of a checkpoint
  report    render summary, CSV, JSON and plot artifacts
  archive   store a checkpoint in the experiment archive (-list to browse)
  publish   publish a checkpoint summary to the tracking service
  serve     serve the live experiment monitor

Run 'psy <command> -h' for the flags of one command.
`)
}

// setupLogging configures the global logger.
func setupLogging(logLevel string) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// newFlagSet builds the flag set shared by every subcommand: the checkpoint
// path and the log level, both defaulting to the loaded config.
func newFlagSet(name string, settings cfg.Settings) (*flag.FlagSet, *string, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	checkpoint := fs.String("checkpoint", "",
		fmt.Sprintf("Checkpoint file (default: latest in %s)", settings.CheckpointDir))
	logLevel := fs.String("log-level", settings.LogLevel, "Log level: debug, info, warn, error")
	return fs, checkpoint, logLevel
}

// loadStore resolves the checkpoint path and loads the store from it.
func loadStore(settings cfg.Settings, checkpoint string) (results.Store, string, error) {
	path := checkpoint
	if path == "" {
		latest, err := results.LatestCheckpoint(settings.CheckpointDir)
		if err != nil {
			return nil, "", fmt.Errorf("resolve checkpoint: %w", err)
		}
		path = latest
	}

	store, err := results.LoadCheckpoint(path)
	if err != nil {
		return nil, "", fmt.Errorf("load checkpoint: %w", err)
	}
	return store, path, nil
}

func runInspect(settings cfg.Settings, args []string) error {
	fs, checkpoint, logLevel := newFlagSet("inspect", settings)
	fs.Parse(args)
	setupLogging(*logLevel)

	store, path, err := loadStore(settings, *checkpoint)
	if err != nil {
		return err
	}

	printInspect(store, path)
	return nil
}

func printInspect(store results.Store, path string) {
	heading := color.New(color.FgCyan, color.Bold)

	s := store.Summary()
	total := s.NumRep * len(s.DatasetIDs)

	heading.Printf("Experiment %s (%s)\n", s.ID, s.Kind)
	fmt.Printf("Checkpoint: %s\n", path)
	fmt.Printf("Created:    %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Datasets:   %s\n", strings.Join(s.DatasetIDs, ", "))
	fmt.Printf("Metrics:    %s\n", strings.Join(s.MetricNames, ", "))
	fmt.Printf("Runs:       %d of %d\n", s.Count, total)

	if len(s.Metrics) == 0 {
		fmt.Println("\nNo scores recorded yet.")
		return
	}

	fmt.Println()
	heading.Printf("%-22s %-16s %-10s %-10s %s\n", "metric", "dataset", "median", "SD", "runs")
	for _, row := range s.Metrics {
		missing := ""
		if row.N < s.NumRep {
			missing = "  " + color.YellowString("%d missing", s.NumRep-row.N)
		}
		fmt.Printf("%-22s %-16s %s %-10.4f %d%s\n",
			row.Metric, row.Dataset,
			color.GreenString("%-10.4f", row.Median),
			row.SD, row.N, missing)
	}

	if len(s.Meta) > 0 {
		fmt.Println()
		heading.Println("Metadata")
		for k, v := range s.Meta {
			fmt.Printf("%-22s %s\n", k, v)
		}
	}
}

func runReport(settings cfg.Settings, args []string) error {
	fs, checkpoint, logLevel := newFlagSet("report", settings)
	outDir := fs.String("out", settings.OutputDir, "Output directory for report artifacts")
	fs.Parse(args)
	setupLogging(*logLevel)

	store, path, err := loadStore(settings, *checkpoint)
	if err != nil {
		return err
	}
	log.Info().Str("checkpoint", path).Msg("Generating report")

	files, err := report.NewReporter(store, *outDir).Generate()
	if err != nil {
		return err
	}

	fmt.Printf("Report written to %s (%d artifacts)\n", *outDir, len(files))
	return nil
}

func runArchive(settings cfg.Settings, args []string) error {
	fs, checkpoint, logLevel := newFlagSet("archive", settings)
	dbPath := fs.String("db", settings.ArchivePath, "Archive database file")
	list := fs.Bool("list", false, "List archived experiments instead of archiving")
	fs.Parse(args)
	setupLogging(*logLevel)

	store, err := archive.New(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if *list {
		return printArchiveList(store)
	}

	cv, path, err := loadStore(settings, *checkpoint)
	if err != nil {
		return err
	}

	rec, scores, err := archive.BuildRecords(cv)
	if err != nil {
		return err
	}
	if err := store.StoreExperiment(rec, scores); err != nil {
		return err
	}

	log.Info().
		Str("experiment", rec.ID).
		Str("checkpoint", path).
		Str("db", *dbPath).
		Int("scores", len(scores)).
		Msg("Experiment archived")
	fmt.Printf("Archived %s (%d scores) to %s\n", rec.ID, len(scores), *dbPath)
	return nil
}

func printArchiveList(store *archive.Store) error {
	records, err := store.ListExperiments()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No archived experiments.")
		return nil
	}

	heading := color.New(color.FgCyan, color.Bold)
	heading.Printf("%-38s %-10s %-20s %s\n", "experiment", "kind", "archived", "runs")
	for _, rec := range records {
		fmt.Printf("%-38s %-10s %-20s %d\n",
			rec.ID, rec.Kind, rec.ArchivedAt.Format("2006-01-02 15:04:05"), rec.Count)
	}
	return nil
}

func runPublish(settings cfg.Settings, args []string) error {
	fs, checkpoint, logLevel := newFlagSet("publish", settings)
	url := fs.String("url", settings.TrackerURL, "Tracking service base URL")
	apiKey := fs.String("api-key", settings.TrackerAPIKey, "Tracking service API key")
	fs.Parse(args)
	setupLogging(*logLevel)

	if *url == "" {
		return fmt.Errorf("tracker url required: set -url or PSY_TRACKER_URL")
	}

	store, path, err := loadStore(settings, *checkpoint)
	if err != nil {
		return err
	}
	log.Info().Str("checkpoint", path).Str("url", *url).Msg("Publishing experiment")

	client := tracker.New(*url, *apiKey, settings.TrackerTimeout)
	if err := client.Publish(context.Background(), tracker.BuildReport(store)); err != nil {
		return err
	}

	fmt.Printf("Published %s to %s\n", store.ID(), *url)
	return nil
}

func runServe(settings cfg.Settings, args []string) error {
	fs, checkpoint, logLevel := newFlagSet("serve", settings)
	port := fs.Int("port", settings.MonitorPort, "Monitor HTTP port")
	fs.Parse(args)
	setupLogging(*logLevel)

	store, path, err := loadStore(settings, *checkpoint)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(registry)
	m.SetProgress(store.Count(), store.NumRep(), len(store.DatasetIDs()))

	mon := monitor.New(store, registry, *port)

	// Stream any further additions to both the dashboard and the metrics.
	recorder := metrics.NewRecorder(m, store.NumRep(), len(store.DatasetIDs()))
	store.SetObserver(results.MultiObserver(mon, recorder))

	if err := mon.Start(); err != nil {
		return err
	}
	log.Info().
		Str("checkpoint", path).
		Int("port", *port).
		Msg("Monitor running, press Ctrl-C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutdown signal received")
	return mon.Stop()
}
