package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mikey/inbox-triage/internal/adapters/statistical"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/di"
	"github.com/mikey/inbox-triage/internal/logging"
)

const usage = `Usage: inbox-triage <command> [flags]

Commands:
  run     Classify inbox messages and archive noise plus duplicates
  review  Show keep candidates and optionally flag a selection
  train   Fit the statistical model from archived and flagged messages
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Credentials usually live in a local .env file.
	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "review":
		err = reviewCmd(os.Args[2:])
	case "train":
		err = trainCmd(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "inbox-triage: %v\n", err)
		os.Exit(1)
	}
}

type commonFlags struct {
	verbose    bool
	jsonLog    bool
	configFile string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.BoolVar(&cf.verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&cf.jsonLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&cf.configFile, "config", "", "Config file (default: search standard locations)")
	return cf
}

func bootstrap(cf *commonFlags) (*config.Config, *zap.Logger, error) {
	logger, err := logging.InitConsoleLogger(cf.verbose, cf.jsonLog)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.New(cf.configFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", true, "Report without moving anything")
	execute := fs.Bool("execute", false, "Actually archive (overrides -dry-run)")
	limit := fs.Int("limit", 500, "Max messages to fetch")
	threshold := fs.Float64("threshold", 0, "Archive threshold for the statistical backend (0 = configured default)")
	cf := addCommonFlags(fs)
	fs.Parse(args)

	cfg, logger, err := bootstrap(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if *threshold > 0 {
		cfg.GetViper().Set("triage.archive_threshold", *threshold)
	}

	container, err := di.BuildContainer(cfg, logger)
	if err != nil {
		return err
	}

	return container.Invoke(func(svc *core.TriageService, cache core.CacheRepository) error {
		if cache != nil {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Warn("Failed to flush cache", zap.Error(err))
				}
			}()
		}

		report, err := svc.Run(context.Background(), *limit, *dryRun && !*execute)
		if err != nil {
			return err
		}
		printRunReport(report)
		return nil
	})
}

func reviewCmd(args []string) error {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	limit := fs.Int("limit", 500, "Max messages to fetch")
	low := fs.Float64("low", 0, "Uncertain band floor for the statistical backend (0 = configured default)")
	high := fs.Float64("high", 0, "Uncertain band ceiling, also the archive threshold (0 = configured default)")
	cf := addCommonFlags(fs)
	fs.Parse(args)

	cfg, logger, err := bootstrap(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if *low > 0 {
		cfg.GetViper().Set("triage.review_low", *low)
	}
	if *high > 0 {
		cfg.GetViper().Set("triage.archive_threshold", *high)
	}

	container, err := di.BuildContainer(cfg, logger)
	if err != nil {
		return err
	}

	return container.Invoke(func(svc *core.TriageService, cache core.CacheRepository) error {
		if cache != nil {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Warn("Failed to flush cache", zap.Error(err))
				}
			}()
		}

		ctx := context.Background()
		report, err := svc.Review(ctx, *limit)
		if err != nil {
			return err
		}
		if len(report.Items) == 0 {
			fmt.Println("No messages to review.")
			return nil
		}
		printReviewReport(report)

		fmt.Print("\nFlag for follow-up (comma list, ranges like 2-5, 'all', Enter to skip): ")
		selection, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		selection = strings.TrimSpace(selection)
		if selection == "" {
			return nil
		}

		flagged, err := svc.FlagSelection(ctx, report.Items, selection)
		if err != nil {
			return err
		}
		if flagged == 0 {
			fmt.Println("No valid indices.")
			return nil
		}
		fmt.Printf("Flagged %d message(s) for follow-up.\n", flagged)
		return nil
	})
}

func trainCmd(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	limit := fs.Int("limit", 10000, "Max archive messages to train on")
	cf := addCommonFlags(fs)
	fs.Parse(args)

	cfg, logger, err := bootstrap(cf)
	if err != nil {
		return err
	}
	defer logger.Sync()

	container, err := di.BuildContainer(cfg, logger)
	if err != nil {
		return err
	}

	return container.Invoke(func(trainer *statistical.Trainer) error {
		_, report, err := trainer.Train(context.Background(), *limit, cfg.GetString("model.path"))
		if err != nil {
			return err
		}
		printTrainReport(report)
		return nil
	})
}

func printRunReport(report *core.RunReport) {
	if len(report.Noise) > 0 {
		fmt.Println("\nNoise (will be archived):")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SENDER\tSUBJECT\tREASON")
		for _, v := range report.Noise {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				clip(v.Message.DisplaySender(), 35),
				clip(v.Message.Subject, 50),
				clip(v.Reason, 40))
		}
		w.Flush()
	}

	if len(report.Protected) > 0 {
		fmt.Println("\nKept by protected domain:")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SENDER\tSUBJECT")
		for _, v := range report.Protected {
			fmt.Fprintf(w, "%s\t%s\n",
				clip(v.Message.DisplaySender(), 35),
				clip(v.Message.Subject, 50))
		}
		w.Flush()
	}

	if len(report.Dupes) > 0 {
		fmt.Println("\nDuplicates (older copies):")
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SENDER\tSUBJECT\tDATE")
		for _, d := range report.Dupes {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				clip(d.DisplaySender(), 35),
				clip(d.Subject, 50),
				clip(d.ReceivedAt, 10))
		}
		w.Flush()
	}

	if len(report.ArchiveIDs) == 0 {
		fmt.Println("No messages to archive.")
		return
	}
	verb := "archived"
	if report.DryRun {
		verb = "would be archived"
	}
	fmt.Printf("\n%d noise + %d duplicates = %d messages %s.\n",
		len(report.Noise), len(report.Dupes), len(report.ArchiveIDs), verb)
}

func printReviewReport(report *core.ReviewReport) {
	fmt.Println("\nInbox review:")
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tCATEGORY\tSENDER\tSUBJECT\tREASON")
	for i, v := range report.Items {
		category := string(v.Category)
		if category == "" {
			category = fmt.Sprintf("p=%.2f", v.Probability)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			i,
			category,
			clip(v.Message.DisplaySender(), 35),
			clip(v.Message.Subject, 50),
			clip(v.Reason, 40))
	}
	w.Flush()
	fmt.Printf("\n%d message(s) to review.\n", len(report.Items))
}

func printTrainReport(report *statistical.TrainReport) {
	fmt.Printf("\nTrained on %d messages: %d keep, %d transactional.\n",
		report.Total, report.Keep, report.Transactional)

	if len(report.FalseArchives) > 0 {
		fmt.Printf("\n%d kept message(s) the model would archive:\n", len(report.FalseArchives))
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROB\tSENDER\tSUBJECT")
		for _, m := range report.FalseArchives {
			fmt.Fprintf(w, "%.2f\t%s\t%s\n",
				m.Probability,
				clip(m.Message.DisplaySender(), 35),
				clip(m.Message.Subject, 50))
		}
		w.Flush()
	}
	if len(report.FalseKeeps) > 0 {
		fmt.Printf("\n%d transactional message(s) the model would keep.\n", len(report.FalseKeeps))
	}
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
