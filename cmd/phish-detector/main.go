package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/di"
	"github.com/mikey/phishguard/internal/factory"
	"go.uber.org/zap"
)

// statsLimit bounds the label listing when -max-emails is not set
const statsLimit = 500

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	err = container.Invoke(func(logger *zap.Logger, filters *factory.FilterFactory) error {
		return run(flags, logger, filters)
	})
	di.Shutdown(container)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *di.CLIFlags, logger *zap.Logger, filters *factory.FilterFactory) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := filters.CreateCliFilter(flags.Verbose)

	if flags.Stats {
		limit := flags.MaxEmails
		if limit <= 0 {
			limit = statsLimit
		}
		return cli.Report(ctx, limit)
	}

	if flags.URL != "" {
		check, err := cli.CheckURL(ctx, flags.URL)
		if err != nil {
			return err
		}
		if check.Error != "" {
			return fmt.Errorf("URL check failed: %s", check.Error)
		}
		return nil
	}

	if ids := flags.ItemIDs(); len(ids) > 0 || flags.Scan {
		var (
			outcome *core.BatchOutcome
			err     error
		)
		if flags.Scan {
			outcome, err = cli.ScanUnread(ctx, flags.MaxEmails)
		} else {
			outcome, err = cli.ScanBatch(ctx, ids)
		}
		if err != nil {
			return err
		}
		if outcome.Errored > 0 {
			return fmt.Errorf("%d of %d emails failed", outcome.Errored, outcome.Processed)
		}
		return nil
	}

	var reader io.Reader = os.Stdin
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		reader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		logger.Info("Reading email from stdin")
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}
	_, err = cli.ProcessMessage(ctx, raw)
	return err
}
