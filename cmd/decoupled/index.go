package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/decoupled/internal/interfaces"
	"github.com/ternarybob/decoupled/internal/models"
)

// statusRuns is the number of runs listed by index status
const statusRuns = 5

var indexClearConfirmed bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index every Drupal article into the vector index",
	Long: `Fetches all published articles, embeds them and upserts them into the
Pinecone index, creating the index on first use. Re-running overwrites
existing vectors by article id.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete <article-id>",
	Short: "Remove one article from the vector index",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexDelete,
}

var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every vector from the index",
	Args:  cobra.NoArgs,
	RunE:  runIndexClear,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent indexing runs",
	Args:  cobra.NoArgs,
	RunE:  runIndexStatus,
}

func init() {
	indexClearCmd.Flags().BoolVar(&indexClearConfirmed, "yes", false, "confirm removal of every vector")
	indexCmd.AddCommand(indexDeleteCmd, indexClearCmd, indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	cmd.Println(titleStyle.Render("Indexing articles into " + application.VectorIndex.Name()))

	run, err := application.IndexingService.Run(ctx, "cli")
	printRun(cmd, run)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

func runIndexDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.IndexingService.DeleteArticle(ctx, args[0]); err != nil {
		return err
	}
	cmd.Println(successStyle.Render("Deleted " + args[0]))
	return nil
}

func runIndexClear(cmd *cobra.Command, args []string) error {
	if !indexClearConfirmed {
		return errors.New("refusing to clear the index without --yes")
	}

	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.IndexingService.ClearIndex(ctx); err != nil {
		return err
	}
	cmd.Println(successStyle.Render("Cleared index " + application.VectorIndex.Name()))
	return nil
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	runs, err := application.IndexingService.RecentRuns(ctx, statusRuns)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("no indexing run recorded: %w", interfaces.ErrKeyNotFound)
	}

	printRun(cmd, runs[0])
	if len(runs) > 1 {
		cmd.Println()
		cmd.Println(mutedStyle.Render("Earlier runs:"))
		for _, run := range runs[1:] {
			printRun(cmd, run)
		}
	}
	return nil
}

// printRun writes a one-line summary of run
func printRun(cmd *cobra.Command, run *models.IndexingRun) {
	if run == nil {
		return
	}

	summary := fmt.Sprintf("%s run %s: %d/%d articles indexed in %s",
		run.Trigger, run.Status, run.Indexed, run.Articles, run.Duration().Round(time.Millisecond))

	switch run.Status {
	case models.IndexingStatusSucceeded:
		cmd.Println(successStyle.Render(summary))
	case models.IndexingStatusFailed:
		cmd.Println(errorStyle.Render(summary))
		cmd.Println(mutedStyle.Render(run.Error))
	default:
		cmd.Println(summary)
	}
}
