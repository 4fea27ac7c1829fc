package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/clipforge/clipforge/internal/data"
	"github.com/clipforge/clipforge/internal/domain/model"
)

type deadLetterListOptions struct {
	Limit  int
	Offset int
}

type deadLetterShowOptions struct {
	JobID   string
	RawJSON bool
}

func parseDeadLetterListFlags(args []string) (deadLetterListOptions, error) {
	fs := flag.NewFlagSet("list-dead-letters", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "maximum rows to print")
	offset := fs.Int("offset", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return deadLetterListOptions{}, err
	}
	opts := deadLetterListOptions{Limit: *limit, Offset: *offset}
	if opts.Limit < 1 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts, nil
}

func parseDeadLetterShowFlags(args []string) (deadLetterShowOptions, error) {
	fs := flag.NewFlagSet("show-dead-letter", flag.ContinueOnError)
	jobID := fs.String("job-id", "", "job id of the dead letter to print")
	raw := fs.Bool("raw", false, "print the raw payload JSON only")
	if err := fs.Parse(args); err != nil {
		return deadLetterShowOptions{}, err
	}
	if *jobID == "" {
		return deadLetterShowOptions{}, fmt.Errorf("--job-id is required")
	}
	return deadLetterShowOptions{JobID: *jobID, RawJSON: *raw}, nil
}

func runJobStats(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err = writef(tw, "TYPE\tPENDING\tRUNNING\tCOMPLETED\tFAILED\n"); err != nil {
		return fmt.Errorf("print stats header: %w", err)
	}
	for _, jobType := range []model.JobType{model.JobTypeVideo, model.JobTypePlaylist} {
		stats, statsErr := repo.Stats(ctx, jobType)
		if statsErr != nil {
			return fmt.Errorf("fetch %s stats: %w", jobType, statsErr)
		}
		if err = writef(tw, "%s\t%d\t%d\t%d\t%d\n",
			jobType, stats.Pending, stats.Running, stats.Completed, stats.Failed); err != nil {
			return fmt.Errorf("print stats row: %w", err)
		}
	}
	if err = tw.Flush(); err != nil {
		return fmt.Errorf("flush stats table: %w", err)
	}
	return nil
}

func runListDeadLetters(cmdCtx *commandContext, args []string) error {
	opts, err := parseDeadLetterListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	letters, err := data.NewDeadLetterRepo(db).List(ctx, opts.Limit, opts.Offset)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}

	if len(letters) == 0 {
		return writeln(os.Stdout, "(no dead letters)")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err = writef(tw, "JOB ID\tTYPE\tATTEMPTS\tCREATED\tLAST ERROR\n"); err != nil {
		return fmt.Errorf("print dead letter header: %w", err)
	}
	for _, letter := range letters {
		if err = writef(tw, "%s\t%s\t%d\t%s\t%s\n",
			letter.JobID,
			letter.JobType,
			letter.Attempts,
			letter.CreatedAt.Format(time.RFC3339),
			truncate(letter.LastError, 80)); err != nil {
			return fmt.Errorf("print dead letter row: %w", err)
		}
	}
	if err = tw.Flush(); err != nil {
		return fmt.Errorf("flush dead letter table: %w", err)
	}
	return writef(os.Stdout, "\nTotal rows: %d\n", len(letters))
}

func runShowDeadLetter(cmdCtx *commandContext, args []string) error {
	opts, err := parseDeadLetterShowFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, _, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	letter, err := data.NewDeadLetterRepo(db).GetByJobID(ctx, opts.JobID)
	if err != nil {
		return fmt.Errorf("fetch dead letter: %w", err)
	}
	if letter == nil {
		return writef(os.Stdout, "no dead letter found for job %s\n", opts.JobID)
	}

	if opts.RawJSON {
		return writef(os.Stdout, "%s\n", letter.Payload)
	}

	if err = writef(os.Stdout, "Job ID:     %s\nType:       %s\nAttempts:   %d\nCreated:    %s\nLast error: %s\n",
		letter.JobID, letter.JobType, letter.Attempts,
		letter.CreatedAt.Format(time.RFC3339), letter.LastError); err != nil {
		return fmt.Errorf("print dead letter detail: %w", err)
	}

	pretty, err := json.MarshalIndent(json.RawMessage(letter.Payload), "", "  ")
	if err != nil {
		return writef(os.Stdout, "Payload:    %s\n", letter.Payload)
	}
	return writef(os.Stdout, "Payload:\n%s\n", pretty)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
