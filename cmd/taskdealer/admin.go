package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/TaskDealer/internal/adapter/postgres"
	"github.com/Strob0t/TaskDealer/internal/config"
	"github.com/Strob0t/TaskDealer/internal/domain"
	"github.com/Strob0t/TaskDealer/internal/domain/agent"
	"github.com/Strob0t/TaskDealer/internal/logger"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "create-agent":
		return runAdminCreateAgent(args[1:])
	case "list-agents":
		return runAdminListAgents(args[1:])
	case "distribute":
		return runAdminDistribute(args[1:])
	case "show":
		return runAdminShow(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: taskdealer admin <command> [options]

Commands:
  migrate        Apply, roll back or report PostgreSQL migrations
  create-agent   Register a new agent
  list-agents    List all agents in roster order
  distribute     Distribute a CSV/XLSX/XLS file across the agents
  show           Show the current distribution snapshot
  help           Show this help message

Examples:
  taskdealer admin migrate
  taskdealer admin migrate --down 1
  taskdealer admin create-agent --name "Ada" --email ada@example.com --mobile +15551234567
  taskdealer admin distribute --file leads.csv
  taskdealer admin show
`)
}

// loadAdminApp loads configuration and connects the shared infrastructure.
// Admin commands log synchronously, at warn level unless configured otherwise.
func loadAdminApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if os.Getenv("TASKDEALER_LOG_LEVEL") == "" {
		cfg.Logging.Level = "warn"
	}
	cfg.Logging.Async = false
	log, _ := logger.New(cfg.Logging)
	slog.SetDefault(log)

	return newApp(ctx, cfg, appOptions{})
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Int("down", 0, "roll back this many migrations")
	status := fs.Bool("status", false, "print the current migration version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires the %s storage driver, configured: %s", config.DriverPostgres, cfg.Storage.Driver)
	}

	ctx := context.Background()
	switch {
	case *status:
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("migration version: %w", err)
		}
		fmt.Printf("migration version: %d\n", v)
		return nil
	case *down > 0:
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *down); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Rolled back %d migration(s)\n", *down)
		return nil
	default:
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Migrations applied")
		return nil
	}
}

func runAdminCreateAgent(args []string) error {
	fs := flag.NewFlagSet("create-agent", flag.ContinueOnError)
	name := fs.String("name", "", "agent name (required)")
	email := fs.String("email", "", "agent email address (required)")
	mobile := fs.String("mobile", "", "mobile number with optional leading + (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *mobile == "" {
		return fmt.Errorf("--mobile is required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ag, err := a.agents.Create(ctx, agent.CreateRequest{
		Name:     *name,
		Email:    *email,
		Mobile:   *mobile,
		Password: pass,
	})
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Agent created: %s <%s> (id=%s)\n", ag.Name, ag.Email, ag.ID)
	return nil
}

func runAdminListAgents(args []string) error {
	fs := flag.NewFlagSet("list-agents", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	agents, err := a.agents.List(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		fmt.Println("No agents found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tEMAIL\tMOBILE\tCREATED")
	for i := range agents {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			agents[i].ID, agents[i].Name, agents[i].Email, agents[i].Mobile,
			agents[i].CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func runAdminDistribute(args []string) error {
	fs := flag.NewFlagSet("distribute", flag.ContinueOnError)
	file := fs.String("file", "", "path to a .csv, .xlsx or .xls file (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open %s: %w", *file, err)
	}
	defer f.Close() //nolint:errcheck

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.distributions.UploadAndDistribute(ctx, filepath.Base(*file), f)
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			return fmt.Errorf("%w (the distribution was not persisted; run the command again)", err)
		}
		return err
	}

	fmt.Fprintf(os.Stderr, "Distributed %d task(s) across %d agent(s), %d row(s) dropped (batch %s)\n",
		res.Accepted, len(res.Distributions), res.Dropped, res.BatchID)
	return nil
}

func runAdminShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.distributions.LatestBatch(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Println("No distributions yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest batch: %w", err)
	}
	entries, err := a.distributions.List(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Batch %s from %s at %s\n\n", b.ID, b.Source, b.CreatedAt.Format(time.DateTime))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AGENT\tEMAIL\tFIRST NAME\tPHONE\tNOTES")
	for _, e := range entries {
		for _, t := range e.Tasks {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Agent.Name, e.Agent.Email, t.FirstName, t.Phone, t.Notes)
		}
	}
	return w.Flush()
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
