// Package tasks parses task manager flags and runs one subcommand.
package tasks

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spdeepak/offlinecache/internal/config"
	"github.com/spdeepak/offlinecache/kv"
	"github.com/spdeepak/offlinecache/storage/sqlite"
	"github.com/spdeepak/offlinecache/tasks"
)

// ErrUsage reports a missing or unknown subcommand or argument.
var ErrUsage = errors.New("usage: tasks [flags] list | add TEXT | toggle ID | delete ID | clear | dismiss-install | install-status")

// Config holds tasks command configuration.
type Config struct {
	DB       string `env:"DB"`
	Dir      string `env:"TASKS_DIR" envDefault:".offlinecache"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
	// Args is the subcommand and its arguments.
	Args []string
}

// ParseConfig loads environment defaults and then parses flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DB, "db", cfg.DB, "SQLite database path; takes precedence over -dir")
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "Directory holding one file per slot")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Args = fs.Args()
	return cfg, nil
}

// Run executes the subcommand in cfg.Args, writing results to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if err := config.SetupLogger(os.Stderr, cfg.LogLevel); err != nil {
		return err
	}
	if len(cfg.Args) == 0 {
		return ErrUsage
	}
	slot, closeSlot, err := openSlot(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSlot()
	return execute(ctx, slot, cfg.Args, out)
}

func openSlot(ctx context.Context, cfg Config) (kv.Store, func(), error) {
	if strings.TrimSpace(cfg.DB) != "" {
		store, err := sqlite.Open(ctx, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("open task storage: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
	store, err := kv.NewFile(cfg.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open task storage: %w", err)
	}
	return store, func() {}, nil
}

func execute(ctx context.Context, slot kv.Store, args []string, out io.Writer) error {
	messenger := tasks.LogMessenger{}
	command, rest := args[0], args[1:]

	switch command {
	case "dismiss-install":
		if err := tasks.NewInstallPrompt(slot, messenger).Dismiss(ctx); err != nil {
			return fmt.Errorf("dismiss install prompt: %w", err)
		}
		fmt.Fprintln(out, "Install prompt dismissed")
		return nil
	case "install-status":
		if tasks.NewInstallPrompt(slot, messenger).Dismissed(ctx) {
			fmt.Fprintln(out, "Install prompt dismissed")
		} else {
			fmt.Fprintln(out, "Install prompt available")
		}
		return nil
	}

	store := tasks.Open(ctx, slot, tasks.WithMessenger(messenger))
	switch command {
	case "list":
		return printTasks(out, store.List())
	case "add":
		if len(rest) == 0 {
			return ErrUsage
		}
		task, err := store.Add(ctx, strings.Join(rest, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Added %d\n", task.ID)
		return nil
	case "toggle":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		task, ok := store.Toggle(ctx, id)
		if !ok {
			return fmt.Errorf("task %d not found", id)
		}
		fmt.Fprintf(out, "%d %s\n", task.ID, checkbox(task.Completed))
		return nil
	case "delete":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		if !store.Delete(ctx, id) {
			return fmt.Errorf("task %d not found", id)
		}
		fmt.Fprintf(out, "Deleted %d\n", id)
		return nil
	case "clear":
		if store.Clear(ctx) {
			fmt.Fprintln(out, "All tasks cleared")
		} else {
			fmt.Fprintln(out, "No tasks to clear")
		}
		return nil
	default:
		return ErrUsage
	}
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, ErrUsage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse task id: %w", err)
	}
	return id, nil
}

func checkbox(completed bool) string {
	if completed {
		return "[x]"
	}
	return "[ ]"
}

func printTasks(out io.Writer, list []tasks.Task) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "No tasks yet. Add one above!")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, task := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", task.ID, checkbox(task.Completed), task.Text, task.CreatedAt.Local().Format("2006-01-02"))
	}
	return w.Flush()
}
