package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/FireFreezer630/Wisdom-Core/internal/config"
	"github.com/FireFreezer630/Wisdom-Core/internal/version"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model/providers"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newConversationsCmd(flags *rootFlags, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage stored conversations",
	}
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				items, err := a.store.List(ctx, limit)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(out, "no conversations")
					return nil
				}
				printSummaries(out, items, "")
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "l", listLimit, "maximum number of conversations")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				conv, err := a.store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				printTranscript(out, conv)
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				var errs []error
				for _, id := range args {
					if err := a.store.Delete(ctx, id); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Fprintf(out, "deleted %s\n", id)
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.AddCommand(list, show, del)
	return cmd
}

func withStore(ctx context.Context, flags *rootFlags, fn func(context.Context, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, appOptions{flags: flags})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newConfigCmd(flags *rootFlags, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	show := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration and where each value came from",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, f := range cfg.Fields() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Key, f.Value, f.Source)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				warnColor.Fprintf(out, "! %v\n", err)
			}
			return nil
		},
	}
	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			p, err := configPath(flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, p)
			return nil
		},
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			p, err := configPath(flags)
			if err != nil {
				return err
			}
			if _, err := os.Stat(p); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p)
			}
			if err := config.Save(config.Default(), p); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", p)
			fmt.Fprintln(out, "the API key is read from WISDOM_API_KEY or OPENAI_API_KEY")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(show, path, initCmd)
	return cmd
}

func configPath(flags *rootFlags) (string, error) {
	if flags.ConfigPath != "" {
		return flags.ConfigPath, nil
	}
	return config.Path()
}

func newModelsCmd(flags *rootFlags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the configured endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			models, err := providers.ListModels(ctx, providers.Config{
				BaseURL: cfg.LLM.BaseURL,
				APIKey:  cfg.LLM.APIKey,
				Timeout: cfg.LLM.Timeout.Duration,
				Retry: providers.RetryPolicy{
					MaxRetries: cfg.LLM.MaxRetries,
					BaseDelay:  cfg.LLM.RetryBaseDelay.Duration,
					MaxDelay:   cfg.LLM.RetryMaxDelay.Duration,
				},
			})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, m := range models {
				marker := " "
				if m.Name == cfg.LLM.Model {
					marker = "*"
				}
				window := "-"
				if m.ContextWindowTokens > 0 {
					window = humanize.Comma(int64(m.ContextWindowTokens))
				}
				fmt.Fprintf(tw, "%s %s\t%s\t%s\n", marker, m.Name, stringOrDash(m.OwnedBy), window)
			}
			return tw.Flush()
		},
	}
}

func stringOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(out, "wisdomcore", version.String())
		},
	}
}
