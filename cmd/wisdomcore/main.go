// Command wisdomcore is a terminal client for the WisdomCore study tutor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/FireFreezer630/Wisdom-Core/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitError         = 1
	exitConfigMissing = 2
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	Storage    string
	DataDir    string
	Model      string
	NoColor    bool
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := configHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
			os.Exit(exitConfigMissing)
		}
		os.Exit(exitError)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "wisdomcore",
		Short:         "AI study tutor with flashcards, syllabus lookup and search",
		Long:          "wisdomcore chats with an OpenAI-compatible model that can create flashcards, look up syllabi and search the web.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if flags.NoColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), flags, chatOptions{in: in, out: out, errOut: errOut})
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path (default: user config dir)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.Storage, "storage", "", "conversation storage: sqlite, file, memory")
	pf.StringVar(&flags.DataDir, "data-dir", "", "directory for stored conversations")
	pf.StringVar(&flags.Model, "model", "", "model name override")
	pf.BoolVar(&flags.NoColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newChatCmd(flags, in, out, errOut),
		newAskCmd(flags, out, errOut),
		newConversationsCmd(flags, out),
		newConfigCmd(flags, out),
		newModelsCmd(flags, out),
		newVersionCmd(out),
	)
	return root
}

type chatOptions struct {
	conversationID  string
	newConversation bool
	in              io.Reader
	out             io.Writer
	errOut          io.Writer
}

func newChatCmd(flags *rootFlags, in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := chatOptions{in: in, out: out, errOut: errOut}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive study session (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), flags, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.conversationID, "conversation", "c", "", "conversation id to resume")
	cmd.Flags().BoolVarP(&opts.newConversation, "new", "n", false, "start a new conversation")
	return cmd
}

func runChat(ctx context.Context, flags *rootFlags, opts chatOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, appOptions{flags: flags, needModel: true, stderr: opts.errOut})
	if err != nil {
		return err
	}
	defer a.Close()

	historyFile := ""
	if dir, err := config.Dir(); err == nil {
		historyFile = filepath.Join(dir, "history")
	}
	cfg := consoleConfig{
		Context:     ctx,
		Runtime:     a.rt,
		Tools:       a.tools,
		HistoryFile: historyFile,
	}
	// Only swap the terminal out when the caller did.
	if opts.in != os.Stdin || opts.out != os.Stdout {
		cfg.In, cfg.Out = opts.in, opts.out
	}
	c := newConsole(cfg)
	switch {
	case opts.newConversation:
		if _, err := handleNew(c, nil); err != nil {
			return err
		}
	default:
		if err := c.open(opts.conversationID); err != nil {
			return err
		}
	}
	return c.loop()
}

func newAskCmd(flags *rootFlags, out, errOut io.Writer) *cobra.Command {
	var (
		conversationID string
		images         []string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			a, err := openApp(ctx, appOptions{flags: flags, needModel: true, stderr: errOut})
			if err != nil {
				return err
			}
			defer a.Close()
			c := newConsole(consoleConfig{Context: ctx, Runtime: a.rt, Tools: a.tools, In: eofReader{}, Out: out})
			if conversationID != "" {
				id, err := c.resolve(conversationID)
				if err != nil {
					return err
				}
				c.convID = id
			} else {
				conv, err := a.rt.NewConversation(ctx, "")
				if err != nil {
					return err
				}
				c.setCurrent(conv)
			}
			for _, img := range images {
				ref, err := imageRef(img)
				if err != nil {
					return err
				}
				c.pendingImages = append(c.pendingImages, ref)
			}
			err = c.runPrompt(args[0])
			if err != nil && errors.Is(ctx.Err(), context.Canceled) {
				c.reportSendError(err)
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue this conversation instead of starting a new one")
	cmd.Flags().StringArrayVarP(&images, "image", "i", nil, "image URL or file to attach (repeatable)")
	return cmd
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
