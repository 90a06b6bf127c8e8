package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/llmagent"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/FireFreezer630/Wisdom-Core/kernel/runtime"
	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
)

const (
	interruptExitWindow = 2 * time.Second
	listLimit           = 20
	maxImageBytes       = 8 << 20
)

type slashCommand struct {
	Usage       string
	Description string
	Handle      func(*console, []string) (bool, error)
}

type console struct {
	ctx    context.Context
	rt     *runtime.Runtime
	tools  []string
	editor lineEditor
	out    io.Writer

	convMu sync.Mutex
	convID string

	commands map[string]slashCommand
	order    []string

	pendingImages []string
	lastReply     string
	lastUsage     model.Usage
	totalUsage    model.Usage
	listing       []conversation.Summary
	copyText      func(string) error

	interruptMu     sync.Mutex
	lastInterruptAt time.Time
}

type consoleConfig struct {
	Context     context.Context
	Runtime     *runtime.Runtime
	Tools       []string
	HistoryFile string
	// In and Out replace the terminal, mainly for tests.
	In  io.Reader
	Out io.Writer
}

func newConsole(cfg consoleConfig) *console {
	c := &console{
		ctx:      cfg.Context,
		rt:       cfg.Runtime,
		tools:    append([]string(nil), cfg.Tools...),
		copyText: clipboard.WriteAll,
	}
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	c.commands = map[string]slashCommand{
		"help":    {Usage: "/help", Description: "show commands", Handle: handleHelp},
		"new":     {Usage: "/new [title]", Description: "start a new conversation", Handle: handleNew},
		"list":    {Usage: "/list", Description: "list recent conversations", Handle: handleList},
		"switch":  {Usage: "/switch <n|id>", Description: "open another conversation", Handle: handleSwitch},
		"delete":  {Usage: "/delete <n|id>", Description: "delete a conversation", Handle: handleDelete},
		"history": {Usage: "/history", Description: "reprint the current conversation", Handle: handleHistory},
		"image":   {Usage: "/image <url|path|clear>", Description: "attach an image to the next message", Handle: handleImage},
		"copy":    {Usage: "/copy", Description: "copy the last reply to the clipboard", Handle: handleCopy},
		"usage":   {Usage: "/usage", Description: "show token usage", Handle: handleUsage},
		"tools":   {Usage: "/tools", Description: "list available tools", Handle: handleTools},
		"exit":    {Usage: "/exit", Description: "quit", Handle: handleExit},
	}
	c.order = []string{"help", "new", "list", "switch", "delete", "history", "image", "copy", "usage", "tools", "exit"}
	c.editor = newLineEditor(lineEditorConfig{
		HistoryFile: cfg.HistoryFile,
		Commands:    c.order,
		In:          cfg.In,
		Out:         cfg.Out,
	})
	c.out = c.editor.Output()
	return c
}

// open makes id the current conversation; empty resumes the latest one.
func (c *console) open(id string) error {
	var (
		conv *conversation.Conversation
		err  error
	)
	if id == "" {
		conv, err = c.rt.Resume(c.ctx)
	} else {
		conv, err = c.rt.Conversation(c.ctx, id)
	}
	if err != nil {
		return err
	}
	c.setCurrent(conv)
	printTranscript(c.out, conv)
	return nil
}

func (c *console) setCurrent(conv *conversation.Conversation) {
	c.convMu.Lock()
	c.convID = conv.ID
	c.convMu.Unlock()
	c.pendingImages = nil
}

func (c *console) current() string {
	c.convMu.Lock()
	defer c.convMu.Unlock()
	return c.convID
}

func (c *console) loop() error {
	dimColor.Fprintln(c.out, "Type a question, or /help for commands. Ctrl-C stops a reply; press it twice to quit.")
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	exitCh := make(chan struct{}, 1)
	stopSignals := make(chan struct{})
	go c.handleInterruptSignals(sigCh, exitCh, stopSignals)
	defer func() {
		close(stopSignals)
		signal.Stop(sigCh)
		_ = c.editor.Close()
	}()
	for {
		select {
		case <-exitCh:
			fmt.Fprintln(c.out)
			return nil
		default:
		}
		line, err := c.editor.ReadLine(c.prompt())
		if err != nil {
			if errors.Is(err, errInputInterrupt) {
				if c.registerInterruptAndShouldExit() {
					fmt.Fprintln(c.out)
					return nil
				}
				continue
			}
			if errors.Is(err, errInputEOF) {
				fmt.Fprintln(c.out)
				return nil
			}
			return err
		}
		c.resetInterruptWindow()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			exitNow, err := c.handleSlash(line)
			if err != nil {
				errorColor.Fprintf(c.out, "error: %v\n", err)
			}
			if exitNow {
				return nil
			}
			continue
		}
		if err := c.runPrompt(line); err != nil {
			c.reportSendError(err)
		}
	}
}

func (c *console) prompt() string {
	if n := len(c.pendingImages); n > 0 {
		return fmt.Sprintf("[%d image] > ", n)
	}
	return "> "
}

func (c *console) handleInterruptSignals(sigCh <-chan os.Signal, exitCh chan<- struct{}, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-sigCh:
			if id := c.current(); id != "" && c.rt.Cancel(id) {
				c.noteInterrupt()
				continue
			}
			// readline reports Ctrl-C itself while reading a line.
			if _, ok := c.editor.(*readlineEditor); ok {
				continue
			}
			if c.registerInterruptAndShouldExit() {
				select {
				case exitCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (c *console) handleSlash(line string) (bool, error) {
	parts := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(parts) == 0 {
		return false, nil
	}
	name := strings.ToLower(parts[0])
	cmd, ok := c.commands[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q, use /help", name)
	}
	return cmd.Handle(c, parts[1:])
}

func (c *console) runPrompt(text string) error {
	printer := newReplyPrinter(c.out)
	images := c.pendingImages
	c.pendingImages = nil
	res, err := c.rt.Send(c.ctx, runtime.SendRequest{
		ConversationID: c.convID,
		Text:           text,
		Images:         images,
		Callbacks: llmagent.Callbacks{
			OnChunk:      printer.chunk,
			OnToolResult: printer.toolResult,
			OnUsage:      c.recordUsage,
		},
	})
	printer.finish()
	if err != nil {
		return err
	}
	c.lastReply = res.Reply
	return nil
}

func (c *console) reportSendError(err error) {
	switch {
	case model.IsCanceled(err):
		warnColor.Fprintln(c.out, "! generation stopped")
	case runtime.IsConversationBusy(err):
		warnColor.Fprintln(c.out, "! this conversation is still answering; wait or press Ctrl-C")
	default:
		errorColor.Fprintf(c.out, "error: %v\n", err)
	}
}

func (c *console) recordUsage(u model.Usage) {
	c.lastUsage = u
	c.totalUsage.PromptTokens += u.PromptTokens
	c.totalUsage.CompletionTokens += u.CompletionTokens
	c.totalUsage.TotalTokens += u.TotalTokens
}

func (c *console) noteInterrupt() {
	c.interruptMu.Lock()
	defer c.interruptMu.Unlock()
	c.lastInterruptAt = time.Now()
}

func (c *console) registerInterruptAndShouldExit() bool {
	c.interruptMu.Lock()
	defer c.interruptMu.Unlock()
	now := time.Now()
	shouldExit := !c.lastInterruptAt.IsZero() && now.Sub(c.lastInterruptAt) <= interruptExitWindow
	c.lastInterruptAt = now
	return shouldExit
}

func (c *console) resetInterruptWindow() {
	c.interruptMu.Lock()
	defer c.interruptMu.Unlock()
	c.lastInterruptAt = time.Time{}
}

// resolve maps a listing index or an id prefix to a conversation id.
func (c *console) resolve(arg string) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(c.listing) {
			return "", fmt.Errorf("no conversation #%d, run /list first", n)
		}
		return c.listing[n-1].ID, nil
	}
	all, err := c.rt.Conversations(c.ctx, 0)
	if err != nil {
		return "", err
	}
	var match string
	for _, s := range all {
		if s.ID == arg {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("%q matches more than one conversation", arg)
			}
			match = s.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", conversation.ErrNotFound, arg)
	}
	return match, nil
}

func handleHelp(c *console, _ []string) (bool, error) {
	fmt.Fprintln(c.out, "Commands:")
	for _, name := range c.order {
		cmd := c.commands[name]
		fmt.Fprintf(c.out, "  %-26s %s\n", cmd.Usage, cmd.Description)
	}
	return false, nil
}

func handleNew(c *console, args []string) (bool, error) {
	conv, err := c.rt.NewConversation(c.ctx, strings.Join(args, " "))
	if err != nil {
		return false, err
	}
	c.setCurrent(conv)
	accentColor.Fprintf(c.out, "started %q\n", conv.Title)
	return false, nil
}

func handleList(c *console, _ []string) (bool, error) {
	list, err := c.rt.Conversations(c.ctx, listLimit)
	if err != nil {
		return false, err
	}
	c.listing = list
	if len(list) == 0 {
		fmt.Fprintln(c.out, "no conversations")
		return false, nil
	}
	printSummaries(c.out, list, c.convID)
	return false, nil
}

func printSummaries(w io.Writer, list []conversation.Summary, current string) {
	for i, s := range list {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %2d. %s ", marker, i+1, padVisible(runewidth.Truncate(s.Title, 40, "…"), 40))
		dimColor.Fprintf(w, "%s  %d msgs  %s\n", s.ID[:min(8, len(s.ID))], s.MessageCount, humanize.Time(s.UpdatedAt))
	}
}

func handleSwitch(c *console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: /switch <n|id>")
	}
	id, err := c.resolve(args[0])
	if err != nil {
		return false, err
	}
	return false, c.open(id)
}

func handleDelete(c *console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: /delete <n|id>")
	}
	id, err := c.resolve(args[0])
	if err != nil {
		return false, err
	}
	if err := c.rt.DeleteConversation(c.ctx, id); err != nil {
		return false, err
	}
	c.listing = nil
	fmt.Fprintln(c.out, "deleted")
	if id == c.convID {
		return false, c.open("")
	}
	return false, nil
}

func handleHistory(c *console, _ []string) (bool, error) {
	conv, err := c.rt.Conversation(c.ctx, c.convID)
	if err != nil {
		return false, err
	}
	printTranscript(c.out, conv)
	return false, nil
}

func handleImage(c *console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: /image <url|path|clear>")
	}
	if args[0] == "clear" {
		c.pendingImages = nil
		fmt.Fprintln(c.out, "attachments cleared")
		return false, nil
	}
	ref, err := imageRef(args[0])
	if err != nil {
		return false, err
	}
	c.pendingImages = append(c.pendingImages, ref)
	fmt.Fprintf(c.out, "attached %s\n", clipURL(ref))
	return false, nil
}

// imageRef returns URLs unchanged and turns local files into data URLs.
func imageRef(arg string) (string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "data:image/") {
		return arg, nil
	}
	raw, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	if len(raw) > maxImageBytes {
		return "", fmt.Errorf("%s is larger than %s", arg, humanize.IBytes(maxImageBytes))
	}
	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", arg, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func handleCopy(c *console, _ []string) (bool, error) {
	if c.lastReply == "" {
		return false, fmt.Errorf("nothing to copy yet")
	}
	if err := c.copyText(c.lastReply); err != nil {
		return false, fmt.Errorf("copy to clipboard: %w", err)
	}
	fmt.Fprintln(c.out, "copied")
	return false, nil
}

func handleUsage(c *console, _ []string) (bool, error) {
	fmt.Fprintf(c.out, "last reply: %s\n", formatUsage(c.lastUsage))
	fmt.Fprintf(c.out, "this session: %s\n", formatUsage(c.totalUsage))
	return false, nil
}

func handleTools(c *console, _ []string) (bool, error) {
	for _, name := range c.tools {
		fmt.Fprintf(c.out, "  %s\n", name)
	}
	return false, nil
}

func handleExit(*console, []string) (bool, error) {
	return true, nil
}
