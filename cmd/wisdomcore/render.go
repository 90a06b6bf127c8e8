package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/FireFreezer630/Wisdom-Core/kernel/conversation"
	"github.com/FireFreezer630/Wisdom-Core/kernel/flashcard"
	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

const cardWidth = 64

var (
	accentColor  = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)
	errorColor   = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
	titleColor   = color.New(color.Bold)
	correctColor = color.New(color.FgGreen)
)

// replyPrinter writes one streamed reply. Chunks and tool payloads can
// arrive from the agent goroutine while the console prints notices.
type replyPrinter struct {
	mu        sync.Mutex
	out       io.Writer
	inLine    bool
	atNewline bool
}

func newReplyPrinter(out io.Writer) *replyPrinter {
	return &replyPrinter{out: out, atNewline: true}
}

func (p *replyPrinter) chunk(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inLine {
		text = strings.TrimLeft(text, "\n")
		if text == "" {
			return
		}
		accentColor.Fprint(p.out, "* ")
		p.inLine = true
	}
	fmt.Fprint(p.out, text)
	p.atNewline = strings.HasSuffix(text, "\n")
}

func (p *replyPrinter) toolResult(part model.ContentPart) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
	renderPart(p.out, part)
	p.inLine = false
}

// finish terminates the reply line, if any text was printed.
func (p *replyPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
}

func (p *replyPrinter) breakLine() {
	if p.inLine && !p.atNewline {
		fmt.Fprintln(p.out)
	}
	p.atNewline = true
}

func renderPart(w io.Writer, part model.ContentPart) {
	switch part.Type {
	case model.PartFlashcard:
		if part.Flashcard != nil {
			renderCard(w, *part.Flashcard, "")
		}
	case model.PartFlashcardSet:
		if part.FlashcardSet != nil {
			renderSet(w, *part.FlashcardSet)
		}
	case model.PartSearchResult:
		if part.SearchResult != nil {
			renderSearch(w, *part.SearchResult)
		}
	case model.PartImageURL:
		if part.ImageURL != nil {
			dimColor.Fprintf(w, "[image] %s\n", clipURL(part.ImageURL.URL))
		}
	case model.PartText:
		if text := strings.TrimSpace(part.Text); text != "" {
			fmt.Fprintln(w, text)
		}
	}
}

func renderSet(w io.Writer, set flashcard.Set) {
	titleColor.Fprintf(w, "Flashcard set: %s (%d cards)\n", set.Title, len(set.Cards))
	if desc := strings.TrimSpace(set.Description); desc != "" {
		for _, line := range wrapText(desc, cardWidth) {
			dimColor.Fprintln(w, line)
		}
	}
	for i, card := range set.Cards {
		renderCard(w, card, fmt.Sprintf("%d/%d", i+1, len(set.Cards)))
	}
}

func renderCard(w io.Writer, card flashcard.Card, position string) {
	inner := cardWidth - 4
	var body []string
	body = append(body, wrapPrefixed("Q: ", card.Question, inner)...)
	switch card.Type {
	case flashcard.KindBasic:
		body = append(body, wrapPrefixed("A: ", card.Answer, inner)...)
	case flashcard.KindMCQ:
		for _, opt := range card.Options {
			mark := "  "
			if opt.ID == card.CorrectOptionID {
				mark = correctColor.Sprint("✓ ")
			}
			body = append(body, wrapPrefixed(mark+opt.ID+") ", opt.Text, inner)...)
		}
	case flashcard.KindTrueFalse:
		answer := "False"
		if card.IsTrue != nil && *card.IsTrue {
			answer = "True"
		}
		body = append(body, "A: "+correctColor.Sprint(answer))
	}
	if exp := strings.TrimSpace(card.Explanation); exp != "" {
		body = append(body, "")
		for _, line := range wrapText(exp, inner) {
			body = append(body, dimColor.Sprint(line))
		}
	}
	if card.ImageURL != "" {
		body = append(body, dimColor.Sprint("[image] "+clipURL(card.ImageURL)))
	}

	label := " " + cardLabel(card.Type) + " "
	if position != "" {
		label += position + " "
	}
	top := "┌─" + accentColor.Sprint(label) + strings.Repeat("─", max(0, cardWidth-3-runewidth.StringWidth(label))) + "┐"
	fmt.Fprintln(w, top)
	for _, line := range body {
		fmt.Fprintln(w, "│ "+padVisible(line, inner)+" │")
	}
	fmt.Fprintln(w, "└"+strings.Repeat("─", cardWidth-2)+"┘")
}

func cardLabel(kind flashcard.Kind) string {
	switch kind {
	case flashcard.KindMCQ:
		return "Multiple choice"
	case flashcard.KindTrueFalse:
		return "True / False"
	default:
		return "Flashcard"
	}
}

func renderSearch(w io.Writer, res model.SearchResult) {
	titleColor.Fprintf(w, "%s results for %q\n", res.Source, res.Query)
	if len(res.Items) == 0 {
		dimColor.Fprintln(w, "  (no results)")
		return
	}
	for i, item := range res.Items {
		title := item.Title
		if title == "" {
			title = item.URL
		}
		fmt.Fprintf(w, "  %d. %s\n", i+1, runewidth.Truncate(title, cardWidth, "…"))
		if item.URL != "" && item.URL != title {
			accentColor.Fprintf(w, "     %s\n", clipURL(item.URL))
		}
		if item.ImageURL != "" && item.ImageURL != item.URL {
			accentColor.Fprintf(w, "     %s\n", clipURL(item.ImageURL))
		}
		if item.Snippet != "" {
			dimColor.Fprintf(w, "     %s\n", runewidth.Truncate(item.Snippet, cardWidth, "…"))
		}
	}
}

// printTranscript replays the visible part of a stored conversation.
func printTranscript(w io.Writer, conv *conversation.Conversation) {
	titleColor.Fprintf(w, "# %s\n", conv.Title)
	for _, msg := range conv.Messages {
		switch msg.Role {
		case model.RoleUser:
			accentColor.Fprint(w, "> ")
			fmt.Fprintln(w, msg.PlainText())
			for _, part := range msg.Parts {
				if part.Type == model.PartImageURL {
					renderPart(w, part)
				}
			}
		case model.RoleAssistant:
			text := strings.TrimSpace(msg.PlainText())
			if text == "" {
				continue
			}
			accentColor.Fprint(w, "* ")
			fmt.Fprintln(w, text)
		case model.RoleTool:
			for _, part := range msg.Parts {
				if !part.IsModelVisible() {
					renderPart(w, part)
				}
			}
		}
	}
}

func formatUsage(u model.Usage) string {
	return fmt.Sprintf("prompt=%d completion=%d total=%d", u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}

func wrapPrefixed(prefix, text string, width int) []string {
	indent := strings.Repeat(" ", runewidth.StringWidth(stripANSI(prefix)))
	lines := wrapText(text, width-len(indent))
	if len(lines) == 0 {
		return []string{prefix}
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if i == 0 {
			out[i] = prefix + line
		} else {
			out[i] = indent + line
		}
	}
	return out
}

// wrapText breaks text on spaces so no line exceeds width display cells.
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var lines []string
	for _, para := range strings.Split(strings.TrimSpace(text), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := ""
		for _, word := range words {
			for runewidth.StringWidth(word) > width {
				if current != "" {
					lines = append(lines, current)
					current = ""
				}
				head := runewidth.Truncate(word, width, "")
				if head == "" {
					_, size := utf8.DecodeRuneInString(word)
					head = word[:size]
				}
				lines = append(lines, head)
				word = word[len(head):]
			}
			switch {
			case current == "":
				current = word
			case runewidth.StringWidth(current)+1+runewidth.StringWidth(word) <= width:
				current += " " + word
			default:
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	return lines
}

// padVisible right-pads s to width display cells, ignoring color escapes.
func padVisible(s string, width int) string {
	visible := runewidth.StringWidth(stripANSI(s))
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func clipURL(u string) string {
	if strings.HasPrefix(u, "data:") {
		if i := strings.IndexByte(u, ','); i > 0 {
			return u[:i] + ",…"
		}
	}
	return runewidth.Truncate(u, cardWidth, "…")
}
