package llmagent

import (
	"fmt"
	"strings"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

// secondPass sends the tool outputs back to the model without tools and
// delivers its answer.
func (c *cycle) secondPass() (*Result, error) {
	c.setState(StateFinalizing)
	assistant := model.Message{
		Role:      model.RoleAssistant,
		Text:      c.modelText.String(),
		ToolCalls: c.acc.toolCalls(),
	}
	toolMessages := c.toolMessages()
	messages := make([]model.Message, 0, 2+len(toolMessages))
	messages = append(messages, assistant)
	messages = append(messages, toolMessages...)

	history := make([]model.Message, 0, len(c.history)+len(messages))
	history = append(history, c.history...)
	history = append(history, messages...)

	resp, err := c.agent.cfg.Model.Complete(c.ctx, &model.Request{Messages: history})
	if err != nil {
		err = c.completionError(err)
		if !model.IsCanceled(err) {
			c.reportUsage()
		}
		return nil, err
	}
	if c.ctx.Err() != nil {
		return nil, model.Canceled(c.ctx.Err())
	}
	if resp == nil {
		resp = &model.Response{}
	}
	if !resp.Usage.IsZero() {
		c.addUsage(resp.Usage)
	}
	if len(resp.Message.ToolCalls) > 0 {
		c.logger.Warn("follow-up completion requested tools; ignoring", "count", len(resp.Message.ToolCalls))
	}
	text := resp.Message.PlainText()
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("follow-up completion returned no text")
	} else {
		c.emitText(c.separator() + text)
		messages = append(messages, model.Message{Role: model.RoleAssistant, Text: text})
	}
	c.setState(StateDone)
	c.reportUsage()
	return c.result(messages), nil
}

// toolMessages builds one tool message per call, in call order. The
// structured payload rides along as a part so stored history can render it.
func (c *cycle) toolMessages() []model.Message {
	byID := make(map[string]ToolOutcome, len(c.outcomes))
	for _, o := range c.outcomes {
		byID[o.Call.ID] = o
	}
	calls := c.acc.toolCalls()
	out := make([]model.Message, 0, len(calls))
	for _, call := range calls {
		msg := model.Message{
			Role:       model.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
		}
		outcome, ok := byID[call.ID]
		switch {
		case !ok || outcome.Result == nil:
			msg.Text = fmt.Sprintf("unknown tool %s", call.Name)
		default:
			msg.Text = outcome.Result.ModelContent()
			if outcome.Result.Content != nil {
				msg.Parts = []model.ContentPart{model.TextPart(msg.Text), *outcome.Result.Content}
			}
		}
		out = append(out, msg)
	}
	return out
}
