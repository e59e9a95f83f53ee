package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/analysis"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/conversation"
)

// answerPrinter writes a streamed answer to w, printing only what is new
// since the previous update. Reasoning is shown as a dim marker.
type answerPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	printed  string
	thinking bool
}

func (p *answerPrinter) update(answer string, thinking bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if thinking && !p.thinking {
		fmt.Fprint(p.w, colorize(colorDim, "(thinking) "))
	}
	p.thinking = thinking
	p.writeLocked(answer)
}

func (p *answerPrinter) writeLocked(answer string) {
	if strings.HasPrefix(answer, p.printed) {
		io.WriteString(p.w, answer[len(p.printed):])
	} else {
		// A marker split across chunks re-classified text already shown.
		io.WriteString(p.w, "\n"+answer)
	}
	p.printed = answer
}

// finish prints the rest of answer, an optional dim suffix, and resets.
func (p *answerPrinter) finish(answer, suffix string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLocked(answer)
	if suffix != "" {
		fmt.Fprint(p.w, " "+colorize(colorDim, suffix))
	}
	fmt.Fprintln(p.w)
	p.printed = ""
	p.thinking = false
}

func analysisRenderer(p *answerPrinter) analysis.Renderer {
	return analysis.RendererFunc(func(e analysis.Event) {
		switch e.Kind {
		case analysis.Updated:
			p.update(e.Answer, e.Thinking())
		case analysis.Completed:
			p.finish(e.Answer, "")
		case analysis.Failed:
			p.finish(e.Answer, fmt.Sprintf("[failed: %v]", e.Err))
		case analysis.Cancelled:
			p.finish(e.Answer, "[cancelled]")
		}
	})
}

func chatRenderer(p *answerPrinter) conversation.Renderer {
	return conversation.RendererFunc(func(e conversation.Event) {
		if e.Turn.Role != conversation.RoleAssistant {
			return
		}
		switch e.Kind {
		case conversation.TurnUpdated:
			p.update(e.Turn.Answer(), e.Turn.Thinking())
		case conversation.TurnCompleted:
			p.finish(e.Turn.Answer(), "")
		case conversation.TurnFailed:
			p.finish(e.Turn.Answer(), "[failed: "+e.Turn.Err+"]")
		case conversation.TurnCancelled:
			p.finish(e.Turn.Answer(), "[cancelled]")
		}
	})
}

type replyWaiter interface {
	Wait(ctx context.Context) error
	Cancel() bool
}

// waitForReply blocks until the current reply ends. An interrupt cancels
// the reply instead of exiting the command.
func waitForReply(ctx context.Context, w replyWaiter) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if err := w.Wait(sigCtx); err != nil {
		w.Cancel()
		w.Wait(context.Background())
	}
}
