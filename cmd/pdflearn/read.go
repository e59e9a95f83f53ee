package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/analysis"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/pdf"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

var readCmd = &cobra.Command{
	Use:   "read <file.pdf>",
	Short: "Page through a PDF with on-demand analysis",
	Long: `Page through a PDF in the library. Reading progress is saved as you go.

Commands at the prompt:
  n, <enter>   next page
  p            previous page
  g <page>     go to page
  a [context]  analyze the current page
  auto         toggle analysis on every page change
  q            quit

Ctrl-C stops an analysis in progress.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		auto, _ := cmd.Flags().GetBool("auto")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		r := &reader{
			client: client,
			doc:    args[0],
			in:     cmd.InOrStdin(),
			out:    cmd.OutOrStdout(),
		}
		return r.run(cmd.Context(), page, auto)
	},
}

func init() {
	readCmd.Flags().Int("page", 0, "page to open (default: last page read)")
	readCmd.Flags().Bool("auto", false, "analyze every page on arrival")
}

type reader struct {
	client *apiClient
	doc    string
	in     io.Reader
	out    io.Writer

	engine *analysis.Engine
	auto   bool
	total  int
	page   int
}

func (r *reader) run(ctx context.Context, page int, auto bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store := remoteStore{client: r.client}

	resp, err := r.client.get(ctx, docPath("/pdf", r.doc, "info"))
	if err != nil {
		return err
	}
	var info pdf.Info
	if err := decodeJSON(resp, &info); err != nil {
		return err
	}
	r.total = info.NumPages
	if r.total == 0 {
		return fmt.Errorf("%s has no pages", r.doc)
	}

	if page == 0 {
		page = 1
		if p, err := store.GetProgress(r.doc); err == nil {
			page = min(p.LastPage, r.total)
		} else if !errors.Is(err, storage.ErrNotFound) {
			printWarning("could not read progress: %v", err)
		}
	}

	r.auto = auto
	printer := &answerPrinter{w: r.out}
	r.engine = analysis.New(r.client.streams(),
		analysis.WithRenderer(analysisRenderer(printer)),
		analysis.WithProgress(store),
		analysis.WithAuto(auto),
	)
	defer r.engine.Cancel()

	fmt.Fprintf(r.out, "%s by %s, %d pages\n", colorize(colorBold, info.Title), info.Author, r.total)
	if err := r.goTo(ctx, page); err != nil {
		return err
	}

	sc := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, colorize(colorCyan, fmt.Sprintf("[%d/%d]> ", r.page, r.total)))
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		quit, err := r.handle(ctx, strings.TrimSpace(sc.Text()))
		if err != nil {
			printError("%v", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *reader) handle(ctx context.Context, line string) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "", "n":
		return false, r.goTo(ctx, r.page+1)
	case "p":
		return false, r.goTo(ctx, r.page-1)
	case "g":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("usage: g <page>")
		}
		return false, r.goTo(ctx, n)
	case "a":
		return false, r.analyze(ctx, arg)
	case "auto":
		r.auto = !r.auto
		r.engine.SetAuto(r.auto)
		if r.auto {
			printStep("auto analysis on")
		} else {
			printStep("auto analysis off")
		}
		return false, nil
	case "q", "quit", "exit":
		return true, nil
	}
	return false, fmt.Errorf("unknown command %q", cmd)
}

// goTo shows page n, records progress, and lets the engine react.
func (r *reader) goTo(ctx context.Context, n int) error {
	if n < 1 || n > r.total {
		return fmt.Errorf("page %d is out of range 1..%d", n, r.total)
	}
	resp, err := r.client.get(ctx, docPath("/pdf", r.doc, "text", strconv.Itoa(n)))
	if err != nil {
		return err
	}
	var text struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(resp, &text); err != nil {
		return err
	}
	r.page = n

	fmt.Fprintf(r.out, "\n%s\n", colorize(colorBold, fmt.Sprintf("--- Page %d ---", n)))
	if strings.TrimSpace(text.Text) == "" {
		fmt.Fprintln(r.out, colorize(colorDim, "(no extractable text)"))
	} else {
		fmt.Fprintln(r.out, strings.TrimSpace(text.Text))
	}

	if err := (remoteStore{client: r.client}).SaveProgress(r.doc, n, r.total); err != nil {
		printWarning("could not save progress: %v", err)
	}

	s, err := r.engine.PageChanged(ctx, analysis.Input{DocumentRef: r.doc, Page: n})
	if err != nil {
		return err
	}
	if s != nil {
		waitForReply(ctx, r.engine)
	}
	return nil
}

func (r *reader) analyze(ctx context.Context, extra string) error {
	if _, err := r.engine.Analyze(ctx, analysis.Input{DocumentRef: r.doc, Page: r.page, Context: extra}); err != nil {
		return err
	}
	waitForReply(ctx, r.engine)
	return nil
}
