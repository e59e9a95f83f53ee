package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/conversation"
)

var chatCmd = &cobra.Command{
	Use:   "chat <file.pdf>",
	Short: "Ask questions about a page of a PDF",
	Long: `Chat about a page of a PDF. Every line is a question; the reply streams in.

Commands at the prompt:
  /page <n>        switch the page questions refer to (the conversation is kept)
  /save [title]    save the conversation as a note on the current page
  /transcript      print the conversation so far
  /clear           start over
  /quit            leave

Ctrl-C stops a reply in progress.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runChat(ctx, client, args[0], page, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().Int("page", 1, "page the questions refer to")
}

func runChat(ctx context.Context, client *apiClient, doc string, page int, in io.Reader, out io.Writer) error {
	printer := &answerPrinter{w: out}
	eng := conversation.New(client.streams(), remoteStore{client: client},
		conversation.WithRenderer(chatRenderer(printer)),
	)
	defer eng.Cancel()
	eng.SetDocument(doc, page)

	sc := bufio.NewScanner(in)
	for {
		_, p := eng.Document()
		fmt.Fprint(out, colorize(colorCyan, fmt.Sprintf("[%s p.%d] you> ", doc, p)))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			// The reply streams from another goroutine once the turn is
			// appended, so the prefix goes out first.
			fmt.Fprint(out, colorize(colorBold, "ai> "))
			if _, err := eng.AppendUserTurn(ctx, line); err != nil {
				fmt.Fprintln(out)
				printError("%v", err)
				continue
			}
			waitForReply(ctx, eng)
			continue
		}

		cmd, arg, _ := strings.Cut(line[1:], " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "page":
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				printError("usage: /page <n>")
				continue
			}
			eng.SetDocument(doc, n)
		case "save":
			note, err := eng.SaveAsNote(ctx, arg)
			if err != nil {
				printError("%v", err)
				continue
			}
			printSuccess("Saved note %q (%s)", note.Title, note.ID)
		case "transcript":
			fmt.Fprintln(out, eng.Transcript())
		case "clear":
			eng.Clear()
			printStep("conversation cleared")
		case "quit", "exit", "q":
			return nil
		default:
			printError("unknown command /%s", cmd)
		}
	}
}
