// Command chat is a terminal client for the tutoring server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"socratic/models"
)

const (
	cmdEvaluate = "/evaluate"
	cmdQuit     = "/quit"
)

var (
	serverURL string
	userEmail string
	timeout   time.Duration

	category    string
	topic       string
	customTopic string
	sessionID   string
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the Socratic mentor from the terminal",
	Long: `chat starts tutoring conversations against a running server,
lets you answer the mentor's questions line by line and shows your
evaluation at the end.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List categories and their topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		categories, err := client().Categories(cmd.Context())
		if err != nil {
			return err
		}
		printCategories(cmd.OutOrStdout(), categories)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a conversation and chat until it ends",
	Long: `Start a conversation on a catalog topic (--category and --topic) or
on your own topic (--custom). Type your answers; enter /evaluate to
finish and get scored, or /quit to leave without an evaluation.`,
	RunE: runStart,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show your stored conversations",
	RunE:  runHistory,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SOCRATIC_SERVER", "http://localhost:8080"), "Server base URL")
	rootCmd.PersistentFlags().StringVar(&userEmail, "email", os.Getenv("SOCRATIC_EMAIL"), "Your email, used as the conversation owner")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Per-request timeout")

	startCmd.Flags().StringVar(&category, "category", "", "Catalog category")
	startCmd.Flags().StringVar(&topic, "topic", "", "Topic within the category")
	startCmd.Flags().StringVar(&customTopic, "custom", "", "Free-form topic instead of a catalog one")
	startCmd.MarkFlagsMutuallyExclusive("custom", "category")
	startCmd.MarkFlagsRequiredTogether("category", "topic")

	historyCmd.Flags().StringVar(&sessionID, "session", "", "Show a single conversation in full")

	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(historyCmd)
}

func client() *apiClient {
	return newAPIClient(strings.TrimRight(serverURL, "/"), timeout)
}

func runStart(cmd *cobra.Command, args []string) error {
	if userEmail == "" {
		return fmt.Errorf("--email is required")
	}
	if customTopic == "" && category == "" {
		return fmt.Errorf("either --custom or --category with --topic is required")
	}

	ctx := cmd.Context()
	api := client()

	var (
		started *models.StartConversationResponse
		err     error
	)
	if customTopic != "" {
		started, err = api.StartCustom(ctx, models.StartCustomRequest{CustomTopic: customTopic, UserEmail: userEmail})
	} else {
		started, err = api.StartPredefined(ctx, models.StartPredefinedRequest{Category: category, Topic: topic, UserEmail: userEmail})
	}
	if err != nil {
		return err
	}

	return chatLoop(ctx, api, started, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop relays input lines until the session finishes or the user leaves.
func chatLoop(ctx context.Context, api *apiClient, started *models.StartConversationResponse, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Session %s\n\nMentor: %s\n", started.SessionID, started.BotIntro)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdEvaluate:
			return printEvaluation(ctx, api, started.SessionID, out)
		}

		resp, err := api.SendMessage(ctx, started.SessionID, models.SendMessageRequest{UserEmail: userEmail, Message: line})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}

		fmt.Fprintf(out, "\nMentor: %s\n", resp.BotReply)
		if resp.Finished {
			fmt.Fprintf(out, "\n(conversation finished after %d turns)\n", resp.TurnCount)
			return printEvaluation(ctx, api, started.SessionID, out)
		}
	}
}

func printEvaluation(ctx context.Context, api *apiClient, id string, out io.Writer) error {
	fmt.Fprintln(out, "\nEvaluating...")
	eval, err := api.Evaluate(ctx, id)
	if err != nil {
		return err
	}

	if len(eval.Scores) == 0 {
		fmt.Fprintf(out, "\n%s\n", eval.Evaluation)
		return nil
	}

	fmt.Fprintln(out)
	total := 0
	for _, s := range eval.Scores {
		fmt.Fprintf(out, "  %-18s %d/5  %s\n", s.Criterion, s.Score, s.Feedback)
		total += s.Score
	}
	fmt.Fprintf(out, "\n  Total: %d/%d\n", total, len(eval.Scores)*5)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if userEmail == "" {
		return fmt.Errorf("--email is required")
	}

	api := client()
	out := cmd.OutOrStdout()

	if sessionID != "" {
		record, err := api.Conversation(cmd.Context(), userEmail, sessionID)
		if err != nil {
			return err
		}
		printRecord(out, record)
		return nil
	}

	records, err := api.Conversations(cmd.Context(), userEmail)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return nil
	}

	for _, r := range records {
		status := "open"
		if r.Evaluation != nil {
			status = "evaluated"
		}
		fmt.Fprintf(out, "  %s  %-10s  %s  %s\n", r.CreatedAt.Format("2006-01-02 15:04"), status, r.SessionID, r.Topic)
	}
	return nil
}

func printCategories(out io.Writer, categories map[string][]string) {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintln(out, name)
		for _, t := range categories[name] {
			fmt.Fprintf(out, "  - %s\n", t)
		}
	}
}

func printRecord(out io.Writer, r *models.ConversationRecord) {
	fmt.Fprintf(out, "%s (%s)\n\n", r.Topic, r.SessionID)
	for _, m := range r.Turns {
		speaker := "You"
		if m.Sender == models.SenderBot {
			speaker = "Mentor"
		}
		fmt.Fprintf(out, "%s: %s\n\n", speaker, m.Message)
	}
	if r.Evaluation != nil {
		fmt.Fprintf(out, "Evaluation:\n%s\n", r.Evaluation.Text)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
