package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"study-agents/api/internal/agent/types"
)

var homeworkCmd = &cobra.Command{
	Use:   "homework <image>",
	Short: "Grade a homework photo and print the report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		strictness, _ := cmd.Flags().GetString("strictness")
		subject, _ := cmd.Flags().GetString("subject")
		grade, _ := cmd.Flags().GetString("grade")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		rep, err := a.orch.AnalyzeHomework(ctx, types.ImageRequest(data, ""), types.HomeworkOptions{
			Strictness: types.Strictness(strictness),
			Subject:    subject,
			GradeLevel: grade,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

var solveCmd = &cobra.Command{
	Use:   "solve [problem...]",
	Short: "Solve a math problem with independent verification",
	Example: `
agents solve "integrate x^2 from 0 to 3"
echo "mean height of the five tallest mountains in km" | agents solve --search`,
	RunE: func(cmd *cobra.Command, args []string) error {
		problem, err := argsOrStdin(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		search, _ := cmd.Flags().GetBool("search")
		notation, _ := cmd.Flags().GetString("notation")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.orch.SolveMath(ctx, types.MathRequest{
			Problem:          problem,
			Notation:         notation,
			UseRealWorldData: search,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var videoCmd = &cobra.Command{
	Use:   "video <file>",
	Short: "Summarize a lesson video and generate review questions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		questions, _ := cmd.Flags().GetInt("questions")
		focus, _ := cmd.Flags().GetString("focus")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		req := types.PipelineRequest{Kind: types.KindVideo, Data: data}
		res, err := a.orch.AnalyzeVideo(ctx, req, types.VideoOptions{NumQuestions: questions, Focus: focus})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	homeworkCmd.Flags().String("strictness", "", "lenient|standard|strict")
	homeworkCmd.Flags().String("subject", "", "subject hint")
	homeworkCmd.Flags().String("grade", "", "grade level hint")

	solveCmd.Flags().BoolP("search", "s", false, "ground the problem with web search first")
	solveCmd.Flags().String("notation", "", "preferred notation, e.g. \"metric\"")

	videoCmd.Flags().IntP("questions", "n", 5, "number of review questions (0-50)")
	videoCmd.Flags().String("focus", "", "what to pay attention to")
}

// argsOrStdin joins args, or reads stdin when there are none and it is piped.
func argsOrStdin(args []string, in io.Reader) (string, error) {
	if s := strings.TrimSpace(strings.Join(args, " ")); s != "" {
		return s, nil
	}
	if f, ok := in.(*os.File); ok {
		if st, err := f.Stat(); err == nil && st.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no problem provided")
		}
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("no problem provided")
}
