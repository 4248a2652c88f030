package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agents",
	Short: "Study assistant: homework grading, math lab, video lessons and exams on tiered Gemini models",
	Long: `agents runs the study pipelines over a SMART/FAST pair of Gemini models.
A quota error on the primary tier is retried once on the fallback tier.

Configuration comes from the environment (and .env): GEMINI_API_KEY,
MODEL_SMART, MODEL_FAST, MODEL_IMAGE_SMART, MODEL_IMAGE_FAST, TIERS_FILE,
DB_DRIVER, DATABASE_URL, DB_PATH, TELEGRAM_BOT_TOKEN, WEBHOOK_URL, PORT.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, botCmd, homeworkCmd, solveCmd, videoCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
