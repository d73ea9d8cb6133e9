package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/genai-kitchen/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "kitchen-cli",
	Short: "Command-line tools for kitchen renovation previews",
	Long: `Kitchen CLI edits selection masks, runs generations against the image
model and inspects persisted workspace history without the web client.

Examples:
  kitchen-cli mask -i kitchen.jpg --select edges -o mask.png
  kitchen-cli edges -i kitchen.jpg -o edges.png
  kitchen-cli generate style-transfer -i kitchen.jpg -p "scandinavian, light oak" -o ./out
  kitchen-cli history stats --history-dir ./.kitchen`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
	Version: commitHash,
}

func init() {
	rootCmd.AddCommand(newMaskCmd(), newEdgesCmd(), newGenerateCmd(), newHistoryCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
