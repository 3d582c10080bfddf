package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/Rhoxio/ChongBot/chongbot"
	"github.com/spf13/cobra"
)

var checkDryRun bool

var checkCmd = &cobra.Command{
	Use:   "check [flags]",
	Short: "Runs the raid signup check once and exits",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		bot, err := chongbot.New(cfg)
		if err != nil {
			log.Fatalf("error creating chongbot: %s", err.Error())
		}

		result, err := bot.RunSignupCheckOnce(ctx, checkDryRun)
		if err != nil {
			log.Fatalf("error running signup check: %s", err.Error())
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("error encoding result: %s", err.Error())
		}
		fmt.Println(string(out))
	},
}

//nolint:gochecknoinits
func init() {
	checkCmd.Flags().BoolVar(
		&checkDryRun,
		"dry-run",
		false,
		"Report what would be sent without sending reminders",
	)
	rootCmd.AddCommand(checkCmd)
}
