package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/autoflip/internal/utils"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Drop all saved analyses",
	Long:        "Drops every table created by --save. The schema is recreated on the next connection.",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if !resetYes && !confirm(bufio.NewReader(os.Stdin), "⚠️  Are you sure you want to DROP all database tables?") {
			fmt.Println("Aborted.")
			return nil
		}

		fmt.Println("🗑️  Clearing Database...")
		if err := DB.Reset(cmd.Context()); err != nil {
			utils.ShowError("Failed to reset database", err, nil)
			return err
		}
		fmt.Println("✨ Database Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
