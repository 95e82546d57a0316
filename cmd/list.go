package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/autoflip/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List all analyses saved in the database",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		analyses, err := DB.ListAnalyses(cmd.Context())
		if err != nil {
			utils.ShowError("Failed to list analyses", err, nil)
			return err
		}

		if len(analyses) == 0 {
			fmt.Println("No analyses found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tVIDEO\tASPECT\tSIZE\tFRAMES\tSAMPLES\tAVG CONF\tCREATED")
		fmt.Fprintln(w, "--\t-----\t------\t----\t------\t-------\t--------\t-------")
		for _, a := range analyses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%d\t%d\t%.2f\t%s\n",
				a.ID, filepath.Base(a.VideoPath), a.TargetAspectRatio, a.Width, a.Height,
				a.FrameCount, a.SampledFrames, a.AverageConfidence,
				a.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
