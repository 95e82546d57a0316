package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/autoflip/internal/report"
	"github.com/andresmejia3/autoflip/internal/types"
	"github.com/andresmejia3/autoflip/internal/utils"
	"github.com/spf13/cobra"
)

var (
	showJSON  bool
	showCrops bool
)

var showCmd = &cobra.Command{
	Use:         "show <analysis_id | report.json>",
	Short:       "Print a saved analysis or a report file",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsDB: unlessReportFile},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runShow(cmd.Context(), args[0], os.Stdout)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print the full report as JSON")
	showCmd.Flags().BoolVar(&showCrops, "crops", false, "Also print every smoothed crop")
	rootCmd.AddCommand(showCmd)
}

func runShow(ctx context.Context, id string, out io.Writer) error {
	var (
		r   *types.AnalysisReport
		err error
	)
	if isReportFile(id) {
		r, err = report.Read(id)
	} else {
		r, err = DB.GetAnalysis(ctx, id)
	}
	if err != nil {
		utils.ShowError("Failed to load analysis", err, nil)
		return err
	}

	if showJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	return printReport(out, r, showCrops)
}

// printReport renders a report as tables: the header, one row per sampled frame and
// optionally one row per smoothed crop.
func printReport(out io.Writer, r *types.AnalysisReport, crops bool) error {
	fmt.Fprintf(out, "Video:        %s\n", r.InputPath)
	fmt.Fprintf(out, "Aspect ratio: %s\n", r.TargetAspectRatio)
	fmt.Fprintf(out, "Dimensions:   %dx%d, %d frames, %.2f fps (%s)\n",
		r.OriginalDimensions[0], r.OriginalDimensions[1], r.FrameCount, r.FPS, fmtTime(durationOf(r)))
	st := r.Stats
	fmt.Fprintf(out, "Detections:   %d faces, %d poses, %d hands, average confidence %.2f\n\n",
		st.TotalFaces, st.TotalPoses, st.TotalHands, st.AverageConfidence)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FRAME\tTIME\tFACES\tPOSES\tHANDS\tCROP\tMETHOD\tCONF")
	fmt.Fprintln(w, "-----\t----\t-----\t-----\t-----\t----\t------\t----")
	for _, fa := range r.FrameAnalyses {
		s := fa.Salience
		c := fa.Crop
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d,%d %dx%d\t%s\t%.2f\n",
			fa.FrameIndex, fmtTime(fa.Timestamp), len(s.Faces), len(s.Poses), len(s.Hands),
			c.X, c.Y, c.Width, c.Height, c.Method, c.Confidence)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !crops {
		return nil
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FRAME\tTIME\tCROP\tMETHOD\tCONF")
	fmt.Fprintln(w, "-----\t----\t----\t------\t----")
	for _, c := range r.SmoothedCrops {
		fmt.Fprintf(w, "%d\t%s\t%d,%d %dx%d\t%s\t%.2f\n",
			c.FrameIndex, fmtTime(c.Timestamp), c.X, c.Y, c.Width, c.Height, c.Method, c.Confidence)
	}
	return w.Flush()
}

// isReportFile reports whether arg names a JSON report rather than a saved analysis id.
func isReportFile(arg string) bool {
	return strings.EqualFold(filepath.Ext(arg), ".json")
}

func durationOf(r *types.AnalysisReport) float64 {
	if r.FPS <= 0 {
		return 0
	}
	return float64(r.FrameCount) / r.FPS
}
