package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/hmd/pkg/errors"
)

// NewClassesCmd creates the classes command, which prints the initial
// equivalence classes and symmetry labels of a formula.
func NewClassesCmd(factory ServiceFactory) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "Show the equivalence classes of the input atoms",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				_ = cmd.Usage()
				return errors.New(errors.ErrCodeFlagMissing, "--input is required")
			}
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			svc, closer, err := factory(cmd.Context(), cc)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			res, err := svc.Classes(cmd.Context(), input)
			if err != nil {
				return err
			}
			if cc.OutputFormat == "json" {
				return PrintResult(cmd, res)
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(res.Atoms))
			for i, a := range res.Atoms {
				rows = append(rows, []string{strconv.Itoa(i), a, strconv.Itoa(res.Labels[i])})
			}
			fmt.Fprint(out, FormatTable([]string{"INDEX", "ATOM", "LABEL"}, rows))
			fmt.Fprintln(out)

			rows = rows[:0]
			for _, c := range res.Classes {
				rows = append(rows, []string{c.Key, joinInts(c.Indices)})
			}
			fmt.Fprint(out, FormatTable([]string{"CLASS", "INDICES"}, rows))
			fmt.Fprintf(out, "\nPending indices: %s\n", joinInts(res.Pending))
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "molecular information string (required)")
	return cmd
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
