package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/turtacn/hmd/internal/application/structgen"
	"github.com/turtacn/hmd/internal/domain/molecule"
	"github.com/turtacn/hmd/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/hmd/pkg/errors"
)

// GenerateOptions holds the generate command flags.
type GenerateOptions struct {
	Input     string
	OutputDir string
	FileName  string
	RunID     string
}

// NewGenerateCmd creates the generate command.
func NewGenerateCmd(factory ServiceFactory) *cobra.Command {
	opts := &GenerateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate every saturated structure of a molecular formula",
		Long: "Generate enumerates the saturated, connected, non-isomorphic structures of\n" +
			"the input atoms and writes them to <dir>/output.sdf as they are found.",
		Example: "  hmd generate -i C3C3C2C2C1C1 -d out -v",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, factory, opts)
		},
	}

	f := cmd.Flags()
	f.SetNormalizeFunc(normalizeGenerateFlags)
	f.StringVarP(&opts.Input, "input", "i", "", "molecular information string, e.g. C3C3C2C2C1C1 (required)")
	f.StringVarP(&opts.OutputDir, "dir", "d", "", "output directory (required)")
	f.StringVar(&opts.FileName, "file-name", "", "SD file name inside the output directory (default: output.sdf)")
	f.StringVar(&opts.RunID, "run-id", "", "run identifier (default: random UUID)")
	return cmd
}

// generateFlagAliases are the alternative long names of --input and --dir.
var generateFlagAliases = map[string]string{
	"molecularinfo": "input",
	"filedir":       "dir",
}

func normalizeGenerateFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if to, ok := generateFlagAliases[name]; ok {
		name = to
	}
	return pflag.NormalizedName(name)
}

func runGenerate(cmd *cobra.Command, factory ServiceFactory, opts *GenerateOptions) error {
	if opts.Input == "" || opts.OutputDir == "" {
		_ = cmd.Usage()
		return errors.New(errors.ErrCodeFlagMissing, "both --input and --dir are required")
	}
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	// Input errors surface before any backend is contacted.
	if _, err := molecule.Build(opts.Input); err != nil {
		return err
	}
	if cc.Verbose {
		fmt.Fprintln(out, "Input molecule is built")
	}

	ctx := cmd.Context()
	if cc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cc.Timeout)
		defer cancel()
	}

	svc, closer, err := factory(ctx, cc)
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				cc.Logger.Warn("failed to close backends", logging.Err(cerr))
			}
		}()
	}

	if cc.Verbose {
		fmt.Fprintln(out, "Start generating structures")
	}
	res, err := svc.Generate(ctx, &structgen.GenerateInput{
		Formula:   opts.Input,
		OutputDir: opts.OutputDir,
		FileName:  opts.FileName,
		RunID:     opts.RunID,
	})
	if err != nil {
		return err
	}

	if cc.OutputFormat == "json" {
		return PrintResult(cmd, res)
	}
	if cc.Verbose {
		fmt.Fprintf(out, "Number of generated structures: %d\n", res.Accepted)
		fmt.Fprintf(out, "Time: %.3f seconds\n", res.Duration.Seconds())
		if res.Artifact != nil {
			fmt.Fprintf(out, "Uploaded: %s/%s\n", res.Artifact.Bucket, res.Artifact.ObjectKey)
		}
	}
	return nil
}
