package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/hmd/internal/application/structgen"
	"github.com/turtacn/hmd/internal/config"
	"github.com/turtacn/hmd/internal/domain/generation"
	"github.com/turtacn/hmd/internal/infrastructure/storage/minio"
	apperrors "github.com/turtacn/hmd/pkg/errors"
)

type fakeService struct {
	input   *structgen.GenerateInput
	result  *structgen.GenerateResult
	err     error
	classes *structgen.ClassesResult
}

func (f *fakeService) Generate(_ context.Context, in *structgen.GenerateInput) (*structgen.GenerateResult, error) {
	f.input = in
	return f.result, f.err
}

func (f *fakeService) Classes(_ context.Context, formula string) (*structgen.ClassesResult, error) {
	if f.classes != nil {
		return f.classes, nil
	}
	return nil, apperrors.New(apperrors.ErrCodeUnknownElement, "unknown element").WithDetail(formula)
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

type harness struct {
	svc     *fakeService
	closer  *closeCounter
	calls   int
	lastCfg *config.Config
}

func (h *harness) factory(_ context.Context, cc *CLIContext) (structgen.Service, io.Closer, error) {
	h.calls++
	h.lastCfg = cc.Config
	return h.svc, h.closer, nil
}

func newHarness() *harness {
	return &harness{svc: &fakeService{}, closer: &closeCounter{}}
}

func execute(t *testing.T, h *harness, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand(h.factory)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand(nil)
	assert.Equal(t, "hmd", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"generate", "classes", "version"} {
		assert.True(t, names[name], "missing subcommand %q", name)
	}

	for _, flag := range []string{"config", "verbose", "output", "workers", "dedup", "kafka", "postgres", "upload", "metrics", "timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestGenerate_MissingFlagsPrintsUsage(t *testing.T) {
	h := newHarness()

	out, err := execute(t, h, "generate", "-d", "out")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFlagMissing))
	assert.Contains(t, out, "Usage:")
	assert.Zero(t, h.calls)

	_, err = execute(t, h, "generate", "-i", "C3C3")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFlagMissing))
	assert.Zero(t, h.calls)
}

func TestGenerate_InvalidFormulaFailsBeforeBackends(t *testing.T) {
	h := newHarness()
	_, err := execute(t, h, "generate", "-i", "C3Xx3", "-d", "out")
	require.Error(t, err)
	assert.True(t, apperrors.IsInputError(err))
	assert.Zero(t, h.calls)
}

func TestGenerate_VerboseMessages(t *testing.T) {
	h := newHarness()
	h.svc.result = &structgen.GenerateResult{
		RunID:    "run-1",
		Accepted: 7,
		Duration: 1234 * time.Millisecond,
	}

	out, err := execute(t, h, "generate", "-i", "C3C3C2C2C1C1", "-d", "out", "-v")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"Input molecule is built",
		"Start generating structures",
		"Number of generated structures: 7",
		"Time: 1.234 seconds",
	}, lines)

	require.NotNil(t, h.svc.input)
	assert.Equal(t, "C3C3C2C2C1C1", h.svc.input.Formula)
	assert.Equal(t, "out", h.svc.input.OutputDir)
	assert.Equal(t, 1, h.closer.n)
}

func TestGenerate_QuietByDefault(t *testing.T) {
	h := newHarness()
	h.svc.result = &structgen.GenerateResult{Accepted: 1}

	out, err := execute(t, h, "generate", "-i", "C3C3", "-d", "out")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerate_LongFlagAliases(t *testing.T) {
	h := newHarness()
	h.svc.result = &structgen.GenerateResult{Accepted: 1}

	_, err := execute(t, h, "generate", "--molecularinfo", "C3C3", "--filedir", "out")
	require.NoError(t, err)
	require.NotNil(t, h.svc.input)
	assert.Equal(t, "C3C3", h.svc.input.Formula)
	assert.Equal(t, "out", h.svc.input.OutputDir)
}

func TestGenerate_UploadedArtifactIsReported(t *testing.T) {
	h := newHarness()
	h.svc.result = &structgen.GenerateResult{
		Accepted: 1,
		Artifact: &minio.UploadResult{Bucket: "runs", ObjectKey: "runs/run-1/output.sdf"},
	}

	out, err := execute(t, h, "generate", "-i", "C3C3", "-d", "out", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded: runs/runs/run-1/output.sdf")
}

func TestGenerate_JSONOutput(t *testing.T) {
	h := newHarness()
	h.svc.result = &structgen.GenerateResult{RunID: "run-9", Accepted: 3, WorkingSet: 5}

	out, err := execute(t, h, "generate", "-i", "C3C3", "-d", "out", "-o", "json", "--run-id", "run-9")
	require.NoError(t, err)

	var decoded structgen.GenerateResult
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "run-9", decoded.RunID)
	assert.Equal(t, int64(3), decoded.Accepted)
	assert.Equal(t, "run-9", h.svc.input.RunID)
}

func TestGenerate_ServiceError(t *testing.T) {
	h := newHarness()
	h.svc.err = apperrors.New(apperrors.CodeSinkWrite, "disk full")

	_, err := execute(t, h, "generate", "-i", "C3C3", "-d", "out")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSinkWrite))
	assert.Equal(t, 1, h.closer.n)
}

func TestGenerate_FlagsOverrideConfig(t *testing.T) {
	h := newHarness()
	h.svc.result = &structgen.GenerateResult{}

	_, err := execute(t, h, "generate", "-i", "C3C3", "-d", "out",
		"--workers", "4", "--kafka", "--metrics", "--log-level", "warn")
	require.NoError(t, err)
	require.NotNil(t, h.lastCfg)
	assert.Equal(t, 4, h.lastCfg.Generator.Workers)
	assert.True(t, h.lastCfg.Kafka.Enabled)
	assert.True(t, h.lastCfg.Metrics.Enabled)
	assert.False(t, h.lastCfg.Postgres.Enabled)
	assert.Equal(t, "warn", h.lastCfg.Log.Level)
}

func TestGenerate_InvalidFlagCombination(t *testing.T) {
	h := newHarness()
	_, err := execute(t, h, "generate", "-i", "C3C3", "-d", "out", "--dedup", "sqlite")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConfigInvalid))
	assert.Zero(t, h.calls)
}

func TestGenerate_ConfigFile(t *testing.T) {
	h := newHarness()
	h.svc.result = &structgen.GenerateResult{}
	path := filepath.Join(t.TempDir(), "hmd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generator:\n  workers: 3\nredis:\n  key_prefix: \"x:\"\n"), 0o644))

	_, err := execute(t, h, "generate", "-i", "C3C3", "-d", "out", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, 3, h.lastCfg.Generator.Workers)
	assert.Equal(t, "x:", h.lastCfg.Redis.KeyPrefix)
}

func TestClasses_Table(t *testing.T) {
	h := newHarness()
	h.svc.classes = &structgen.ClassesResult{
		Formula: "C3C3C1",
		Atoms:   []string{"C3", "C3", "C1"},
		Labels:  []int{2, 2, 1},
		Classes: []generation.Class{{Key: "C31", Indices: []int{2}}, {Key: "C12", Indices: []int{0, 1}}},
		Pending: []int{2, 0, 1},
	}

	out, err := execute(t, h, "classes", "-i", "C3C3C1")
	require.NoError(t, err)
	assert.Contains(t, out, "INDEX  ATOM  LABEL")
	assert.Contains(t, out, "C12    0,1")
	assert.Contains(t, out, "Pending indices: 2,0,1")
}

func TestClasses_JSONAndErrors(t *testing.T) {
	h := newHarness()
	h.svc.classes = &structgen.ClassesResult{Formula: "C4", Atoms: []string{"C4"}, Labels: []int{1}}

	out, err := execute(t, h, "classes", "-i", "C4", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"formula": "C4"`)

	_, err = execute(t, h, "classes")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFlagMissing))

	h.svc.classes = nil
	_, err = execute(t, h, "classes", "-i", "Q1")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnknownElement))
}

func TestVersion(t *testing.T) {
	h := newHarness()
	out, err := execute(t, h, "version")
	require.NoError(t, err)
	assert.Equal(t, "hmd dev (commit: unknown, built: unknown)\n", out)
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestPrintError(t *testing.T) {
	cmd := &cobra.Command{Use: "hmd"}
	buf := &bytes.Buffer{}
	cmd.SetErr(buf)

	PrintError(cmd, nil)
	assert.Empty(t, buf.String())

	PrintError(cmd, apperrors.New(apperrors.ErrCodeFlagMissing, "missing"))
	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), "missing")
	assert.Contains(t, buf.String(), "Run 'hmd --help' for usage.")

	buf.Reset()
	PrintError(cmd, apperrors.New(apperrors.CodeSinkWrite, "disk full"))
	assert.Contains(t, buf.String(), "disk full")
	assert.NotContains(t, buf.String(), "--help")
}

func TestFormatTable(t *testing.T) {
	got := FormatTable([]string{"A", "BB"}, [][]string{{"xyz", "1"}, {"q"}})
	assert.Equal(t, "A    BB\n---  --\nxyz  1 \nq      \n", got)
	assert.Empty(t, FormatTable(nil, nil))
}
