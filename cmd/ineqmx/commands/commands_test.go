package commands

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ineqmx/internal/app"
	"ineqmx/internal/operations"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "download", "process", "export", "indicators", "gini", "serve", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestStepFlagsRequest(t *testing.T) {
	tests := []struct {
		name  string
		flags stepFlags
		steps []string
		want  operations.OperationRequest
	}{
		{
			name: "full pipeline",
			want: operations.OperationRequest{Mode: operations.ModeFull},
		},
		{
			name:  "offline with years",
			flags: stepFlags{offline: true, enighYears: []int{2020, 2022}, levels: []string{"state"}},
			want: operations.OperationRequest{
				Mode:       operations.ModeOffline,
				EnighYears: []int{2020, 2022},
				Levels:     []string{"state"},
			},
		},
		{
			name:  "selected steps",
			steps: []string{operations.StageIDInequality, operations.StageIDExport},
			want: operations.OperationRequest{
				Mode:  operations.ModeFull,
				Steps: []string{operations.StageIDInequality, operations.StageIDExport},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flags.request(tt.steps...))
		})
	}
}

func TestOfflineFlagOnlyOnRun(t *testing.T) {
	assert.NotNil(t, runCmd.Flags().Lookup("offline"))
	assert.Nil(t, downloadCmd.Flags().Lookup("offline"))
	assert.NotNil(t, exportCmd.Flags().Lookup("enigh-years"))
}

func TestPrintSummary(t *testing.T) {
	enigh := operations.NewStepState(operations.StageIDEnigh, operations.StageNameEnigh)
	enigh.Complete()
	export := operations.NewStepState(operations.StageIDExport, operations.StageNameExport)
	export.Fail(errors.New("disk full"))

	var buf bytes.Buffer
	printSummary(&buf, &operations.OperationResponse{
		ID:       "op-1",
		Status:   operations.OperationStatusFailed,
		Duration: 1500 * time.Millisecond,
		Steps: map[string]*operations.StepState{
			operations.StageIDExport: export,
			operations.StageIDEnigh:  enigh,
		},
		Error: "export failed",
	})

	out := buf.String()
	assert.Contains(t, out, "operation op-1: failed (1.5s)")
	assert.Contains(t, out, "error: disk full")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("enigh")), bytes.Index(buf.Bytes(), []byte("export ")))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), app.AppName+" "+app.Version)
}
