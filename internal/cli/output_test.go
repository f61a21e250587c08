package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data, func(w io.Writer) { fmt.Fprintln(w, "ignored in json mode") })
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "success"}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E201", "corrupt record", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)
	assert.Equal(t, "corrupt record", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "coords.cue", "line": "42"}
	err := formatter.Error("E102", "time must be positive", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Success(42, func(w io.Writer) { fmt.Fprintln(w, "✓ 42 records") })
	require.NoError(t, err)
	assert.Equal(t, "✓ 42 records\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success("plain", nil))
	assert.Equal(t, "plain\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	err := formatter.Error("E005", "not found", map[string]string{"path": "x"})
	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Equal(t, "Error [E005]: not found\n", errOut.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	err := formatter.Error("E001", "failed", map[string]string{"path": "x"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]: failed")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    string
	}{
		{"verbose", true, "Processing base.ibdf\n"},
		{"quiet", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: tt.verbose}
			formatter.VerboseLog("Processing %s", "base.ibdf")
			assert.Empty(t, out.String(), "verbose logs never corrupt stdout")
			assert.Equal(t, tt.want, errOut.String())
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	cause := errors.New("disk full")

	err := formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output", cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, ErrCodeWriteFailed, resp.Error.Code)
	assert.Equal(t, "writing output: disk full", resp.Error.Message)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "differ")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "differ"))))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("unknown flag: --nope")))
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "bad", NewExitError(ExitFailure, "bad").Error())
	assert.Equal(t, "bad: cause", WrapExitError(ExitFailure, "bad", errors.New("cause")).Error())
}
