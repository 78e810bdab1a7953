package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/server"
	"github.com/hangarlabs/aw139-certainty/internal/testutils"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "disabled"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func certaintyRequest(t *testing.T) (server.CertaintyRequest, string) {
	t.Helper()
	req := server.CertaintyRequest{
		Documents: testutils.SampleDocuments(5, true),
		Diagnosis: testutils.SampleDiagnosis,
		Query:     testutils.GeneratorQuery,
		ATACode:   "24",
		TaskType:  "fault_isolation",
		HasAWDP:   true,
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return req, string(data)
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "diagnose", "score"})
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestScoreCmd_Stdin(t *testing.T) {
	req, body := certaintyRequest(t)

	out, err := execute(t, body, "score")
	require.NoError(t, err)

	var got domain.CertaintyResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	want := certainty.Default().Score(req.Input())
	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.Status, got.Status)
}

func TestScoreCmd_File(t *testing.T) {
	_, body := certaintyRequest(t)
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	fromFile, err := execute(t, "", "score", path)
	require.NoError(t, err)
	fromStdin, err := execute(t, body, "score", "-")
	require.NoError(t, err)
	assert.JSONEq(t, fromStdin, fromFile)
}

func TestScoreCmd_Errors(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		_, err := execute(t, "{", "score")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode certainty request")
	})

	t.Run("missing diagnosis", func(t *testing.T) {
		_, err := execute(t, `{"query":"x"}`, "score")
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "", "score", filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("strict with a weak diagnosis", func(t *testing.T) {
		out, err := execute(t, `{"diagnosis":"check it","query":"generator fault"}`, "score", "--strict")
		assert.ErrorIs(t, err, errRequiresExpert)
		assert.Contains(t, out, string(domain.StatusRequireExpert), "the result is printed before failing")
	})
}

func TestDiagnoseCmd_RequiresQuery(t *testing.T) {
	_, err := execute(t, "", "diagnose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "query" not set`)
}

func TestLoadConfig_Flags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0.0\"\nserver:\n  port: 9191\n"), 0o600))

	opts := &rootOptions{configPath: path, logLevel: "disabled", logJSON: true}
	cfg, log, err := opts.loadConfig()
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "disabled", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)

	opts.logLevel = "loud"
	_, _, err = opts.loadConfig()
	assert.Error(t, err)
}
