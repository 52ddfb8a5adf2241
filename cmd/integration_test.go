package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/persona"
	"github.com/KaramelBytes/surveyloom/internal/project"
	"github.com/KaramelBytes/surveyloom/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQuestionnaireCSV = "type,name,label\n" +
	"select_one yes_no,electricity_outages,Did you experience outages?\n" +
	"text,trust_in_banks,Why do you trust banks?\n"

const testResultsCSV = "question,disaggregation,answer_option,value,sample_size,gender\n" +
	"electricity_outages,all,yes,63,450,\n" +
	"electricity_outages,gender,yes,19,120,female\n" +
	"electricity_outages,gender,yes,44,330,male\n"

// resetFlags clears package-level flag variables that would otherwise leak
// between invocations of the shared root command.
func resetFlags() {
	cfg = nil
	initDescription, initQuestionnaire, initResults = "", "", ""
	listFiles, listProjName = false, ""
	pmProject, pmClear, pmStyle = "", false, ""
	catProject, catDisagg, catJSON = "", false, false
	qProject, qDisagg, qJSON = "", dataset.AllDisaggregation, false
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	rootCmd.SetOut(nil)
	require.NoError(t, err, "command %v failed", args)
	return out.String()
}

func runCmdErr(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	return rootCmd.Execute()
}

func writeSurveyFiles(t *testing.T, dir string) (string, string) {
	t.Helper()
	q := filepath.Join(dir, "questionnaire.csv")
	r := filepath.Join(dir, "results.csv")
	require.NoError(t, os.WriteFile(q, []byte(testQuestionnaireCSV), 0o644))
	require.NoError(t, os.WriteFile(r, []byte(testResultsCSV), 0o644))
	return q, r
}

func TestCLI_InitListCatalogQuery(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	q, r := writeSurveyFiles(t, home)

	out := runCmd(t, "init", "wave1", "-d", "baseline", "--questionnaire", q, "--results", r)
	assert.Contains(t, out, "Project initialized")
	projDir := filepath.Join(home, ".surveyloom", "projects", "wave1")
	_, err := os.Stat(filepath.Join(projDir, "project.json"))
	require.NoError(t, err)

	out = runCmd(t, "list")
	assert.Contains(t, out, "wave1")
	assert.Contains(t, out, "baseline")

	out = runCmd(t, "list", "--files", "-p", "wave1")
	assert.Contains(t, out, "questionnaire.csv")
	assert.Contains(t, out, "results.csv")

	out = runCmd(t, "catalog", "-p", "wave1", "--json")
	var vars []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &vars))
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		names = append(names, v["name"].(string))
	}
	assert.Contains(t, names, "electricity_outages")
	assert.Contains(t, names, "trust_in_banks")

	out = runCmd(t, "catalog", "-p", "wave1", "--disaggregations", "--json")
	var keys []string
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	assert.ElementsMatch(t, []string{"all", "gender"}, keys)

	out = runCmd(t, "query", "quant", "-p", "wave1", "electricity_outages", "--disaggregation", "gender", "--json")
	var rows []query.QuantRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Contains(t, []string{"female", "male"}, row.Group)
	}
}

func TestCLI_InitRejectsExistingProject(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	runCmd(t, "init", "dup")
	err := runCmdErr(t, "init", "dup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCLI_InitRequiresBothDataFiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	q, _ := writeSurveyFiles(t, home)

	err := runCmdErr(t, "init", "half", "--questionnaire", q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be given together")
}

func TestCLI_ProjectSettings(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	q, r := writeSurveyFiles(t, home)

	runCmd(t, "init", "wave2")
	runCmd(t, "project", "set-data", "-p", "wave2", q, r)
	runCmd(t, "project", "set-model", "-p", "wave2", "anthropic/claude-3.5-sonnet")
	runCmd(t, "project", "set-persona", "-p", "wave2", persona.Custom, "--style", "Short bullet points.")

	dir := filepath.Join(home, ".surveyloom", "projects", "wave2")
	p, err := project.LoadProject(dir)
	require.NoError(t, err)
	assert.True(t, p.HasData())
	assert.Equal(t, "anthropic/claude-3.5-sonnet", p.Config.Model)
	assert.Equal(t, persona.Custom, p.Config.Persona)
	assert.Equal(t, "Short bullet points.", p.Config.CustomStyle)

	runCmd(t, "project", "set-model", "-p", "wave2", "--clear")
	p, err = project.LoadProject(dir)
	require.NoError(t, err)
	assert.Empty(t, p.Config.Model)

	err = runCmdErr(t, "project", "set-persona", "-p", "wave2", "pirate")
	assert.Error(t, err)
}

func TestCLI_CatalogWithoutDataFails(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	runCmd(t, "init", "empty")
	assert.Error(t, runCmdErr(t, "catalog", "-p", "empty"))
	assert.Error(t, runCmdErr(t, "catalog"))
}
