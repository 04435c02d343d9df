//go:build !wasip1

package main

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// guestModule is the path of the contract module built from cmd/votepoll-guest,
// or empty when the toolchain is unavailable or -short is set.
var (
	guestModule   string
	guestBuildErr error
)

func TestMain(m *testing.M) {
	flag.Parse()

	var dir string
	if !testing.Short() {
		dir, guestModule, guestBuildErr = buildGuest()
	}
	code := m.Run()
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
	os.Exit(code)
}

// buildGuest compiles the guest as a WASI reactor into a temporary directory
// that lives until the package's tests finish.
func buildGuest() (dir, module string, err error) {
	goBin, err := exec.LookPath("go")
	if err != nil {
		return "", "", nil
	}

	dir, err = os.MkdirTemp("", "votepoll-cli-")
	if err != nil {
		return "", "", err
	}

	module = filepath.Join(dir, "votepoll.wasm")
	cmd := exec.Command(goBin, "build", "-buildmode=c-shared", "-o", module,
		"github.com/reglet-dev/votepoll/cmd/votepoll-guest")
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	if output, err := cmd.CombinedOutput(); err != nil {
		return dir, "", fmt.Errorf("build guest: %w\n%s", err, output)
	}
	return dir, module, nil
}

// requireGuest returns the built guest module or skips the test.
func requireGuest(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping guest build in short mode")
	}
	require.NoError(t, guestBuildErr)
	if guestModule == "" {
		t.Skip("go toolchain not available to build the guest")
	}
	return guestModule
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("VOTEPOLL_MODULE_PATH", "")

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestSchemaCommand(t *testing.T) {
	out, err := runCommand(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "VotePollState"`)
	assert.Contains(t, out, `"tallies"`)
}

func TestIncrementCommand_RequiresModule(t *testing.T) {
	_, err := runCommand(t, "increment", "--value", "22")

	var confErr *errors.ConfigError
	require.True(t, stdErrors.As(err, &confErr), "want ConfigError, got %v", err)
	assert.Equal(t, "ModulePath", confErr.Field)
}

func TestIncrementCommand_RejectsBadLogLevel(t *testing.T) {
	module := filepath.Join(t.TempDir(), "votepoll.wasm")
	require.NoError(t, os.WriteFile(module, []byte("\x00asm\x01\x00\x00\x00"), 0o600))

	_, err := runCommand(t, "--module", module, "--log-level", "loud", "increment")

	var confErr *errors.ConfigError
	require.True(t, stdErrors.As(err, &confErr))
	assert.Equal(t, "LogLevel", confErr.Field)
}

func TestIncrementCommand_ModuleWithoutContract(t *testing.T) {
	module := filepath.Join(t.TempDir(), "empty.wasm")
	require.NoError(t, os.WriteFile(module, []byte("\x00asm\x01\x00\x00\x00"), 0o600))

	_, err := runCommand(t, "--module", module, "increment", "--value", "1")

	var memErr *errors.MissingMemoryError
	assert.True(t, stdErrors.As(err, &memErr), "want MissingMemoryError, got %v", err)
}

func TestApplyCommand_BadEvent(t *testing.T) {
	_, err := runCommand(t, "apply", "--event", "veto:a")
	assert.ErrorContains(t, err, "unknown event kind")
}

func TestApplyCommand_EventIsRequired(t *testing.T) {
	_, err := runCommand(t, "apply")
	assert.ErrorContains(t, err, `required flag(s) "event" not set`)
}

func TestReadState(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "state.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("tallies:\n  kingsgg: 0\nevent:\n  kind: poll\n  name: kingsgg\nvalue: 22\n"), 0o600))
	state, err := readState(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]int32{"kingsgg": 0}, state.Tallies)
	assert.Equal(t, entities.NewPoll("kingsgg"), state.Event)
	assert.Equal(t, int32(22), state.Value)

	talliesOnly := filepath.Join(dir, "tallies.json")
	require.NoError(t, os.WriteFile(talliesOnly, []byte(`{"tallies": {"a": 5}}`), 0o600))
	state, err = readState(talliesOnly)
	require.NoError(t, err)
	assert.Equal(t, map[string]int32{"a": 5}, state.Tallies)
	assert.Zero(t, state.Value)

	emptyName := filepath.Join(dir, "empty-name.yml")
	require.NoError(t, os.WriteFile(emptyName, []byte("tallies:\n  \"\": 1\nevent:\n  kind: poll\n  name: \"\"\n"), 0o600))
	state, err = readState(emptyName)
	require.NoError(t, err)
	assert.Equal(t, map[string]int32{"": 1}, state.Tallies)
	assert.Equal(t, entities.NewPoll(""), state.Event)

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"tallies": {"a": -1}, "event": {"kind": "vote", "name": "a"}, "value": 0}`), 0o600))
	_, err = readState(badPath)
	var schemaErr *errors.SchemaError
	assert.True(t, stdErrors.As(err, &schemaErr))

	_, err = readState(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "read state")
}

func TestIncrementCommand(t *testing.T) {
	module := requireGuest(t)

	out, err := runCommand(t, "--module", module, "increment", "--value", "22")
	require.NoError(t, err)
	assert.Equal(t, "23\n", out)
}

func TestDemoCommand(t *testing.T) {
	module := requireGuest(t)

	out, err := runCommand(t, "--module", module, "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"init: 42",
		"increment 22: 23",
		"poll:kingsgg: map[kingsgg:0]",
		"vote:kingsgg: map[kingsgg:1]",
		"vote:b: map[a:5]",
		"leader: kingsgg (1)",
	}, strings.Split(strings.TrimSpace(out), "\n"))
}

func TestApplyCommand_WithoutState(t *testing.T) {
	module := requireGuest(t)

	out, err := runCommand(t, "--module", module, "apply", "--event", "poll:a")
	require.NoError(t, err)

	var state entities.VotePollState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, map[string]int32{"a": 0}, state.Tallies)
	assert.Equal(t, entities.NewPoll("a"), state.Event)
}

func TestApplyCommand_OutFileFeedsNextApply(t *testing.T) {
	module := requireGuest(t)
	dir := t.TempDir()

	statePath := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte(`{"tallies": {}, "value": 22}`), 0o600))
	outPath := filepath.Join(dir, "next.json")

	out, err := runCommand(t, "--module", module, "apply", "--state", statePath, "--event", "poll:kingsgg", "--out", outPath)
	require.NoError(t, err)
	assert.Empty(t, out, "--out replaces stdout")

	written, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var registered entities.VotePollState
	require.NoError(t, json.Unmarshal(written, &registered))
	assert.Equal(t, map[string]int32{"kingsgg": 0}, registered.Tallies)
	assert.Equal(t, int32(22), registered.Value)

	out, err = runCommand(t, "--module", module, "apply", "--state", outPath, "--event", "vote:kingsgg")
	require.NoError(t, err)

	var voted entities.VotePollState
	require.NoError(t, json.Unmarshal([]byte(out), &voted))
	assert.Equal(t, map[string]int32{"kingsgg": 1}, voted.Tallies)
	assert.Equal(t, entities.NewVote("kingsgg"), voted.Event)
	assert.Equal(t, int32(22), voted.Value)
}
