package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/echocode/echo/backend/internal/model/generation"
	"github.com/echocode/echo/backend/internal/model/session"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "GENERATION_ENDPOINT", "STORE_BACKEND", "STORE_PATH", "STORE_KEY", "LOG_FILE"} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionsLifecycle(t *testing.T) {
	isolateEnv(t)
	store := []string{"--store-backend", "sqlite", "--store-path", filepath.Join(t.TempDir(), "echo.db")}

	codeFile := filepath.Join(t.TempDir(), "hello.py")
	require.NoError(t, os.WriteFile(codeFile, []byte("print('hi')\n"), 0o600))

	out, err := execute(t, append(store, "sessions", "save", "--name", "greeting", "--prompt", "say hi", "--code-file", codeFile)...)
	require.NoError(t, err)
	require.Contains(t, out, "greeting")

	out, err = execute(t, append(store, "sessions", "list", "--output", "json")...)
	require.NoError(t, err)
	var listed []session.SavedSession
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	require.Equal(t, "print('hi')\n", listed[0].Code)
	require.Equal(t, "say hi", listed[0].Prompt)
	id := strconv.FormatInt(listed[0].ID, 10)

	out, err = execute(t, append(store, "sessions", "list", "-o", "yaml")...)
	require.NoError(t, err)
	var fromYAML []session.SavedSession
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	require.Equal(t, listed, fromYAML)

	out, err = execute(t, append(store, "sessions", "list")...)
	require.NoError(t, err)
	require.Contains(t, out, "NAME")
	require.Contains(t, out, "greeting")

	out, err = execute(t, append(store, "sessions", "show", id)...)
	require.NoError(t, err)
	require.Contains(t, out, "prompt: say hi")

	_, err = execute(t, append(store, "sessions", "delete", id)...)
	require.NoError(t, err)

	out, err = execute(t, append(store, "sessions", "list")...)
	require.NoError(t, err)
	require.Contains(t, out, "no saved sessions")

	_, err = execute(t, append(store, "sessions", "show", id)...)
	require.Error(t, err)
}

func TestSessionsBadInput(t *testing.T) {
	isolateEnv(t)
	store := []string{"--store-backend", "memory"}

	_, err := execute(t, append(store, "sessions", "show", "abc")...)
	require.ErrorContains(t, err, "invalid session id")

	_, err = execute(t, append(store, "sessions", "list", "-o", "xml")...)
	require.ErrorContains(t, err, "unknown output format")
}

func TestRun(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	ok := filepath.Join(dir, "ok.py")
	require.NoError(t, os.WriteFile(ok, []byte("print(\"Hello\")\nprint('World')\n"), 0o600))
	out, err := execute(t, "run", "--delay", "0s", ok)
	require.NoError(t, err)
	require.Equal(t, "Hello\nWorld\n", out)

	bad := filepath.Join(dir, "bad.py")
	require.NoError(t, os.WriteFile(bad, []byte("x = 1\nif x > 0\n    print(x)\n"), 0o600))
	out, err = execute(t, "run", "--delay", "0s", bad)
	require.NoError(t, err)
	require.Equal(t, "SyntaxError: expected ':' after if statement (line 2)\n", out)
}

func TestGenerate(t *testing.T) {
	isolateEnv(t)

	var got generation.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generation.Result{Code: "print('sum')", Explanation: "Adds numbers."})
	}))
	t.Cleanup(srv.Close)
	t.Setenv("GENERATION_ENDPOINT", srv.URL)

	contextFile := filepath.Join(t.TempDir(), "prev.py")
	require.NoError(t, os.WriteFile(contextFile, []byte("a = 1"), 0o600))

	out, err := execute(t, "generate", "--context-file", contextFile, "add", "two", "numbers")
	require.NoError(t, err)
	require.Equal(t, "add two numbers", got.Prompt)
	require.Equal(t, "a = 1", got.ExistingCode)
	require.True(t, strings.HasPrefix(out, "print('sum')\n"))
	require.Contains(t, out, "# Adds numbers.")
}

func TestGenerateWithoutGenerator(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "--store-backend", "memory", "generate", "anything")
	require.ErrorIs(t, err, errNoGenerator)
}
