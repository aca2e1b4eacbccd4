package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdHasSubcommands(t *testing.T) {
	t.Parallel()
	names := make([]string, 0)
	for _, cmd := range newRootCmd().Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "create"}, names)
}

func TestWriteDocument(t *testing.T) {
	t.Parallel()
	const document = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"

	// case: stdout
	var stdout bytes.Buffer
	require.NoError(t, writeDocument(&stdout, "-", document))
	assert.Equal(t, document, stdout.String())

	// case: file
	path := filepath.Join(t.TempDir(), "out.ics")
	stdout.Reset()
	require.NoError(t, writeDocument(&stdout, path, document))
	assert.Empty(t, stdout.String())
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, document, string(written))
}

func TestCreateCmdNeedsAPIKey(t *testing.T) {
	for _, key := range []string{"CONFIG_FILE", "LLM_PROVIDER", "GEMINI_API_KEY_FREE", "GEMINI_API_KEY"} {
		t.Setenv(key, "")
	}
	cmd := newRootCmd()
	cmd.SetArgs([]string{"create", "lunch tomorrow at noon"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY_FREE or GEMINI_API_KEY is not set")
}
