package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"\n", true},
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"N\n", false},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.answer), func(t *testing.T) {
			var out bytes.Buffer
			ok, err := confirm(strings.NewReader(tt.answer), &out, "overwrite? (Y/n) ")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, "overwrite? (Y/n) ", out.String())
		})
	}
}

func TestExistingOutputNeedsFlagWithoutTerminal(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(output, []byte("old"), 0o644))

	// a regular file is never a terminal
	stdin, err := os.Create(filepath.Join(dir, "stdin"))
	require.NoError(t, err)
	defer stdin.Close()

	err = run(context.Background(), options{output: output}, stdin, &bytes.Buffer{})
	assert.ErrorIs(t, err, errOverwriteRefused)

	b, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))
}
