package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"simulate", "--hash", "../../scenarios/alice_bob.yaml"})

	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "price per share  1.5")
	assert.Contains(t, out.String(), "state hash ")
}

func TestSimulateMissingFile(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"simulate", "does-not-exist.yaml"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestSubmitRejectsBadJSON(t *testing.T) {
	var errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&errOut)
	root.SetArgs([]string{"submit", "deposit", "{not json"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not valid JSON"))
}
