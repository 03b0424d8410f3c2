package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/document/models"
	dErrors "docket/pkg/domain-errors"
)

const prd = `---
title: Payments PRD
---
# Payments PRD

Intro.

## Goals

Ship v2.
`

type workspace struct {
	t      *testing.T
	root   string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	root := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	write("docs/prd.md", prd)
	write("checklists/definition-of-done.yaml", `
name: definition-of-done
version: "1"
items:
  - id: DOD-1
    text: Tests pass
    severity: high
`)
	write("prompt.md", "Goals:\n@doc:docs/prd.md#goals\n@checklist:definition-of-done\nGoal: @context:epic_goal\n")
	write("docket.yaml", `
database:
  driver: sqlite
  dsn: `+filepath.Join(root, ".docket", "docket.db")+`
content:
  root: `+root+`
log:
  level: error
resolution:
  context:
    epic_goal: Ship v2
  workflows:
    story:
      - var: prd
        ref: "@doc:docs/prd.md:title"
`)
	return &workspace{t: t, root: root, config: filepath.Join(root, "docket.yaml")}
}

func (w *workspace) run(args ...string) (string, error) {
	w.t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"--config", w.config, "--actor", "ana"}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func TestCLIRegisterAndResolve(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run("register", "docs/prd.md", "--type", "requirements-doc", "--state", "active", "--meta", "scope=payments")
	require.NoError(t, err)
	var doc models.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, models.StateActive, doc.State)
	assert.Equal(t, "Payments PRD", doc.Title)

	out, err = w.run("resolve-prompt", filepath.Join(w.root, "prompt.md"))
	require.NoError(t, err)
	assert.Contains(t, out, "## Goals\n\nShip v2.\n")
	assert.Contains(t, out, "- [ ] **DOD-1** Tests pass _(high)_")
	assert.Contains(t, out, "Goal: Ship v2")

	tmpl := filepath.Join(w.root, "story.md")
	require.NoError(t, os.WriteFile(tmpl, []byte("Story for {{prd}}"), 0o600))
	out, err = w.run("resolve-prompt", tmpl, "--workflow", "story")
	require.NoError(t, err)
	assert.Equal(t, "Story for Payments PRD", out)

	out, err = w.run("transition", "docs/prd.md", "obsolete", "--reason", "superseded")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "obsolete"`)
}

func TestCLIExitCodes(t *testing.T) {
	w := newWorkspace(t)

	_, err := w.run("get", "docs/missing.md")
	require.Error(t, err)
	assert.Equal(t, dErrors.ExitCode(dErrors.New(dErrors.CodeNotFound, "")), dErrors.ExitCode(err))

	_, err = w.run("register", "docs/prd.md", "--type", "spreadsheet")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = w.run("resolve-prompt", filepath.Join(w.root, "prompt.md"), "--workflow", "release")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"story=PAY-12", "empty=", "eq=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"story": "PAY-12", "empty": "", "eq": "a=b"}, got)

	_, err = parseAssignments([]string{"novalue"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
