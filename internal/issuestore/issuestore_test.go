package issuestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCLI writes a tiny shell script standing in for the issue-tracker
// binary, echoing canned output based on its first argument.
func fakeCLI(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bd")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestListReady_ParsesJSON(t *testing.T) {
	bin := fakeCLI(t, `echo '[{"id":"t1","title":"Do thing","status":"open"}]'`)
	c := New(bin, "")

	tasks, err := c.ListReady(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "t1", tasks[0].ID)
}

func TestUpdateMetadata_ReturnsFalseOnFailure(t *testing.T) {
	bin := fakeCLI(t, `exit 1`)
	c := New(bin, "")

	ok := c.UpdateMetadata(context.Background(), "t1", "owner", "agent-1")
	require.False(t, ok)
}

func TestUpdateStatus_ReturnsTrueOnSuccess(t *testing.T) {
	bin := fakeCLI(t, `exit 0`)
	c := New(bin, "")

	ok := c.UpdateStatus(context.Background(), "t1", "in_progress", "")
	require.True(t, ok)
}

func TestCreate_ReturnsTrimmedID(t *testing.T) {
	bin := fakeCLI(t, `echo "task-42"`)
	c := New(bin, "")

	id, err := c.Create(context.Background(), "Title", "epic-1", map[string]any{"complexity": 5})
	require.NoError(t, err)
	require.Equal(t, "task-42", id)
}
