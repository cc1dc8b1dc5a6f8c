package inquiry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataresource/internal/inquiry"
	"dataresource/internal/resource"
)

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.csv"), []byte("id,name\n1,a\n2,b\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragged.csv"), []byte("id,name\n1,a\n2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.resource.json"), []byte(`{"path": "good.csv"}`), 0644))
	return dir
}

func TestRun(t *testing.T) {
	dir := setup(t)
	inq := &inquiry.Inquiry{Tasks: []inquiry.Task{
		{Path: "good.csv"},
		{Path: "ragged.csv"},
		{Resource: "good.resource.json"},
		{Path: "missing.csv"},
	}}

	rep, err := inq.Run(context.Background(), inquiry.Options{Workers: 2, Basepath: dir})
	require.NoError(t, err)
	require.Len(t, rep.Tasks, 4)
	assert.False(t, rep.Valid)

	assert.Equal(t, "good.csv", rep.Tasks[0].Task)
	assert.True(t, rep.Tasks[0].Report.Valid)
	assert.Equal(t, 2, rep.Tasks[0].Report.Rows)

	assert.False(t, rep.Tasks[1].Report.Valid)
	require.Len(t, rep.Tasks[1].Report.Errors, 1)
	assert.Equal(t, resource.ErrorMissingCell, rep.Tasks[1].Report.Errors[0].Type)

	assert.True(t, rep.Tasks[2].Report.Valid)

	require.Len(t, rep.Tasks[3].Report.Errors, 1)
	assert.Equal(t, resource.ErrorSource, rep.Tasks[3].Report.Errors[0].Type)
}

func TestUntrustedPaths(t *testing.T) {
	task := inquiry.Task{Path: "../etc/passwd"}
	assert.ErrorContains(t, task.Check(false), "is not safe")
	assert.NoError(t, task.Check(true))

	assert.ErrorContains(t, (&inquiry.Task{}).Check(true), "is required")

	rep := task.Validate(context.Background(), inquiry.Options{})
	assert.False(t, rep.Valid)
	assert.Equal(t, resource.ErrorSource, rep.Errors[0].Type)
}

func TestLoad(t *testing.T) {
	dir := setup(t)
	p := filepath.Join(dir, "inquiry.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
tasks:
  - path: good.csv
    name: first
  - resource:
      path: ragged.csv
      schema:
        fields:
          - name: id
            type: integer
          - name: name
            type: string
`), 0644))

	inq, err := inquiry.Load(p)
	require.NoError(t, err)
	require.Len(t, inq.Tasks, 2)
	assert.Equal(t, "first", inq.Tasks[0].Name)

	rep, err := inq.Run(context.Background(), inquiry.Options{Basepath: dir})
	require.NoError(t, err)
	assert.Equal(t, "first", rep.Tasks[0].Task)
	assert.True(t, rep.Tasks[0].Report.Valid)
	assert.False(t, rep.Tasks[1].Report.Valid)
}

func TestLoadResolvesAgainstInquiryDir(t *testing.T) {
	dir := setup(t)
	p := filepath.Join(dir, "inquiry.yaml")
	require.NoError(t, os.WriteFile(p, []byte("tasks:\n  - path: good.csv\n  - resource: good.resource.json\n"), 0644))

	inq, err := inquiry.Load(p)
	require.NoError(t, err)

	t.Chdir(t.TempDir())
	rep, err := inq.Run(context.Background(), inquiry.Options{})
	require.NoError(t, err)
	for _, tr := range rep.Tasks {
		assert.True(t, tr.Report.Valid, "task %s: %+v", tr.Task, tr.Report.Errors)
	}

	// an explicit basepath still wins
	rep, err = inq.Run(context.Background(), inquiry.Options{Basepath: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, rep.Valid)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inq := &inquiry.Inquiry{Tasks: []inquiry.Task{{Path: "a.csv"}}}
	_, err := inq.Run(ctx, inquiry.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
