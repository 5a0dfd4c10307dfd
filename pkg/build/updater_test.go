package build

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	m.Run()
}

// TestBuildRunsCommand runs a trivial build command in a temp dir
func TestBuildRunsCommand(t *testing.T) {
	u := NewUpdater(types.UpdateConfig{RepoDir: t.TempDir(), BuildCommand: []string{"true"}})
	assert.NoError(t, u.Build(context.Background()))
}

// TestBuildFailureSurfacesOutput verifies a failing command returns an error
func TestBuildFailureSurfacesOutput(t *testing.T) {
	u := NewUpdater(types.UpdateConfig{RepoDir: t.TempDir(), BuildCommand: []string{"false"}})
	assert.Error(t, u.Build(context.Background()))
}

// TestBuildWithoutCommand verifies the misconfiguration error
func TestBuildWithoutCommand(t *testing.T) {
	u := NewUpdater(types.UpdateConfig{RepoDir: t.TempDir()})
	assert.Error(t, u.Build(context.Background()))
}

// TestGitInfoOutsideRepo verifies best-effort empty results
func TestGitInfoOutsideRepo(t *testing.T) {
	branch, commit := GitInfo(context.Background(), t.TempDir())
	assert.Empty(t, branch)
	assert.Empty(t, commit)
}
