package build

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/types"
)

// Updater pulls the latest worker source and rebuilds it before a run.
// Both steps are fatal to the run when they fail: monitoring a stale or
// half-built worker would measure the wrong thing.
type Updater struct {
	repoDir string
	branch  string
	command []string
	logger  zerolog.Logger
}

// NewUpdater creates an updater from the update config
func NewUpdater(cfg types.UpdateConfig) *Updater {
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &Updater{
		repoDir: cfg.RepoDir,
		branch:  branch,
		command: cfg.BuildCommand,
		logger:  log.WithComponent("updater"),
	}
}

// PullLatest fetches and hard-resets the repo to the remote branch head,
// returning the short commit hash now checked out
func (u *Updater) PullLatest(ctx context.Context) (string, error) {
	u.logger.Info().Str("branch", u.branch).Msg("Pulling latest source")

	if out, err := u.git(ctx, "fetch", "origin", u.branch); err != nil {
		return "", fmt.Errorf("git fetch failed: %w: %s", err, out)
	}
	if out, err := u.git(ctx, "reset", "--hard", "origin/"+u.branch); err != nil {
		return "", fmt.Errorf("git reset failed: %w: %s", err, out)
	}

	commit, err := u.git(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}

	u.logger.Info().Str("commit", commit).Msg("Source updated")
	return commit, nil
}

// Build runs the configured build command in the repo directory
func (u *Updater) Build(ctx context.Context) error {
	if len(u.command) == 0 {
		return fmt.Errorf("no build command configured")
	}

	u.logger.Info().Strs("command", u.command).Msg("Building worker")

	cmd := exec.CommandContext(ctx, u.command[0], u.command[1:]...)
	cmd.Dir = u.repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("build failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	u.logger.Info().Msg("Build finished")
	return nil
}

func (u *Updater) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = u.repoDir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// GitInfo reports the current branch and short commit of a repo, best
// effort. Used to annotate notifications when auto-update is disabled.
func GitInfo(ctx context.Context, dir string) (branch, commit string) {
	run := func(args ...string) string {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		out, err := cmd.Output()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	}

	return run("rev-parse", "--abbrev-ref", "HEAD"), run("rev-parse", "--short", "HEAD")
}
