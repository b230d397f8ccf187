package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const pullTimeout = 60 * time.Second

// Puller runs `git pull` in the deployment checkout. Pulls are serialized;
// overlapping webhook deliveries wait for the one in flight.
type Puller struct {
	mu      sync.Mutex
	repoDir string
}

func NewPuller(repoDir string) *Puller {
	return &Puller{repoDir: repoDir}
}

// Pull fetches and merges the remote branch, returning git's combined output.
func (p *Puller) Pull(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "-C", p.repoDir, "pull")
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("git pull in %s: %w", p.repoDir, err)
	}

	slog.InfoContext(ctx, "Repository updated", "dir", p.repoDir, "output", output)
	return output, nil
}
