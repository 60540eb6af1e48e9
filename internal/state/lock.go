package state

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// AcquireLock takes the advisory lock for a brewctl directory. A second
// invocation fails fast instead of queueing. The returned release func is
// safe to call more than once.
func AcquireLock(dir string) (func(), error) {
	lockDir := filepath.Join(dir, dirName)
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(lockDir, lockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("another brewctl invocation holds %s (owner hint: %s)", fl.Path(), lockOwner())
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		_ = fl.Unlock()
	}, nil
}

func lockOwner() string {
	host, _ := os.Hostname()
	host = strings.TrimSpace(host)
	if host == "" {
		host = "unknown-host"
	}
	pid := os.Getpid()

	u, _ := user.Current()
	if u != nil && strings.TrimSpace(u.Username) != "" {
		return strings.TrimSpace(u.Username) + "@" + host + ":" + strconv.Itoa(pid)
	}
	return host + ":" + strconv.Itoa(pid)
}
