package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Pinger is implemented by the record store and by network sinks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck checks a component by pinging it.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// DirCheck verifies that dir exists and is writable. It is used for the
// spool directory and file sink outputs.
func DirCheck(dir string) CheckFunc {
	return func(ctx context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return fmt.Errorf("directory not writable: %w", err)
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(filepath.Clean(name))
	}
}

// RunningCheck reports a component as unhealthy while running returns false.
// The job scheduler and spool watcher are registered with it.
func RunningCheck(component string, running func() bool) CheckFunc {
	return func(ctx context.Context) error {
		if !running() {
			return errors.New(component + " is not running")
		}
		return nil
	}
}
