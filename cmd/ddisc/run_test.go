package main

import (
	"os"
	"path/filepath"
	"testing"
)

// captureExit overrides the package-level osExit variable so that calls to
// osExit inside fn are intercepted. It returns the exit code and a boolean
// indicating whether osExit was actually called.
func captureExit(fn func()) (code int, exited bool) {
	old := osExit
	defer func() { osExit = old }()

	osExit = func(c int) {
		panic(exitSentinel(c))
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				if s, ok := r.(exitSentinel); ok {
					code = int(s)
					exited = true
				} else {
					panic(r)
				}
			}
		}()
		fn()
	}()
	return code, exited
}

const testYAML = `
domain: "dns-discovery.test"
trackers:
  - "127.0.0.1:15999"
telemetry:
  metrics:
    enabled: false
`

func writeRunTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ddisc.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
