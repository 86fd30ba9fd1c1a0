package environment

import (
	"os"
	"strings"
)

// isContainer reports whether the process appears to be running inside a
// container: /.dockerenv present, KUBERNETES_SERVICE_HOST set, or a
// docker/kubepods substring in /proc/1/cgroup.
func isContainer() (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") || strings.Contains(content, "kubepods")
}
