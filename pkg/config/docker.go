package config

import (
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a Docker container,
// detected by /.dockerenv. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when running
// in Docker, so a containerized registry reaches Postgres and Redis on the host.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}

	switch host {
	case "localhost", "127.0.0.1":
		return "host.docker.internal"
	default:
		return host
	}
}
