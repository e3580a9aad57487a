package ipc

import (
	"os"
	"path/filepath"
)

// SocketName is the file name of the IPC socket.
const SocketName = "theme-switcher.sock"

// SocketDir resolves the directory that holds the socket: $XDG_RUNTIME_DIR,
// then ~/.local/run, then the OS temporary directory.
func SocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "run")
	}
	return os.TempDir()
}

// DefaultSocketPath returns SocketDir()/SocketName.
func DefaultSocketPath() string {
	return filepath.Join(SocketDir(), SocketName)
}
