//go:build !unix

package ipc

import "net"

func listenUnix(path string) (net.Listener, error) {
	return net.Listen("unix", path)
}
