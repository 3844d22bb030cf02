//go:build !linux

package control

import "net"

// VerifyPeerIsCurrentUser accepts every peer where SO_PEERCRED is
// unavailable. The socket's 0600 mode is the only gate there.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	return true, nil
}
