package forkserver

import (
	"encoding/binary"
	"fmt"
	"syscall"

	"github.com/olsock/sockd/pkg/unixsocket"
)

const (
	// requestFdCount is the exact number of rights a spawn request
	// carries: the container root directory and the cgroup.procs file,
	// in that order
	requestFdCount = 2

	payloadSize = 1024

	replySize = 4
)

// SandboxRequest is one decoded spawn request. The two descriptors are owned
// by the request until Close.
type SandboxRequest struct {
	// RootFD is an open directory fd of the new container root
	RootFD int

	// CgroupProcsFD is an open cgroup.procs fd of the target cgroup
	CgroupProcsFD int

	// Payload is whatever in-band bytes accompanied the rights message
	Payload []byte

	closed bool
}

// Close releases both descriptors. Calling it again is a no-op; the fd
// numbers may have been reused by then and must not be closed twice.
func (r *SandboxRequest) Close() {
	if r.closed {
		return
	}
	r.closed = true
	syscall.Close(r.RootFD)
	syscall.Close(r.CgroupProcsFD)
}

// recvRequest reads one spawn request off a control connection. On any
// mismatch every received fd is closed before the error returns so a
// long-lived server cannot leak descriptors.
func recvRequest(s *unixsocket.Socket) (*SandboxRequest, error) {
	buf := make([]byte, payloadSize)
	n, msg, err := s.RecvMsg(buf)
	if err != nil {
		return nil, fmt.Errorf("forkserver: recvmsg: %w", err)
	}
	if len(msg.Fds) != requestFdCount {
		for _, fd := range msg.Fds {
			syscall.Close(fd)
		}
		return nil, fmt.Errorf("forkserver: spawn request carried %d fds, need %d", len(msg.Fds), requestFdCount)
	}
	return &SandboxRequest{
		RootFD:        msg.Fds[0],
		CgroupProcsFD: msg.Fds[1],
		Payload:       buf[:n],
	}, nil
}

// EncodePid packs a worker pid the way the host decodes the spawn reply
func EncodePid(pid int) []byte {
	b := make([]byte, replySize)
	binary.LittleEndian.PutUint32(b, uint32(pid))
	return b
}

// DecodePid recovers a worker pid from a spawn reply
func DecodePid(b []byte) (int, error) {
	if len(b) != replySize {
		return 0, fmt.Errorf("forkserver: spawn reply is %d bytes, need %d", len(b), replySize)
	}
	return int(binary.LittleEndian.Uint32(b)), nil
}
