//go:build !windows

package eventlog

import "syscall"

// lockErrors are returned while another process holds the log busy.
var lockErrors = []error{
	syscall.EBUSY,
	syscall.EAGAIN,
}
