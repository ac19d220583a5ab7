//go:build windows

package eventlog

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// lockErrors are returned while another process holds the log open, e.g. a
// spreadsheet with the CSV loaded or an antivirus scan. Windows reports
// sharing and lock violations, which do not match fs.ErrPermission.
var lockErrors = []error{
	windows.ERROR_SHARING_VIOLATION,
	windows.ERROR_LOCK_VIOLATION,
	syscall.EBUSY,
	syscall.EAGAIN,
}
