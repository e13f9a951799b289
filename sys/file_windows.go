// file_windows.go
//go:build windows

package sys

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// windowsFile implements File for Windows using CreateFile directly so
// FILE_SHARE_DELETE can be requested; os.OpenFile alone has no way to
// ask for it, and without it a zone file can't be removed or renamed
// while the device still holds it open.
type windowsFile struct{}

// NewFile returns the platform-specific File implementation.
func NewFile() File {
	return &windowsFile{}
}

// OpenFile opens a file on Windows with specified flags and permissions.
// It specifically uses FILE_SHARE_DELETE to allow the file to be deleted or renamed
// while it is still open, which is crucial for LSM-tree compaction on Windows.
func (wfo *windowsFile) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	var access uint32
	var creationDisposition uint32
	var shareMode uint32 = windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE // Allow delete/rename

	// Map os.OpenFile flags to Windows CreateFile access and creation disposition
	if flag&os.O_RDWR != 0 {
		access = windows.GENERIC_READ | windows.GENERIC_WRITE
	} else if flag&os.O_WRONLY != 0 {
		access = windows.GENERIC_WRITE
	} else { // This handles os.O_RDONLY (which is 0)
		access = windows.GENERIC_READ
	}

	if flag&os.O_CREATE != 0 {
		if flag&os.O_EXCL != 0 {
			creationDisposition = windows.CREATE_NEW
		} else {
			creationDisposition = windows.OPEN_ALWAYS
		}
	} else {
		creationDisposition = windows.OPEN_EXISTING
	}

	if flag&os.O_TRUNC != 0 {
		if creationDisposition == windows.OPEN_EXISTING {
			creationDisposition = windows.TRUNCATE_EXISTING
		} else {
			// If O_TRUNC is set with O_CREATE, it implies CREATE_ALWAYS
			creationDisposition = windows.CREATE_ALWAYS
		}
	}

	// Convert file path to UTF16 pointer
	pathp, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}

	// Call Windows CreateFile API
	handle, err := windows.CreateFile(
		pathp,
		access,
		shareMode,
		nil, // Default security attributes
		creationDisposition,
		windows.FILE_ATTRIBUTE_NORMAL,
		0, // No template file
	)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			if errno == windows.ERROR_FILE_NOT_FOUND {
				return nil, os.ErrNotExist
			}
			if errno == windows.ERROR_ACCESS_DENIED {
				return nil, fmt.Errorf("windows CreateFile failed for %s: access is denied: %w", name, err)
			}
		}
		return nil, fmt.Errorf("windows CreateFile failed for %s: %w", name, err)
	}

	file := os.NewFile(uintptr(handle), name)

	if flag&os.O_APPEND != 0 {
		if _, err := file.Seek(0, io.SeekEnd); err != nil {
			file.Close()
			return nil, fmt.Errorf("seeking to end for append on %s: %w", name, err)
		}
	}

	return file, nil
}
