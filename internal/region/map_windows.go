//go:build windows

package region

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func osMapRW(f *os.File, size int) ([]byte, func([]byte) error, func([]byte) error, error) {
	if size == 0 {
		return nil, nil, nil, ErrInvalidGeometry
	}

	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE, 0, 0, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	// The view holds a reference; the mapping handle can be closed now.
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	unmap := func(b []byte) error {
		return windows.UnmapViewOfFile(addr)
	}
	flush := func(b []byte) error {
		return windows.FlushViewOfFile(addr, uintptr(size))
	}

	return data, unmap, flush, nil
}
