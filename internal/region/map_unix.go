//go:build unix || linux || darwin || freebsd || openbsd || netbsd

package region

import (
	"os"

	"golang.org/x/sys/unix"
)

func osMapRW(f *os.File, size int) ([]byte, func([]byte) error, func([]byte) error, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_SHARED

	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, flags)
	if err != nil {
		return nil, nil, nil, err
	}

	flush := func(b []byte) error {
		return unix.Msync(b, unix.MS_SYNC)
	}

	return data, unix.Munmap, flush, nil
}
