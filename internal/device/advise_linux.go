//go:build linux

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential tells the kernel the image is read front to back
func adviseSequential(file *os.File) {
	_ = unix.Fadvise(int(file.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
