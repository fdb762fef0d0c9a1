//go:build !linux

package device

import "os"

func adviseSequential(*os.File) {}
