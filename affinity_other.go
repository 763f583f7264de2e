//go:build !linux

package mandelring

import "errors"

func pinToCPU(id int) (int, error) {
	return -1, errors.New("CPU pinning requires linux")
}
