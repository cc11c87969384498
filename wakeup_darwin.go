//go:build darwin

package tcpreactor

import "golang.org/x/sys/unix"

// createWakeFD creates a self-pipe used as the loop's wakeup descriptor,
// since Darwin has no eventfd equivalent.
func createWakeFD() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return -1, -1, err
		}
	}
	return fds[0], fds[1], nil
}

func writeWakeFD(writeFD int) error {
	_, err := unix.Write(writeFD, []byte{1})
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func drainWakeFD(readFD int) error {
	var buf [256]byte
	for {
		_, err := unix.Read(readFD, buf[:])
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			return err
		}
	}
}

func closeWakeFD(readFD, writeFD int) error {
	_ = unix.Close(writeFD)
	return unix.Close(readFD)
}
