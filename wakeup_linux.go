//go:build linux

package tcpreactor

import "golang.org/x/sys/unix"

// createWakeFD creates an eventfd used as the loop's wakeup descriptor: a
// remote goroutine writes to it to interrupt a blocked PollIO, per spec's
// "self-pipe / wakeup descriptor" requirement. The read and write ends are
// the same descriptor on Linux.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func writeWakeFD(writeFD int) error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(writeFD, buf[:])
	if err == unix.EAGAIN {
		// Already has a pending wakeup counted; nothing more to do.
		return nil
	}
	return err
}

func drainWakeFD(readFD int) error {
	var buf [8]byte
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
	return unix.Close(readFD)
}
