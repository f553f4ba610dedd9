//go:build linux

package eventloop

import "golang.org/x/sys/unix"

// createWakeFd creates an eventfd used to wake a sleeping poll() from any
// goroutine. The same fd serves as both read and write end.
func createWakeFd() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func closeWakeFd(readFD, writeFD int) {
	_ = unix.Close(readFD)
}

// signalWakeFd wakes a poller blocked on readFD/writeFD.
func signalWakeFd(writeFD int) error {
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(writeFD, one[:])
	if err == unix.EAGAIN {
		// Counter already non-zero; a pending wakeup will still fire.
		return nil
	}
	return err
}

// drainWakeFd consumes the eventfd counter after a wakeup.
func drainWakeFd(readFD int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(readFD, buf[:]); err != nil {
			return
		}
	}
}
