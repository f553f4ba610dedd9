//go:build darwin

package eventloop

import "golang.org/x/sys/unix"

// createWakeFd creates a self-pipe used to wake a sleeping kqueue wait
// from any goroutine, since Darwin has no eventfd equivalent.
func createWakeFd() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func closeWakeFd(readFD, writeFD int) {
	_ = unix.Close(readFD)
	_ = unix.Close(writeFD)
}

// signalWakeFd wakes a poller blocked reading readFD.
func signalWakeFd(writeFD int) error {
	_, err := unix.Write(writeFD, []byte{1})
	if err == unix.EAGAIN {
		// Pipe buffer already has a pending byte; one wakeup suffices.
		return nil
	}
	return err
}

// drainWakeFd empties the self-pipe after a wakeup.
func drainWakeFd(readFD int) {
	var buf [64]byte
	for {
		if _, err := unix.Read(readFD, buf[:]); err != nil {
			return
		}
	}
}
