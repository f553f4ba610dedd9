package eventloop

import "runtime"

// goroutineID parses the current goroutine's numeric id out of its stack
// trace header, used only to let RunOnce detect same-goroutine reentrancy;
// not meant for anything latency-sensitive.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
