// Package worker provides the halt-channel goroutine-group embedding used
// throughout this module's long-running loops (dispatcher mainloop,
// endpoint listener).
//
// The shape is the one the teacher corpus embeds everywhere
// (disk.go, stream/stream.go, client2/connection.go,
// server/cborplugin/client.go, sockatz/common/conn.go) but whose
// defining file was not retrieved into the example pack — only its call
// sites were. It is reconstructed here from those call sites: embed
// Worker, call Go(fn) for each background goroutine, select on HaltCh()
// inside fn, call Halt() to request shutdown and block until every
// goroutine started with Go has returned.
package worker

import "sync"

// Worker is embedded by types that run one or more background
// goroutines which must all observe a shared halt signal before the
// owning type is considered stopped.
type Worker struct {
	haltOnce sync.Once
	haltedCh chan struct{}
	wg       sync.WaitGroup
	initOnce sync.Once
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltedCh = make(chan struct{})
	})
}

// HaltCh returns the channel that is closed when Halt is called.
func (w *Worker) HaltCh() <-chan struct{} {
	w.init()
	return w.haltedCh
}

// Go starts fn in a new goroutine tracked by this Worker. Halt blocks
// until every goroutine started this way has returned.
func (w *Worker) Go(fn func()) {
	w.init()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// Halt closes HaltCh (idempotently) and blocks until every goroutine
// started via Go has returned.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() {
		close(w.haltedCh)
	})
	w.wg.Wait()
}
