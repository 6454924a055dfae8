package net

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

type workerFunction = func(t *tomb.Tomb, task any) error

// workerPool is a fixed-size pool of goroutines draining a shared task
// channel, the same shape the exchange this engine's net layer was adapted
// from uses to bound the number of concurrently-handled client connections.
type workerPool struct {
	n     int
	tasks chan any
	work  workerFunction
}

func newWorkerPool(size int) workerPool {
	return workerPool{tasks: make(chan any, taskChanSize), n: size}
}

func (pool *workerPool) addTask(task any) { pool.tasks <- task }

// setup keeps exactly n workers alive under t until t starts dying.
func (pool *workerPool) setup(t *tomb.Tomb, work workerFunction) {
	pool.work = work
	log.Info().Int("workers", pool.n).Msg("starting worker pool")
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < pool.n {
				t.Go(func() error {
					err := pool.worker(t)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (pool *workerPool) worker(t *tomb.Tomb) error {
	select {
	case <-t.Dying():
		return nil
	case task := <-pool.tasks:
		if err := pool.work(t, task); err != nil {
			log.Error().Err(err).Msg("worker exiting")
			return err
		}
	}
	return nil
}
