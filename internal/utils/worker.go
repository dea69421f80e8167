package utils

import (
	"errors"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	TASK_CHAN_SIZE = 100
)

var ErrPoolFull = errors.New("worker pool task queue full")

type WorkerFunction = func(t *tomb.Tomb, task any) error
type WorkerPool struct {
	n     int      // number of workers
	tasks chan any // task queue
}

func NewWorkerPool(size uint) WorkerPool {
	return WorkerPool{
		n:     max(1, int(size)),
		tasks: make(chan any, TASK_CHAN_SIZE),
	}
}

// Setup runs the pool's workers under t and blocks until t is dying. A
// worker whose work function returns an error is replaced.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	exited := make(chan int, pool.n)
	for id := range pool.n {
		pool.spawn(t, id, work, exited)
	}
	for {
		select {
		case <-t.Dying():
			return
		case id := <-exited:
			if t.Alive() {
				pool.spawn(t, id, work, exited)
			}
		}
	}
}

func (pool *WorkerPool) spawn(t *tomb.Tomb, id int, work WorkerFunction, exited chan<- int) {
	t.Go(func() error {
		pool.worker(t, id, work)
		if t.Alive() {
			select {
			case exited <- id:
			default:
			}
		}
		return nil
	})
}

// AddTask queues a task without blocking.
func (pool *WorkerPool) AddTask(task any) error {
	select {
	case pool.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Workers wait on tasks in the task queue and action them until the tomb
// is dying or a task fails.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) {
	for {
		select {
		case <-t.Dying():
			return
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return
			}
		}
	}
}
