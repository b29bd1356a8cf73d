package worker

import "sync"

// Pool runs submitted tasks on a fixed number of workers. The batch
// processor uses it so one slow package never blocks the others.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func NewPool(size int, queue int) *Pool {
	if size < 1 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	pool := &Pool{
		tasks: make(chan func(), queue),
	}
	for i := 0; i < size; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}
	return pool
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Exec queues a task; blocks when the queue is full.
func (p *Pool) Exec(task func()) {
	p.tasks <- task
}

// Close stops accepting tasks. Wait returns once queued tasks finish.
func (p *Pool) Close() {
	close(p.tasks)
}

func (p *Pool) Wait() {
	p.wg.Wait()
}
