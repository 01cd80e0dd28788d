// Package persistqueue implements a durable, crash-safe FIFO queue backed
// by a chunked append-only log on local disk. Any number of producer and
// consumer goroutines may share a *Queue[T]; every Put is fsynced to disk
// (subject to Options.FsyncPolicy) before it returns, and Get/Ack let a
// consumer resume work across a process restart without losing or
// duplicating an acknowledged item.
//
// A minimal producer/consumer:
//
//	q, err := persistqueue.New(persistqueue.DefaultOptions[string]("/var/lib/myapp/queue"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer q.Close()
//
//	if err := q.Put("hello"); err != nil {
//		log.Fatal(err)
//	}
//
//	item, err := q.Get()
//	if err != nil {
//		log.Fatal(err)
//	}
//	// ... process item ...
//	if err := q.Ack(); err != nil {
//		log.Fatal(err)
//	}
package persistqueue
