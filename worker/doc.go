// Package worker runs message processing across goroutines.
//
// BatchProcessor handles a known slice of messages and returns results in
// input order. Pool is a long-lived set of workers fed one Job at a time,
// for callers that produce messages incrementally:
//
//	pool := worker.NewPool(engine, 4)
//	defer pool.Close()
//
//	for i, text := range messages {
//	    pool.Submit(worker.Job{Index: i, Message: text})
//	}
//
//	for range messages {
//	    r := <-pool.Results()
//	    if r.Error != nil {
//	        // the message could not be decoded
//	    }
//	}
package worker
