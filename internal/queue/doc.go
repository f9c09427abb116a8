// Package queue carries Processing Jobs from the submission path to the
// worker pool.
//
// Transport is the contract: a blocking Dequeue that hands out one Delivery
// at a time, and Ack, Retry, and Fail to settle it. Delivery is at least
// once: a delivery that is never settled (crash, lost heartbeat) is returned
// to the queue and handed out again. At most one delivery per job identifier
// is active at any time.
//
// Two implementations exist. SQLiteTransport is the default and needs no
// external service; RedisTransport lets several daemons share one queue.
// Settled tasks are kept for inspection and trimmed by Prune.
package queue
