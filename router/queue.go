package router

import "github.com/nerfedge/spatialsync/common/types"

type direction uint8

const (
	inbound direction = iota
	outbound
)

// pending is an envelope parked until the next tick. Inbound entries hold
// decoded remote messages on their way to a handler, outbound entries hold
// local messages on their way to the transports.
type pending struct {
	msg *types.SyncMessage
	dir direction
}

// queue buckets pending messages by priority, FIFO within a bucket. Not
// safe for concurrent use, callers hold the router mutex.
type queue struct {
	buckets [types.PriorityLow + 1][]pending
	size    int
}

func (q *queue) push(p pending) {
	prio := p.msg.Priority
	q.buckets[prio] = append(q.buckets[prio], p)
	q.size++
}

// pop removes the oldest entry of the most urgent non-empty bucket.
func (q *queue) pop() (pending, bool) {
	for i := range q.buckets {
		if len(q.buckets[i]) == 0 {
			continue
		}
		p := q.buckets[i][0]
		q.buckets[i][0] = pending{}
		q.buckets[i] = q.buckets[i][1:]
		q.size--
		return p, true
	}
	return pending{}, false
}

func (q *queue) len() int {
	return q.size
}

// drain throws away everything still queued and reports how much that was.
func (q *queue) drain() int {
	n := q.size
	for i := range q.buckets {
		q.buckets[i] = nil
	}
	q.size = 0
	return n
}
