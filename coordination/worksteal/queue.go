package worksteal

import (
	"sort"
	"time"
)

// queue holds one node's work. All access goes through the scheduler's lock.
type queue struct {
	nodeID       string
	pending      []*WorkItem // priority desc, FIFO within equal priority
	processing   map[string]*WorkItem
	capacity     int
	completed    int64
	failed       int64
	lastActivity time.Time
}

func newQueue(nodeID string, capacity int) *queue {
	return &queue{
		nodeID:       nodeID,
		processing:   make(map[string]*WorkItem),
		capacity:     capacity,
		lastActivity: time.Now(),
	}
}

// load is the scheduling weight used for submission and steal decisions.
func (q *queue) load() int {
	return len(q.pending) + len(q.processing)
}

func (q *queue) full() bool {
	return q.capacity > 0 && q.load() >= q.capacity
}

// push inserts keeping priority order, FIFO within equal priority.
func (q *queue) push(item *WorkItem) {
	item.Owner = q.nodeID
	idx := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].Priority < item.Priority
	})
	q.pending = append(q.pending, nil)
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = item
	q.lastActivity = time.Now()
}

// pop removes the highest-priority pending item, nil when empty.
func (q *queue) pop() *WorkItem {
	if len(q.pending) == 0 {
		return nil
	}
	item := q.pending[0]
	q.pending = q.pending[1:]
	q.lastActivity = time.Now()
	return item
}

// stealTail removes up to n items, lowest priority first and oldest first
// within each equal-priority run. The run's oldest items sit at its front, so
// the cut starts there rather than at the slice tail. Returned items still
// reference the old owner; the caller re-homes them.
func (q *queue) stealTail(n int) []*WorkItem {
	if n <= 0 || len(q.pending) == 0 {
		return nil
	}
	if n > len(q.pending) {
		n = len(q.pending)
	}
	stolen := make([]*WorkItem, 0, n)
	for n > 0 && len(q.pending) > 0 {
		end := len(q.pending)
		start := end - 1
		p := q.pending[end-1].Priority
		for start > 0 && q.pending[start-1].Priority == p {
			start--
		}
		take := end - start
		if take > n {
			take = n
		}
		stolen = append(stolen, q.pending[start:start+take]...)
		q.pending = append(q.pending[:start], q.pending[start+take:]...)
		n -= take
	}
	q.lastActivity = time.Now()
	return stolen
}

// QueueStats is a point-in-time queue view.
type QueueStats struct {
	NodeID       string    `json:"node_id"`
	Pending      int       `json:"pending"`
	Processing   int       `json:"processing"`
	Completed    int64     `json:"completed"`
	Failed       int64     `json:"failed"`
	LastActivity time.Time `json:"last_activity"`
}

func (q *queue) snapshot() QueueStats {
	return QueueStats{
		NodeID:       q.nodeID,
		Pending:      len(q.pending),
		Processing:   len(q.processing),
		Completed:    q.completed,
		Failed:       q.failed,
		LastActivity: q.lastActivity,
	}
}
