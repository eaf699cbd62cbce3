/*
   Copyright 2025 The DIRPX Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package queue

import (
	"sync/atomic"

	aqueue "dirpx.dev/pulselog/apis/queue"
)

// AdmitReason explains the outcome of AdmitWithPriority.
type AdmitReason uint8

const (
	// AdmitOK means the item was accepted on the first try.
	AdmitOK AdmitReason = iota
	// AdmitAfterEviction means the item was protected, the queue was full,
	// an unprotected item was evicted, and the item was then accepted.
	AdmitAfterEviction
	// AdmitDroppedFull means the item was not protected and the queue was
	// full; it was dropped per spec 4.3.2.
	AdmitDroppedFull
	// AdmitDroppedProtectedOverProtected means the item was protected, the
	// queue was full, and every queued item was also protected, so no
	// eviction was possible; the incoming item is dropped (spec 4.3.1's
	// "rare terminal case").
	AdmitDroppedProtectedOverProtected
)

// DropAccounting holds the runtime's drop counters (spec 3 Data Model).
// All fields are updated with atomic operations and safe to read
// concurrently from health/metrics surfaces.
type DropAccounting struct {
	DroppedDueToFull          atomic.Int64
	DroppedDueToSerialization atomic.Int64
	DroppedByFilter           atomic.Int64
	DroppedByDedupe           atomic.Int64
	DroppedProtectedOverFull  atomic.Int64
	DroppedDueToShutdown      atomic.Int64
}

// AdmitWithPriority implements the drop & priority eviction policy of spec
// 4.3: attempt a plain TryEnqueue; on Full, if item is protected, evict the
// oldest unprotected item and retry once; otherwise drop with accounting.
func AdmitWithPriority(q aqueue.Queue, item aqueue.Item, acct *DropAccounting) AdmitReason {
	if q.TryEnqueue(item) == aqueue.Admitted {
		return AdmitOK
	}

	if !item.Protected {
		if acct != nil {
			acct.DroppedDueToFull.Add(1)
		}
		return AdmitDroppedFull
	}

	if q.EvictOldestUnprotected() {
		if q.TryEnqueue(item) == aqueue.Admitted {
			return AdmitAfterEviction
		}
		// Another producer raced us for the freed slot; treat as a
		// terminal drop rather than looping (bounded retry policy).
	}

	if acct != nil {
		acct.DroppedProtectedOverFull.Add(1)
	}
	return AdmitDroppedProtectedOverProtected
}
