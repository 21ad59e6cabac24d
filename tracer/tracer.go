// Copyright © 2026, SAS Institute Inc., Cary, NC, USA.  All Rights Reserved.
// SPDX-License-Identifier: BSD-3-Clause

package tracer

import (
	"fmt"
	"sync"
)

var (
	mu            sync.Mutex
	traceMessages []string
)

// Log just adds a message to the trace log.
// Page workers log concurrently, so access is serialized.
func Log(msg string) {
	mu.Lock()
	traceMessages = append(traceMessages, msg)
	mu.Unlock()
}

// Flush prints the accumulated trace log and resets it.
func Flush() {
	mu.Lock()
	msgs := traceMessages
	// reset so the next run starts fresh
	traceMessages = nil
	mu.Unlock()

	for _, msg := range msgs {
		fmt.Println(msg)
	}
}

// Reset discards the accumulated trace log without printing it.
// Callers that run many fills in one process drop the trace this way
// when tracing is off; the buffer must never outlive the run that
// produced it.
func Reset() {
	mu.Lock()
	traceMessages = nil
	mu.Unlock()
}

// Len reports the number of buffered trace messages.
func Len() int {
	mu.Lock()
	defer mu.Unlock()
	return len(traceMessages)
}
