/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package algorithm

import "runtime"

// HeapInUse reports live heap bytes after a GC. Go adapters use it for
// MemoryUsage so index size is the heap delta across Fit.
func HeapInUse() int64 {
	runtime.GC()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapInuse)
}
