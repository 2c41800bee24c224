/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package sandbox

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// AvailableMemory returns the memory that can be handed to new processes
// without swapping, reclaimable page cache included.
func AvailableMemory() (int64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("reading virtual memory stats: %w", err)
	}
	return int64(vm.Available), nil
}
