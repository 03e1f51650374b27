// Package service defines the interfaces and pure algorithms of the pseudonymization domain.
package service

import (
	"github.com/turtacn/psn/pkg/constants"
)

// Metrics defines the interface for collecting business metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集业务指标的接口。
type Metrics interface {
	// RecordPseudonymCreated counts a newly stored pseudonym.
	// RecordPseudonymCreated 记录新生成的假名。
	RecordPseudonymCreated(algorithm constants.Algorithm)

	// RecordCollision counts a generated pseudonym rejected as duplicate.
	// RecordCollision 记录因重复而被拒绝的假名。
	RecordCollision(algorithm constants.Algorithm)

	// RecordCapacityExhausted counts allocations that ran out of retries.
	// RecordCapacityExhausted 记录重试耗尽的分配。
	RecordCapacityExhausted(domain string)

	// RecordAccessCacheLookup records an access cache hit, miss or timeout.
	// RecordAccessCacheLookup 记录访问缓存的命中、未命中或超时。
	RecordAccessCacheLookup(result string)

	// RecordBatchItems records the per-item outcome counts of a batch operation.
	// RecordBatchItems 记录批量操作中每项的结果计数。
	RecordBatchItems(operation string, succeeded, ignored int)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordPseudonymCreated(constants.Algorithm) {}
func (NoopMetrics) RecordCollision(constants.Algorithm)        {}
func (NoopMetrics) RecordCapacityExhausted(string)             {}
func (NoopMetrics) RecordAccessCacheLookup(string)             {}
func (NoopMetrics) RecordBatchItems(string, int, int)          {}
