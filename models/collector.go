// models/collector.go
package models

import "sync"

// FetchCollector is a mutex-guarded accumulator for batch transfer outcomes,
// safe for concurrent use by worker goroutines.
type FetchCollector struct {
	mu     sync.Mutex
	result FetchResult
}

func (c *FetchCollector) Success(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Succeeded = append(c.result.Succeeded, path)
}

func (c *FetchCollector) Fail(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Failed = append(c.result.Failed, path)
}

func (c *FetchCollector) Corrupt(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Corrupted = append(c.result.Corrupted, path)
}

// Result returns a copy of the accumulated outcome.
func (c *FetchCollector) Result() FetchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FetchResult{
		Succeeded: append([]string(nil), c.result.Succeeded...),
		Failed:    append([]string(nil), c.result.Failed...),
		Corrupted: append([]string(nil), c.result.Corrupted...),
	}
}
