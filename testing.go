package sbd

import "sync"

// MockSource is an in-memory RequestSource for testing drain callbacks
// without a host. It completes requests the way a host queue does and
// records every completion for verification.
type MockSource struct {
	mu         sync.Mutex
	sectorSize uint32
	pending    []*Request
	completed  []*Request

	// Method call tracking
	fetchCalls      int
	endCurrentCalls int
	endAllCalls     int
}

// NewMockSource creates a source holding reqs, advancing cursors in
// sectorSize units.
func NewMockSource(sectorSize uint32, reqs ...*Request) *MockSource {
	return &MockSource{
		sectorSize: sectorSize,
		pending:    append([]*Request(nil), reqs...),
	}
}

// Add queues more requests
func (m *MockSource) Add(reqs ...*Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, reqs...)
}

// Fetch implements RequestSource
func (m *MockSource) Fetch() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchCalls++
	if len(m.pending) == 0 {
		return nil
	}
	req := m.pending[0]
	m.pending = m.pending[1:]
	return req
}

// EndCurrent implements RequestSource
func (m *MockSource) EndCurrent(req *Request, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endCurrentCalls++
	if req.Advance(m.sectorSize, err) {
		return true
	}
	m.completed = append(m.completed, req)
	return false
}

// EndAll implements RequestSource
func (m *MockSource) EndAll(req *Request, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.endAllCalls++
	req.Finish(err)
	m.completed = append(m.completed, req)
}

// Testing utility methods

// Pending returns the number of requests not yet fetched
func (m *MockSource) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Completed returns finished requests in completion order
func (m *MockSource) Completed() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.completed...)
}

// Failed returns the finished requests that carry an error
func (m *MockSource) Failed() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	var failed []*Request
	for _, req := range m.completed {
		if req.Err() != nil {
			failed = append(failed, req)
		}
	}
	return failed
}

// CallCounts returns the number of times each method has been called
func (m *MockSource) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]int{
		"fetch":       m.fetchCalls,
		"end_current": m.endCurrentCalls,
		"end_all":     m.endAllCalls,
	}
}

// Reset clears call counters and the completion record
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completed = nil
	m.fetchCalls = 0
	m.endCurrentCalls = 0
	m.endAllCalls = 0
}

var _ RequestSource = (*MockSource)(nil)
