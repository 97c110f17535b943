package acquisition

import (
	"slices"
	"sync"
)

// mockDriver records calls and returns scripted statuses. Every call
// succeeds unless a status was queued for its operation.
type mockDriver struct {
	mu       sync.Mutex
	handle   BoardHandle
	bits     uint8
	calls    []string
	statuses map[string][]StatusCode
	params   []AsyncReadParams
	record   [2]uint32
	clock    [4]uint32
	posted   [][]byte
	onWait   func(n int)
	waits    int
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		handle:   7,
		bits:     8,
		statuses: make(map[string][]StatusCode),
	}
}

// failOn queues statuses for the next calls of op
func (m *mockDriver) failOn(op string, codes ...StatusCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[op] = append(m.statuses[op], codes...)
}

func (m *mockDriver) status(op string) StatusCode {
	m.calls = append(m.calls, op)
	if q := m.statuses[op]; len(q) > 0 {
		m.statuses[op] = q[1:]
		return q[0]
	}
	return StatusSuccess
}

func (m *mockDriver) ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func (m *mockDriver) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *mockDriver) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.params = nil
}

func (m *mockDriver) BoardBySystemID(_, _ uint32) BoardHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, OpBoardBySystemID)
	return m.handle
}

func (m *mockDriver) SetCaptureClock(_ BoardHandle, source, rate, edge, decimation uint32) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = [4]uint32{source, rate, edge, decimation}
	return m.status(OpSetCaptureClock)
}

func (m *mockDriver) InputControl(_ BoardHandle, _ uint8, _, _, _ uint32) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status(OpInputControl)
}

func (m *mockDriver) SetBWLimit(_ BoardHandle, _ uint8, _ uint32) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status(OpSetBWLimit)
}

func (m *mockDriver) SetTriggerOperation(_ BoardHandle, _ TriggerOperationArgs) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status(OpSetTriggerOp)
}

func (m *mockDriver) SetExternalTrigger(_ BoardHandle, _, _ uint32) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status(OpSetExternalTrig)
}

func (m *mockDriver) SetTriggerDelay(_ BoardHandle, _ uint32) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status(OpSetTriggerDelay)
}

func (m *mockDriver) SetTriggerTimeOut(_ BoardHandle, _ uint32) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status(OpSetTriggerTimeOut)
}

func (m *mockDriver) AbortAsyncRead(_ BoardHandle) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = nil
	return m.status(OpAbortAsyncRead)
}

func (m *mockDriver) GetChannelInfo(_ BoardHandle) (ChannelInfo, StatusCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ChannelInfo{MaxSamples: 1 << 20, BitsPerSample: m.bits}, m.status(OpGetChannelInfo)
}

func (m *mockDriver) SetRecordSize(_ BoardHandle, pre, post uint32) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = [2]uint32{pre, post}
	return m.status(OpSetRecordSize)
}

func (m *mockDriver) BeforeAsyncRead(_ BoardHandle, p AsyncReadParams) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = append(m.params, p)
	return m.status(OpBeforeAsyncRead)
}

func (m *mockDriver) PostAsyncBuffer(_ BoardHandle, buf []byte) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := m.status(OpPostAsyncBuffer)
	if code == StatusSuccess {
		m.posted = append(m.posted, buf)
	}
	return code
}

func (m *mockDriver) StartCapture(_ BoardHandle) StatusCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status(OpStartCapture)
}

func (m *mockDriver) WaitAsyncBufferComplete(_ BoardHandle, buf []byte, _ uint32) StatusCode {
	m.mu.Lock()
	m.waits++
	n, hook := m.waits, m.onWait
	m.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range buf {
		buf[i] = byte(n)
	}
	if len(m.posted) > 0 {
		m.posted = m.posted[1:]
	}
	return m.status(OpWaitBuffer)
}

func (m *mockDriver) lastParams() AsyncReadParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.params) == 0 {
		return AsyncReadParams{}
	}
	return m.params[len(m.params)-1]
}
