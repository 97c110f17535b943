package acquisition

// BoardHandle identifies an opened board. Zero means no board.
type BoardHandle uintptr

// StatusCode is the raw status returned by every driver call
type StatusCode uint32

// StatusSuccess is the only status code that is not an error
const StatusSuccess StatusCode = 512

// Driver operation names. They label metrics, log records and errors, and
// are shared with driver implementations that record calls.
const (
	OpBoardBySystemID   = "get_board_handle"
	OpSetCaptureClock   = "set_capture_clock"
	OpInputControl      = "input_control"
	OpSetBWLimit        = "set_bw_limit"
	OpSetTriggerOp      = "set_trigger_operation"
	OpSetExternalTrig   = "set_external_trigger"
	OpSetTriggerDelay   = "set_trigger_delay"
	OpSetTriggerTimeOut = "set_trigger_timeout"
	OpAbortAsyncRead    = "abort_async_read"
	OpGetChannelInfo    = "get_channel_info"
	OpSetRecordSize     = "set_record_size"
	OpBeforeAsyncRead   = "before_async_read"
	OpPostAsyncBuffer   = "post_buffer"
	OpStartCapture      = "start_capture"
	OpWaitBuffer        = "wait_buffer"
)

// ChannelInfo is reported by the board for its input channels
type ChannelInfo struct {
	MaxSamples    uint32
	BitsPerSample uint8
}

// TriggerOperationArgs carries the arguments of one trigger operation call,
// covering both trigger engines
type TriggerOperationArgs struct {
	Operation uint32
	Engine1   uint32
	Source1   uint32
	Slope1    uint32
	Level1    uint32
	Engine2   uint32
	Source2   uint32
	Slope2    uint32
	Level2    uint32
}

// AsyncReadParams is the buffer layout handed to BeforeAsyncRead
type AsyncReadParams struct {
	ChannelSelection      uint32
	TransferOffset        int32
	SamplesPerRecord      uint32
	RecordsPerBuffer      uint32
	RecordsPerAcquisition uint32
	Flags                 uint32
}

// BufferSamples returns the per-channel buffer size in samples implied by
// the parameters
func (p AsyncReadParams) BufferSamples() uint64 {
	return uint64(p.SamplesPerRecord) * uint64(p.RecordsPerBuffer)
}

// Driver is the capability interface of a digitizer board. Every call is
// synchronous and returns the board status. Implementations wrap the vendor
// library or simulate a board.
type Driver interface {
	// BoardBySystemID returns the handle of a board, or 0 when absent
	BoardBySystemID(systemID, boardID uint32) BoardHandle

	SetCaptureClock(h BoardHandle, source, rate, edge, decimation uint32) StatusCode
	InputControl(h BoardHandle, channel uint8, coupling, inputRange, impedance uint32) StatusCode
	SetBWLimit(h BoardHandle, channel uint8, enable uint32) StatusCode
	SetTriggerOperation(h BoardHandle, args TriggerOperationArgs) StatusCode
	SetExternalTrigger(h BoardHandle, coupling, inputRange uint32) StatusCode
	SetTriggerDelay(h BoardHandle, delay uint32) StatusCode
	SetTriggerTimeOut(h BoardHandle, ticks uint32) StatusCode

	AbortAsyncRead(h BoardHandle) StatusCode
	GetChannelInfo(h BoardHandle) (ChannelInfo, StatusCode)
	SetRecordSize(h BoardHandle, preTrigger, postTrigger uint32) StatusCode
	BeforeAsyncRead(h BoardHandle, params AsyncReadParams) StatusCode

	// PostAsyncBuffer hands buf to the board. The board owns the memory
	// until WaitAsyncBufferComplete returns for the same buffer.
	PostAsyncBuffer(h BoardHandle, buf []byte) StatusCode
	StartCapture(h BoardHandle) StatusCode
	WaitAsyncBufferComplete(h BoardHandle, buf []byte, timeoutMS uint32) StatusCode
}
