package acquisition

import (
	"slices"
	"sync"
)

// ErrorClass groups status codes by what a caller can do about them
type ErrorClass string

const (
	// ClassTimeout marks a deadline expiry, typically a missing trigger
	ClassTimeout ErrorClass = "timeout"
	// ClassTransient marks a condition that may clear on its own
	ClassTransient ErrorClass = "transient"
	// ClassResource marks exhausted memory, buffers or DMA bandwidth
	ClassResource ErrorClass = "resource"
	// ClassArgument marks a call rejected for its arguments
	ClassArgument ErrorClass = "argument"
	// ClassHardware marks a board or driver fault
	ClassHardware ErrorClass = "hardware"
	// ClassAPI covers every other documented status
	ClassAPI ErrorClass = "api"
)

// Retryable reports whether repeating the whole acquisition may succeed
func (c ErrorClass) Retryable() bool {
	return c == ClassTimeout || c == ClassTransient
}

// DeviceErrorRecord describes one documented status code
type DeviceErrorRecord struct {
	Code    StatusCode `yaml:"code"`
	Name    string     `yaml:"name"`
	Message string     `yaml:"message,omitempty"`
	Class   ErrorClass `yaml:"class"`
}

// Text returns the name followed by the message when there is one
func (r DeviceErrorRecord) Text() string {
	if r.Message == "" {
		return r.Name
	}
	return r.Name + ": " + r.Message
}

// statusNames lists the documented codes in order starting at 513
var statusNames = [...]string{
	"ApiFailed", "ApiAccessDenied", "ApiDmaChannelUnavailable", "ApiDmaChannelInvalid",
	"ApiDmaChannelTypeError", "ApiDmaInProgress", "ApiDmaDone", "ApiDmaPaused",
	"ApiDmaNotPaused", "ApiDmaCommandInvalid", "ApiDmaManReady", "ApiDmaManNotReady",
	"ApiDmaInvalidChannelPriority", "ApiDmaManCorrupted", "ApiDmaInvalidElementIndex",
	"ApiDmaNoMoreElements", "ApiDmaSglInvalid", "ApiDmaSglQueueFull", "ApiNullParam",
	"ApiInvalidBusIndex", "ApiUnsupportedFunction", "ApiInvalidPciSpace", "ApiInvalidIopSpace",
	"ApiInvalidSize", "ApiInvalidAddress", "ApiInvalidAccessType", "ApiInvalidIndex",
	"ApiMuNotReady", "ApiMuFifoEmpty", "ApiMuFifoFull", "ApiInvalidRegister",
	"ApiDoorbellClearFailed", "ApiInvalidUserPin", "ApiInvalidUserState", "ApiEepromNotPresent",
	"ApiEepromTypeNotSupported", "ApiEepromBlank", "ApiConfigAccessFailed", "ApiInvalidDeviceInfo",
	"ApiNoActiveDriver", "ApiInsufficientResources", "ApiObjectAlreadyAllocated",
	"ApiAlreadyInitialized", "ApiNotInitialized", "ApiBadConfigRegEndianMode",
	"ApiInvalidPowerState", "ApiPowerDown", "ApiFlybyNotSupported", "ApiNotSupportThisChannel",
	"ApiNoAction", "ApiHSNotSupported", "ApiVPDNotSupported", "ApiVpdNotEnabled", "ApiNoMoreCap",
	"ApiInvalidOffset", "ApiBadPinDirection", "ApiPciTimeout", "ApiDmaChannelClosed",
	"ApiDmaChannelError", "ApiInvalidHandle", "ApiBufferNotReady", "ApiInvalidData",
	"ApiDoNothing", "ApiDmaSglBuildFailed", "ApiPMNotSupported", "ApiInvalidDriverVersion",
	"ApiWaitTimeout", "ApiWaitCanceled", "ApiBufferTooSmall", "ApiBufferOverflow",
	"ApiInvalidBuffer", "ApiInvalidRecordsPerBuffer", "ApiDmaPending",
	"ApiLockAndProbePagesFailed", "ApiWaitAbandoned", "ApiWaitFailed", "ApiTransferComplete",
	"ApiPllNotLocked", "ApiNotSupportedInDualChannelMode",
}

const firstStatusCode StatusCode = 513

var statusMessages = map[StatusCode]string{
	579: "operation did not finish during timeout interval. Check your trigger.",
	582: "rate of acquiring data > rate of transferring data to local memory. " +
		"Try reducing sample rate, reducing number of enabled channels, increasing size of each " +
		"DMA buffer or increase number of DMA buffers.",
	585: "Async I/O operation was successfully started, it will be completed when sufficient " +
		"trigger events are supplied to fill the buffer.",
	586: "Driver or operating system was unable to prepare the specified buffer for DMA " +
		"transfer. Try reducing buffer size or total number of buffers.",
	589: "This buffer is last in the current acquisition.",
	590: "hardware error, contact AlazarTech",
	591: "Requested number of samples per channel is too large to fit in on-board memory. " +
		"Try reducing number of samples per channel, or switch to single channel mode.",
}

var statusClasses = map[StatusCode]ErrorClass{
	569: ClassTimeout, 579: ClassTimeout,

	518: ClassTransient, 573: ClassTransient, 580: ClassTransient, 585: ClassTransient,

	553: ClassResource, 554: ClassResource, 581: ClassResource, 582: ClassResource,
	586: ClassResource,

	531: ClassArgument, 533: ClassArgument, 536: ClassArgument, 537: ClassArgument,
	538: ClassArgument, 539: ClassArgument, 572: ClassArgument, 583: ClassArgument,
	584: ClassArgument, 591: ClassArgument,

	547: ClassHardware, 548: ClassHardware, 549: ClassHardware, 552: ClassHardware,
	559: ClassHardware, 590: ClassHardware,
}

// Taxonomy maps status codes to their documented meaning. It is immutable
// after construction and safe for concurrent use.
type Taxonomy struct {
	records map[StatusCode]DeviceErrorRecord
}

// DefaultTaxonomy returns the shared status table, built on first use
var DefaultTaxonomy = sync.OnceValue(newTaxonomy)

func newTaxonomy() *Taxonomy {
	t := &Taxonomy{records: make(map[StatusCode]DeviceErrorRecord, len(statusNames))}
	for i, name := range statusNames {
		code := firstStatusCode + StatusCode(i) //nolint:gosec // bounded by the table length
		class, ok := statusClasses[code]
		if !ok {
			class = ClassAPI
		}
		t.records[code] = DeviceErrorRecord{
			Code:    code,
			Name:    name,
			Message: statusMessages[code],
			Class:   class,
		}
	}
	return t
}

// Lookup returns the record for a documented code
func (t *Taxonomy) Lookup(code StatusCode) (DeviceErrorRecord, bool) {
	r, ok := t.records[code]
	return r, ok
}

// Records returns all documented codes in ascending order
func (t *Taxonomy) Records() []DeviceErrorRecord {
	out := make([]DeviceErrorRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b DeviceErrorRecord) int {
		return int(a.Code) - int(b.Code)
	})
	return out
}

// Check converts the status of a driver call into an error. StatusSuccess
// returns nil, a documented code returns *DeviceCallError and anything else
// returns *UnknownDeviceError.
func (t *Taxonomy) Check(operation string, code StatusCode) error {
	if code == StatusSuccess {
		return nil
	}
	r, ok := t.records[code]
	if !ok {
		return &UnknownDeviceError{Operation: operation, Code: code}
	}
	return &DeviceCallError{
		Operation: operation,
		Code:      code,
		Name:      r.Name,
		Message:   r.Message,
		Class:     r.Class,
	}
}
