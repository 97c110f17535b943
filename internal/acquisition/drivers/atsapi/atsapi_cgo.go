//go:build atsapi && cgo

package atsapi

/*
#cgo LDFLAGS: -lATSApi
#include <AlazarApi.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/logger"
)

// Available reports whether the vendor binding is compiled in
const Available = true

// Driver calls the vendor library. Native handles stay inside the driver;
// the engine only sees small integer handles.
type Driver struct {
	log logger.Logger

	mu      sync.RWMutex
	handles map[acquisition.BoardHandle]C.HANDLE
	next    acquisition.BoardHandle
}

var _ acquisition.Driver = (*Driver)(nil)

// New returns a driver backed by the vendor library
func New(log logger.Logger) (acquisition.Driver, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Driver{
		log:     log.Module("atsapi"),
		handles: make(map[acquisition.BoardHandle]C.HANDLE),
	}, nil
}

func (d *Driver) native(h acquisition.BoardHandle) (C.HANDLE, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.handles[h]
	return n, ok
}

// invalidHandle is returned for handles the driver never issued
const invalidHandle acquisition.StatusCode = 572

func status(rc C.RETURN_CODE) acquisition.StatusCode {
	return acquisition.StatusCode(rc)
}

func (d *Driver) BoardBySystemID(systemID, boardID uint32) acquisition.BoardHandle {
	n := C.AlazarGetBoardBySystemID(C.U32(systemID), C.U32(boardID))
	if n == nil {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for h, existing := range d.handles {
		if existing == n {
			return h
		}
	}
	d.next++
	d.handles[d.next] = n
	d.log.Debug("board handle acquired",
		logger.Uint32("system_id", systemID),
		logger.Uint32("board_id", boardID))
	return d.next
}

func (d *Driver) SetCaptureClock(h acquisition.BoardHandle, source, rate, edge, decimation uint32) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarSetCaptureClock(n, C.U32(source), C.U32(rate), C.U32(edge), C.U32(decimation)))
}

func (d *Driver) InputControl(h acquisition.BoardHandle, channel uint8, coupling, inputRange, impedance uint32) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarInputControl(n, C.U8(channel), C.U32(coupling), C.U32(inputRange), C.U32(impedance)))
}

func (d *Driver) SetBWLimit(h acquisition.BoardHandle, channel uint8, enable uint32) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarSetBWLimit(n, C.U32(channel), C.U32(enable)))
}

func (d *Driver) SetTriggerOperation(h acquisition.BoardHandle, t acquisition.TriggerOperationArgs) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarSetTriggerOperation(n, C.U32(t.Operation),
		C.U32(t.Engine1), C.U32(t.Source1), C.U32(t.Slope1), C.U32(t.Level1),
		C.U32(t.Engine2), C.U32(t.Source2), C.U32(t.Slope2), C.U32(t.Level2)))
}

func (d *Driver) SetExternalTrigger(h acquisition.BoardHandle, coupling, inputRange uint32) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarSetExternalTrigger(n, C.U32(coupling), C.U32(inputRange)))
}

func (d *Driver) SetTriggerDelay(h acquisition.BoardHandle, delay uint32) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarSetTriggerDelay(n, C.U32(delay)))
}

func (d *Driver) SetTriggerTimeOut(h acquisition.BoardHandle, ticks uint32) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarSetTriggerTimeOut(n, C.U32(ticks)))
}

func (d *Driver) AbortAsyncRead(h acquisition.BoardHandle) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarAbortAsyncRead(n))
}

func (d *Driver) GetChannelInfo(h acquisition.BoardHandle) (acquisition.ChannelInfo, acquisition.StatusCode) {
	n, ok := d.native(h)
	if !ok {
		return acquisition.ChannelInfo{}, invalidHandle
	}
	var samples C.U32
	var bits C.U8
	rc := C.AlazarGetChannelInfo(n, &samples, &bits)
	return acquisition.ChannelInfo{MaxSamples: uint32(samples), BitsPerSample: uint8(bits)}, status(rc)
}

func (d *Driver) SetRecordSize(h acquisition.BoardHandle, preTrigger, postTrigger uint32) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarSetRecordSize(n, C.U32(preTrigger), C.U32(postTrigger)))
}

func (d *Driver) BeforeAsyncRead(h acquisition.BoardHandle, p acquisition.AsyncReadParams) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarBeforeAsyncRead(n, C.U32(p.ChannelSelection), C.long(p.TransferOffset),
		C.U32(p.SamplesPerRecord), C.U32(p.RecordsPerBuffer), C.U32(p.RecordsPerAcquisition), C.U32(p.Flags)))
}

func (d *Driver) PostAsyncBuffer(h acquisition.BoardHandle, buf []byte) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	if len(buf) == 0 {
		return acquisition.StatusCode(C.ApiInvalidBuffer)
	}
	return status(C.AlazarPostAsyncBuffer(n, unsafe.Pointer(&buf[0]), C.U32(len(buf))))
}

func (d *Driver) StartCapture(h acquisition.BoardHandle) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	return status(C.AlazarStartCapture(n))
}

func (d *Driver) WaitAsyncBufferComplete(h acquisition.BoardHandle, buf []byte, timeoutMS uint32) acquisition.StatusCode {
	n, ok := d.native(h)
	if !ok {
		return invalidHandle
	}
	if len(buf) == 0 {
		return acquisition.StatusCode(C.ApiInvalidBuffer)
	}
	return status(C.AlazarWaitAsyncBufferComplete(n, unsafe.Pointer(&buf[0]), C.U32(timeoutMS)))
}
