package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/logging"
	"go.bug.st/serial"
)

// RTUTransport implements common.Transport over a serial line.
// Ref: spec "RTU client" - "RTU is half-duplex: requests are serialized
// through a send-mutex... write request bytes, then synchronously read
// the expected response byte-by-byte driven by the function code."
type RTUTransport struct {
	logger common.LoggerInterface

	portName       string
	mode           serial.Mode
	sendTimeout    time.Duration
	receiveTimeout time.Duration
	rs485Enabled   bool

	backoff          BackoffSchedule
	reconnectEnabled bool
	intentional      atomic.Bool
	events           *common.EventDispatcher
	bgCtx            context.Context
	bgCancel         context.CancelFunc

	sendMutex sync.Mutex // serializes requests; only one outstanding exchange at a time

	stateMutex sync.Mutex
	connected  bool
	port       serial.Port
	reader     *bufio.Reader
}

// RTUTransportOption configures an RTUTransport.
type RTUTransportOption func(*RTUTransport)

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) RTUTransportOption {
	return func(t *RTUTransport) { t.mode.BaudRate = baud }
}

// WithDataBits sets the number of data bits per byte (5-8).
func WithDataBits(bits int) RTUTransportOption {
	return func(t *RTUTransport) { t.mode.DataBits = bits }
}

// WithParity sets the serial parity mode.
func WithParity(parity serial.Parity) RTUTransportOption {
	return func(t *RTUTransport) { t.mode.Parity = parity }
}

// WithStopBits sets the number of stop bits.
func WithStopBits(stopBits serial.StopBits) RTUTransportOption {
	return func(t *RTUTransport) { t.mode.StopBits = stopBits }
}

// WithRTUSendTimeout sets the transport's send timeout value. Send does not
// apply it: writes to the serial port are not bounded by a timeout.
func WithRTUSendTimeout(d time.Duration) RTUTransportOption {
	return func(t *RTUTransport) { t.sendTimeout = d }
}

// WithRTUReceiveTimeout bounds how long the transport waits for a
// response once the request has been written.
func WithRTUReceiveTimeout(d time.Duration) RTUTransportOption {
	return func(t *RTUTransport) { t.receiveTimeout = d }
}

// WithRS485 enables Linux RS-485 direction control on connect, restored
// on disconnect. No-op where the platform or serial port can't support it.
func WithRS485(enabled bool) RTUTransportOption {
	return func(t *RTUTransport) { t.rs485Enabled = enabled }
}

// WithRTUBackoff overrides the reconnect timing policy.
func WithRTUBackoff(b BackoffSchedule) RTUTransportOption {
	return func(t *RTUTransport) { t.backoff = b }
}

// WithRTUAutoReconnect controls whether an unexpected disconnect starts a
// background reconnect loop. Enabled by default.
func WithRTUAutoReconnect(enabled bool) RTUTransportOption {
	return func(t *RTUTransport) { t.reconnectEnabled = enabled }
}

// WithRTUEvents attaches an event dispatcher for Connected/Disconnected
// notifications.
func WithRTUEvents(events *common.EventDispatcher) RTUTransportOption {
	return func(t *RTUTransport) { t.events = events }
}

// WithRTUTransportLogger sets the transport's logger.
func WithRTUTransportLogger(logger common.LoggerInterface) RTUTransportOption {
	return func(t *RTUTransport) { t.logger = logger }
}

// NewRTUTransport creates a new RTUTransport for the given serial device
// path (e.g. "/dev/ttyUSB0", "COM3").
func NewRTUTransport(portName string, options ...RTUTransportOption) *RTUTransport {
	bgCtx, bgCancel := context.WithCancel(context.Background())

	t := &RTUTransport{
		logger:   logging.NewLogger(),
		portName: portName,
		mode: serial.Mode{
			BaudRate: 19200,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		sendTimeout:      time.Second,
		receiveTimeout:   time.Second,
		backoff:          DefaultBackoffSchedule(),
		reconnectEnabled: true,
		bgCtx:            bgCtx,
		bgCancel:         bgCancel,
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// WithLogger sets the logger for the transport and returns the modified transport.
func (t *RTUTransport) WithLogger(logger common.LoggerInterface) common.Transport {
	t.logger = logger
	return t
}

// Connect opens the serial port, retrying with the transport's backoff
// schedule until it succeeds, ctx is cancelled, or the reconnect window
// elapses.
func (t *RTUTransport) Connect(ctx context.Context) error {
	t.stateMutex.Lock()
	if t.connected {
		t.stateMutex.Unlock()
		return common.ErrAlreadyConnected
	}
	t.intentional.Store(false)
	select {
	case <-t.bgCtx.Done():
		t.bgCtx, t.bgCancel = context.WithCancel(context.Background())
	default:
	}
	t.stateMutex.Unlock()

	t.logger.Info(ctx, "Opening serial port %s", t.portName)

	err := t.backoff.Run(ctx, func(attemptCtx context.Context, _ time.Duration) error {
		return t.dialOnce(attemptCtx)
	})
	if err != nil {
		t.logger.Error(ctx, "Failed to open %s: %v", t.portName, err)
		return err
	}

	t.logger.Info(ctx, "Opened serial port %s", t.portName)
	return nil
}

func (t *RTUTransport) dialOnce(ctx context.Context) error {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()

	if t.connected {
		return nil
	}

	port, err := serial.Open(t.portName, &t.mode)
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(t.receiveTimeout); err != nil {
		port.Close()
		return err
	}

	if t.rs485Enabled {
		if err := enableRS485(port); err != nil {
			t.logger.Warn(ctx, "Could not enable RS-485 direction control on %s: %v", t.portName, err)
		}
	}

	t.port = port
	t.reader = bufio.NewReader(port)
	t.connected = true
	t.intentional.Store(false)

	if t.events != nil {
		t.events.Emit(common.Event{Type: common.EventConnected, RemoteAddr: t.portName})
	}

	return nil
}

// Disconnect closes the serial port.
func (t *RTUTransport) Disconnect(ctx context.Context) error {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()

	if !t.connected {
		return nil
	}

	t.logger.Info(ctx, "Closing serial port %s", t.portName)

	t.intentional.Store(true)
	t.bgCancel()

	if t.rs485Enabled && t.port != nil {
		if err := disableRS485(t.port); err != nil {
			t.logger.Warn(ctx, "Could not disable RS-485 direction control on %s: %v", t.portName, err)
		}
	}

	t.connected = false

	var err error
	if t.port != nil {
		err = t.port.Close()
	}
	t.port = nil
	t.reader = nil

	if t.events != nil {
		t.events.Emit(common.Event{Type: common.EventDisconnected})
	}

	return err
}

// IsConnected returns true if the serial port is open.
func (t *RTUTransport) IsConnected() bool {
	t.stateMutex.Lock()
	defer t.stateMutex.Unlock()
	return t.connected
}

func (t *RTUTransport) setDisconnected(err error) {
	t.stateMutex.Lock()
	wasConnected := t.connected
	t.connected = false
	port := t.port
	t.port = nil
	t.reader = nil
	t.stateMutex.Unlock()

	if !wasConnected {
		return
	}

	ctx := context.Background()
	t.logger.Error(ctx, "Serial transport disconnected: %v", err)
	if port != nil {
		port.Close()
	}

	if t.events != nil {
		t.events.Emit(common.Event{Type: common.EventDisconnected})
	}

	if t.intentional.Load() || !t.reconnectEnabled {
		return
	}

	go t.runAutoReconnect(ctx)
}

func (t *RTUTransport) runAutoReconnect(ctx context.Context) {
	t.logger.Info(ctx, "Reopening serial port %s", t.portName)

	err := t.backoff.Run(t.bgCtx, func(attemptCtx context.Context, _ time.Duration) error {
		return t.dialOnce(attemptCtx)
	})
	if err != nil {
		t.logger.Error(ctx, "Gave up reopening %s: %v", t.portName, err)
		return
	}

	t.logger.Info(ctx, "Reopened serial port %s", t.portName)
}

// Send writes request onto the bus and synchronously reads the matching
// response. The send-mutex guarantees only one exchange is in flight at
// a time, matching RTU's strictly half-duplex request/response model.
// Ref: spec "RTU client."
func (t *RTUTransport) Send(ctx context.Context, request common.Request) (common.Response, error) {
	if !t.IsConnected() {
		return nil, common.ErrNotConnected
	}

	t.sendMutex.Lock()
	defer t.sendMutex.Unlock()

	t.stateMutex.Lock()
	port := t.port
	reader := t.reader
	t.stateMutex.Unlock()
	if port == nil || reader == nil {
		return nil, common.ErrNotConnected
	}

	t.flush(port, reader)

	frame, err := request.Encode()
	if err != nil {
		return nil, err
	}

	if hexLogger, ok := t.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, frame)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = port.SetReadTimeout(time.Until(deadline))
	} else {
		_ = port.SetReadTimeout(t.receiveTimeout)
	}

	if _, err := port.Write(frame); err != nil {
		t.setDisconnected(fmt.Errorf("write error: %w", err))
		return nil, err
	}

	responseFrame, err := t.readResponseFrame(ctx, reader, request.GetPDU().FunctionCode)
	if err != nil {
		if err == io.EOF {
			t.setDisconnected(fmt.Errorf("read error: %w", err))
		}
		return nil, err
	}

	if hexLogger, ok := t.logger.(common.LoggerInterfaceHexdump); ok {
		hexLogger.Hexdump(ctx, responseFrame)
	}

	response := &RTUResponse{}
	if err := response.Decode(responseFrame); err != nil {
		return nil, err
	}
	if response.UnitID != request.GetUnitID() {
		return nil, common.ErrInvalidResponseFormat
	}

	return response, nil
}

// flush discards any bytes left over from a prior aborted or timed-out
// exchange before a new request is written, both what bufio has already
// buffered and whatever is still sitting in the OS serial input queue, so
// a desynced bus can't mis-frame the next response.
func (t *RTUTransport) flush(port serial.Port, r *bufio.Reader) {
	if n := r.Buffered(); n > 0 {
		_, _ = r.Discard(n)
	}
	_ = port.ResetInputBuffer()
}

// readFull reads exactly len(buf) bytes, respecting both ctx's deadline
// and the transport's receive timeout. go.bug.st/serial returns (0, nil)
// from Read when its own per-call timeout elapses rather than an error,
// so plain io.ReadFull would spin forever on a truly silent bus; this
// tracks an overall deadline across those zero-byte reads instead.
func (t *RTUTransport) readFull(ctx context.Context, r *bufio.Reader, buf []byte) error {
	deadline := time.Now().Add(t.receiveTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	read := 0
	for read < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
		if n == 0 && time.Now().After(deadline) {
			return common.ErrFrameTimeout
		}
	}
	return nil
}

// readResponseFrame reads one complete RTU response frame from r, sized
// according to the function code that was requested.
func (t *RTUTransport) readResponseFrame(ctx context.Context, r *bufio.Reader, requested common.FunctionCode) ([]byte, error) {
	header := make([]byte, 2)
	if err := t.readFull(ctx, r, header); err != nil {
		return nil, err
	}

	if !common.IsFunctionException(common.FunctionCode(header[1])) && requested == common.FuncReadDeviceIdentification {
		return t.readDeviceIdentificationResponse(ctx, r, header)
	}

	length, headerNeeded, ok := RTUResponseFrameLength(requested, header)
	for !ok {
		if headerNeeded <= len(header) {
			return nil, common.ErrBadFrame
		}
		more := make([]byte, headerNeeded-len(header))
		if err := t.readFull(ctx, r, more); err != nil {
			return nil, err
		}
		header = append(header, more...)
		length, headerNeeded, ok = RTUResponseFrameLength(requested, header)
	}

	if length <= len(header) {
		return header[:length], nil
	}
	rest := make([]byte, length-len(header))
	if err := t.readFull(ctx, r, rest); err != nil {
		return nil, err
	}
	return append(header, rest...), nil
}

// readDeviceIdentificationResponse reads a ReadDeviceIdentification
// response, whose length depends on a variable list of identification
// objects that can't be predicted from a fixed-size header.
func (t *RTUTransport) readDeviceIdentificationResponse(ctx context.Context, r *bufio.Reader, header []byte) ([]byte, error) {
	// MEI type, read device id code, conformity level, more follows, next
	// object id, number of objects.
	fixed := make([]byte, 6)
	if err := t.readFull(ctx, r, fixed); err != nil {
		return nil, err
	}
	frame := append(header, fixed...)

	numberOfObjects := int(fixed[5])
	for i := 0; i < numberOfObjects; i++ {
		objHeader := make([]byte, 2)
		if err := t.readFull(ctx, r, objHeader); err != nil {
			return nil, err
		}
		frame = append(frame, objHeader...)

		objLen := int(objHeader[1])
		if objLen > 0 {
			objData := make([]byte, objLen)
			if err := t.readFull(ctx, r, objData); err != nil {
				return nil, err
			}
			frame = append(frame, objData...)
		}
	}

	crc := make([]byte, 2)
	if err := t.readFull(ctx, r, crc); err != nil {
		return nil, err
	}
	return append(frame, crc...), nil
}
