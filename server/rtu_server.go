package server

import (
	"bufio"
	"context"
	"sync"
	"time"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/logging"
	"github.com/modbuslabs/gomodbus/transport"
	"go.bug.st/serial"
)

// DefaultRTUReadTimeout bounds each underlying serial Read call so the
// server loop can notice a stop request promptly even on a silent bus.
const DefaultRTUReadTimeout = 100 * time.Millisecond

// RTUServer serves Modbus requests over a serial line.
// Ref: spec "RTU server" - "Driven by stream-ready events. Reads all
// available bytes into a buffer until no more are pending, attempts to
// decode one request frame, dispatches, writes the response. Malformed
// frames are dropped. Only the configured device ids respond; others are
// silently ignored (RTU bus discipline)."
type RTUServer struct {
	portName    string
	mode        serial.Mode
	readTimeout time.Duration

	handlers map[common.FunctionCode]common.HandlerFunc

	registry      *DeviceRegistry
	fallbackStore common.DataStore

	events *common.EventDispatcher

	mutex    sync.RWMutex
	running  bool
	stopChan chan struct{}
	port     serial.Port
	logger   common.LoggerInterface

	protocol *serverProtocolHandler
}

// RTUServerOption configures an RTUServer.
type RTUServerOption func(*RTUServer)

// WithRTUServerBaudRate sets the serial baud rate.
func WithRTUServerBaudRate(baud int) RTUServerOption {
	return func(s *RTUServer) { s.mode.BaudRate = baud }
}

// WithRTUServerDataBits sets the number of data bits per byte.
func WithRTUServerDataBits(bits int) RTUServerOption {
	return func(s *RTUServer) { s.mode.DataBits = bits }
}

// WithRTUServerParity sets the serial parity mode.
func WithRTUServerParity(parity serial.Parity) RTUServerOption {
	return func(s *RTUServer) { s.mode.Parity = parity }
}

// WithRTUServerStopBits sets the number of stop bits.
func WithRTUServerStopBits(stopBits serial.StopBits) RTUServerOption {
	return func(s *RTUServer) { s.mode.StopBits = stopBits }
}

// WithRTUServerLogger sets the server's logger.
func WithRTUServerLogger(logger common.LoggerInterface) RTUServerOption {
	return func(s *RTUServer) { s.logger = logger }
}

// WithRTUServerDataStore sets the fallback store answering for any device
// id not explicitly registered via AddDevice/AddDeviceStore.
func WithRTUServerDataStore(store common.DataStore) RTUServerOption {
	return func(s *RTUServer) { s.fallbackStore = store }
}

// WithRTUServerEvents attaches an externally owned event dispatcher.
func WithRTUServerEvents(events *common.EventDispatcher) RTUServerOption {
	return func(s *RTUServer) {
		s.events = events
		s.registry.events = events
	}
}

// NewRTUServer creates a new Modbus RTU server bound to the given serial
// device path.
func NewRTUServer(portName string, options ...RTUServerOption) *RTUServer {
	events := common.NewEventDispatcher(0)

	s := &RTUServer{
		portName: portName,
		mode: serial.Mode{
			BaudRate: 19200,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		readTimeout:   DefaultRTUReadTimeout,
		handlers:      make(map[common.FunctionCode]common.HandlerFunc),
		registry:      NewDeviceRegistry(events),
		fallbackStore: nil,
		events:        events,
		logger:        logging.NewLogger(),
		protocol:      newServerProtocolHandler(),
	}

	for _, option := range options {
		option(s)
	}

	s.setupDefaultHandlers()

	return s
}

// WithLogger sets the logger for the server (satisfies common.Server).
func (s *RTUServer) WithLogger(logger common.LoggerInterface) common.Server {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.logger = logger
	return s
}

// WithDataStore sets the fallback data store (satisfies common.Server).
func (s *RTUServer) WithDataStore(dataStore common.DataStore) common.Server {
	s.mutex.Lock()
	s.fallbackStore = dataStore
	s.mutex.Unlock()
	return s
}

// AddDevice registers a fresh in-memory store for id and returns it.
func (s *RTUServer) AddDevice(id common.UnitID) common.DataStore {
	return s.registry.AddDevice(id)
}

// AddDeviceStore registers an explicit store for id.
func (s *RTUServer) AddDeviceStore(id common.UnitID, store common.DataStore) error {
	return s.registry.AddDeviceStore(id, store)
}

// RemoveDevice unregisters a device id.
func (s *RTUServer) RemoveDevice(id common.UnitID) {
	s.registry.RemoveDevice(id)
}

// DeviceIDs returns the currently registered device ids.
func (s *RTUServer) DeviceIDs() []common.UnitID {
	return s.registry.DeviceIDs()
}

// Events returns the server's event dispatcher.
func (s *RTUServer) Events() *common.EventDispatcher {
	return s.events
}

func (s *RTUServer) storeFor(unitID common.UnitID) (common.DataStore, bool) {
	if store, ok := s.registry.Get(unitID); ok {
		return store, true
	}
	s.mutex.RLock()
	fallback := s.fallbackStore
	s.mutex.RUnlock()
	if fallback == nil {
		return nil, false
	}
	return fallback, true
}

func (s *RTUServer) registerStoreHandler(fc common.FunctionCode, fn func(ctx context.Context, req common.Request, store common.DataStore) (common.Response, error)) {
	s.SetHandler(fc, func(ctx context.Context, req common.Request) (common.Response, error) {
		store, ok := s.storeFor(req.GetUnitID())
		if !ok {
			return nil, common.ErrUnknownDevice
		}
		return fn(ctx, req, store)
	})
}

func (s *RTUServer) setupDefaultHandlers() {
	s.handlers = make(map[common.FunctionCode]common.HandlerFunc)
	s.registerStoreHandler(common.FuncReadCoils, s.protocol.HandleReadCoils)
	s.registerStoreHandler(common.FuncReadDiscreteInputs, s.protocol.HandleReadDiscreteInputs)
	s.registerStoreHandler(common.FuncReadHoldingRegisters, s.protocol.HandleReadHoldingRegisters)
	s.registerStoreHandler(common.FuncReadInputRegisters, s.protocol.HandleReadInputRegisters)
	s.registerStoreHandler(common.FuncWriteSingleCoil, s.protocol.HandleWriteSingleCoil)
	s.registerStoreHandler(common.FuncWriteSingleRegister, s.protocol.HandleWriteSingleRegister)
	s.registerStoreHandler(common.FuncWriteMultipleCoils, s.protocol.HandleWriteMultipleCoils)
	s.registerStoreHandler(common.FuncWriteMultipleRegisters, s.protocol.HandleWriteMultipleRegisters)
	s.registerStoreHandler(common.FuncReadWriteMultipleRegisters, s.protocol.HandleReadWriteMultipleRegisters)
	s.registerStoreHandler(common.FuncReadDeviceIdentification, s.protocol.HandleReadDeviceIdentification)
}

// SetHandler sets the handler for a specific Modbus function code.
func (s *RTUServer) SetHandler(functionCode common.FunctionCode, handler common.HandlerFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handlers[functionCode] = handler
}

// Start opens the serial port and begins serving requests on a dedicated
// goroutine. Ref: spec "Scheduling model" - "RTU endpoints use one task
// per port (event-driven reads)."
func (s *RTUServer) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return common.ErrAlreadyConnected
	}

	port, err := serial.Open(s.portName, &s.mode)
	if err != nil {
		s.mutex.Unlock()
		return err
	}
	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		port.Close()
		s.mutex.Unlock()
		return err
	}

	s.port = port
	s.running = true
	s.stopChan = make(chan struct{})
	s.mutex.Unlock()

	s.logger.Info(ctx, "Modbus RTU server listening on %s", s.portName)

	go s.serveLoop(ctx)

	return nil
}

// Stop closes the serial port and ends the serve loop.
func (s *RTUServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopChan)
	if s.port != nil {
		s.port.Close()
	}
	s.running = false
	s.logger.Info(ctx, "Modbus RTU server stopped on %s", s.portName)
	return nil
}

// IsRunning returns true if the server is serving requests.
func (s *RTUServer) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// serveLoop reads request frames one at a time and dispatches them.
// Malformed frames are dropped and the loop resyncs on the next byte.
func (s *RTUServer) serveLoop(ctx context.Context) {
	reader := bufio.NewReader(s.port)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		header := make([]byte, 2)
		if err := s.readFull(reader, header); err != nil {
			if s.stopped() {
				return
			}
			continue
		}

		length, headerNeeded, ok := transport.RTURequestFrameLength(header)
		for !ok {
			if headerNeeded <= len(header) {
				s.logger.Debug(ctx, "rtu: unsupported or malformed request header, dropping")
				break
			}
			more := make([]byte, headerNeeded-len(header))
			if err := s.readFull(reader, more); err != nil {
				if s.stopped() {
					return
				}
				break
			}
			header = append(header, more...)
			length, headerNeeded, ok = transport.RTURequestFrameLength(header)
		}
		if !ok {
			continue
		}

		frame := header
		if length > len(header) {
			rest := make([]byte, length-len(header))
			if err := s.readFull(reader, rest); err != nil {
				if s.stopped() {
					return
				}
				continue
			}
			frame = append(frame, rest...)
		}

		request := &transport.RTURequest{}
		if err := request.Decode(frame); err != nil {
			s.logger.Debug(ctx, "rtu: dropping malformed frame: %v", err)
			continue
		}

		if _, ok := s.storeFor(request.UnitID); !ok {
			// Bus discipline: only configured device ids respond.
			continue
		}

		response, err := s.dispatchRequest(ctx, request)
		if err != nil {
			if modbusErr, ok := err.(*common.ModbusError); ok {
				response = transport.NewRTUResponse(request.UnitID, modbusErr.FunctionCode|0x80, []byte{byte(modbusErr.ExceptionCode)})
			} else {
				s.logger.Error(ctx, "rtu: error processing request: %v", err)
				continue
			}
		}

		s.sendResponse(ctx, response)
	}
}

func (s *RTUServer) stopped() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

// readFull reads exactly len(buf) bytes, honoring the server's stop
// signal between the zero-byte reads go.bug.st/serial returns on a
// per-call read timeout.
func (s *RTUServer) readFull(r *bufio.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		if s.stopped() {
			return common.ErrTransportClosing
		}
		n, err := r.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

func (s *RTUServer) dispatchRequest(ctx context.Context, request common.Request) (common.Response, error) {
	functionCode := request.GetPDU().FunctionCode

	s.mutex.RLock()
	handler, exists := s.handlers[functionCode]
	s.mutex.RUnlock()

	if !exists {
		return nil, &common.ModbusError{
			FunctionCode:  functionCode,
			ExceptionCode: common.ExceptionFunctionCodeNotSupported,
		}
	}

	return handler(ctx, request)
}

// sendResponse re-frames response as RTU before writing it to the wire.
// dispatchRequest's handlers are shared with TCPServer and build
// *transport.Response (MBAP framing, no CRC); only the exception path in
// serveLoop already constructs a *transport.RTUResponse. Re-wrapping here
// unconditionally means every reply, exception or not, leaves as a real
// RTU frame.
func (s *RTUServer) sendResponse(ctx context.Context, response common.Response) {
	rtuResponse := transport.NewRTUResponse(response.GetUnitID(), response.GetPDU().FunctionCode, response.GetPDU().Data)

	data, err := rtuResponse.Encode()
	if err != nil {
		s.logger.Error(ctx, "rtu: error encoding response: %v", err)
		return
	}

	s.mutex.RLock()
	port := s.port
	s.mutex.RUnlock()
	if port == nil {
		return
	}

	if _, err := port.Write(data); err != nil {
		s.logger.Error(ctx, "rtu: error writing response: %v", err)
		return
	}

	s.logger.Debug(ctx, "rtu: sent response: unit=%d, function=%s",
		response.GetUnitID(), response.GetPDU().FunctionCode)
}
