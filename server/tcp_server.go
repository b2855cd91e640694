package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/logging"
	"github.com/modbuslabs/gomodbus/transport"
)

// DefaultServerReadTimeout is how long a connection's read loop waits for
// the next byte before cycling back to check for shutdown; it does not
// disconnect an idle client, it just bounds how long a blocking read call
// can run.
// Ref: spec component "TCP server" - "per-stage timeout, default 1s,
// configurable."
const DefaultServerReadTimeout = time.Second

// TCPServer implements a Modbus TCP server
// Implements the Modbus TCP protocol as defined in the Modbus specification
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4 (Modbus Protocol Description)
// Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf, Section 3 (Modbus TCP/IP Protocol)
type TCPServer struct {
	// Server binding configuration
	address  string
	port     int
	listener net.Listener

	// Function code handlers map
	handlers map[common.FunctionCode]common.HandlerFunc

	// Data storage: registry holds per-device stores; fallbackStore answers
	// for any unit id not explicitly registered (nil disables the fallback
	// and such requests are dropped like any other unknown device id).
	registry      *DeviceRegistry
	fallbackStore common.DataStore

	// events fans out ClientConnected/ClientDisconnected and, for devices
	// added through registry, InputWritten/RegisterWritten.
	events *common.EventDispatcher

	onClientConnect    func(ConnectedClient)
	onClientDisconnect func(ConnectedClient)

	readTimeout time.Duration

	// Server state
	running      bool
	clients      map[string]*clientConn
	clientsMutex sync.RWMutex
	mutex        sync.RWMutex
	logger       common.LoggerInterface
	stopChan     chan struct{}

	// Protocol handler for processing requests
	protocol *serverProtocolHandler
}

// TCPServerOption is a function type for configuring a TCPServer
type TCPServerOption func(*TCPServer)

// WithServerPort sets the TCP port for the server
func WithServerPort(port int) TCPServerOption {
	return func(s *TCPServer) {
		s.port = port
	}
}

// WithServerLogger sets the logger for the TCP server
func WithServerLogger(logger common.LoggerInterface) TCPServerOption {
	return func(s *TCPServer) {
		s.logger = logger
	}
}

// WithServerDataStore sets the fallback data store used for any unit id
// not explicitly registered via AddDevice/AddDeviceStore. This matches the
// classic single-device gateway behavior where the unit id is effectively
// ignored.
func WithServerDataStore(store common.DataStore) TCPServerOption {
	return func(s *TCPServer) {
		s.fallbackStore = store
	}
}

// WithServerReadTimeout overrides the per-read deadline used while a
// connection is idle between requests.
func WithServerReadTimeout(d time.Duration) TCPServerOption {
	return func(s *TCPServer) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithServerEvents attaches an externally owned event dispatcher instead of
// the one a new server creates for itself. Useful for sharing a dispatcher
// across a server and a proxy front-end.
func WithServerEvents(events *common.EventDispatcher) TCPServerOption {
	return func(s *TCPServer) {
		s.events = events
		s.registry.events = events
	}
}

// WithOnClientConnect registers a callback invoked synchronously from the
// accept loop whenever a new TCP connection is accepted.
func WithOnClientConnect(fn func(ConnectedClient)) TCPServerOption {
	return func(s *TCPServer) {
		s.onClientConnect = fn
	}
}

// WithOnClientDisconnect registers a callback invoked from a connection's
// handling goroutine right before it tears the connection down.
func WithOnClientDisconnect(fn func(ConnectedClient)) TCPServerOption {
	return func(s *TCPServer) {
		s.onClientDisconnect = fn
	}
}

// NewTCPServer creates a new Modbus TCP server
func NewTCPServer(address string, options ...TCPServerOption) *TCPServer {
	events := common.NewEventDispatcher(0)

	server := &TCPServer{
		address:       address,
		port:          common.DefaultTCPPort,
		handlers:      make(map[common.FunctionCode]common.HandlerFunc),
		registry:      NewDeviceRegistry(events),
		fallbackStore: NewMemoryStore(),
		events:        events,
		readTimeout:   DefaultServerReadTimeout,
		logger:        logging.NewLogger(),
		clients:       make(map[string]*clientConn),
		protocol:      newServerProtocolHandler(),
	}

	// Apply options
	for _, option := range options {
		option(server)
	}

	// Setup default handlers based on data store
	server.setupDefaultHandlers()

	return server
}

// WithLogger sets the logger for the server
func (s *TCPServer) WithLogger(logger common.LoggerInterface) common.Server {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.logger = logger
	return s
}

// WithDataStore sets the fallback data store for the server (satisfies
// common.Server; see WithServerDataStore for the equivalent option).
func (s *TCPServer) WithDataStore(dataStore common.DataStore) common.Server {
	s.mutex.Lock()
	s.fallbackStore = dataStore
	s.mutex.Unlock()
	return s
}

// AddDevice registers a fresh in-memory store for the given device id and
// returns it, or the already-registered store if one exists.
func (s *TCPServer) AddDevice(id common.UnitID) common.DataStore {
	return s.registry.AddDevice(id)
}

// AddDeviceStore registers an explicit store for the given device id.
func (s *TCPServer) AddDeviceStore(id common.UnitID, store common.DataStore) error {
	return s.registry.AddDeviceStore(id, store)
}

// RemoveDevice unregisters a device id.
func (s *TCPServer) RemoveDevice(id common.UnitID) {
	s.registry.RemoveDevice(id)
}

// DeviceIDs returns the currently registered device ids.
func (s *TCPServer) DeviceIDs() []common.UnitID {
	return s.registry.DeviceIDs()
}

// Events returns the server's event dispatcher for external subscription.
func (s *TCPServer) Events() *common.EventDispatcher {
	return s.events
}

// storeFor resolves the data store that should answer for unitID: an
// explicitly registered device wins, otherwise the fallback store (if any).
func (s *TCPServer) storeFor(unitID common.UnitID) (common.DataStore, bool) {
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

// registerStoreHandler wires a protocol handler method (which takes an
// explicit store argument) into s.handlers, resolving the store for the
// incoming request's unit id at dispatch time rather than at setup time.
func (s *TCPServer) registerStoreHandler(fc common.FunctionCode, fn func(ctx context.Context, req common.Request, store common.DataStore) (common.Response, error)) {
	s.SetHandler(fc, func(ctx context.Context, req common.Request) (common.Response, error) {
		store, ok := s.storeFor(req.GetUnitID())
		if !ok {
			return nil, common.ErrUnknownDevice
		}
		return fn(ctx, req, store)
	})
}

// setupDefaultHandlers configures handlers for standard Modbus functions
// Sets up handlers for all supported Modbus function codes as defined in the specification
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (Function Codes)
func (s *TCPServer) setupDefaultHandlers() {
	// Clear existing handlers
	s.handlers = make(map[common.FunctionCode]common.HandlerFunc)

	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.1
	s.registerStoreHandler(common.FuncReadCoils, s.protocol.HandleReadCoils)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.2
	s.registerStoreHandler(common.FuncReadDiscreteInputs, s.protocol.HandleReadDiscreteInputs)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.3
	s.registerStoreHandler(common.FuncReadHoldingRegisters, s.protocol.HandleReadHoldingRegisters)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.4
	s.registerStoreHandler(common.FuncReadInputRegisters, s.protocol.HandleReadInputRegisters)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
	s.registerStoreHandler(common.FuncWriteSingleCoil, s.protocol.HandleWriteSingleCoil)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.6
	s.registerStoreHandler(common.FuncWriteSingleRegister, s.protocol.HandleWriteSingleRegister)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.11
	s.registerStoreHandler(common.FuncWriteMultipleCoils, s.protocol.HandleWriteMultipleCoils)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.12
	s.registerStoreHandler(common.FuncWriteMultipleRegisters, s.protocol.HandleWriteMultipleRegisters)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.17
	s.registerStoreHandler(common.FuncReadWriteMultipleRegisters, s.protocol.HandleReadWriteMultipleRegisters)
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.21
	s.registerStoreHandler(common.FuncReadDeviceIdentification, s.protocol.HandleReadDeviceIdentification)
}

// SetHandler sets the handler for a specific Modbus function code
func (s *TCPServer) SetHandler(functionCode common.FunctionCode, handler common.HandlerFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.handlers[functionCode] = handler
}

// Start starts the server
func (s *TCPServer) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.address, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mutex.Unlock()
		return err
	}

	s.listener = listener
	s.running = true
	s.stopChan = make(chan struct{})
	s.mutex.Unlock()

	s.logger.Info(ctx, "Modbus TCP server started on %s", addr)

	// Start accepting connections
	go s.acceptLoop(ctx)

	return nil
}

// Stop stops the server
func (s *TCPServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil // Already stopped
	}

	// Signal accept loop to stop
	close(s.stopChan)

	// Close listener
	if s.listener != nil {
		s.listener.Close()
	}

	// Close all client connections
	s.clientsMutex.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[string]*clientConn)
	s.clientsMutex.Unlock()

	s.running = false
	s.logger.Info(ctx, "Modbus TCP server stopped")
	return nil
}

// IsRunning returns true if the server is running
func (s *TCPServer) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// ConnectedClients returns a point-in-time snapshot of every currently
// connected client and its transaction/function-code statistics.
func (s *TCPServer) ConnectedClients() []ConnectedClient {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	clients := make([]ConnectedClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, snapshotOf(c))
	}
	return clients
}

func snapshotOf(c *clientConn) ConnectedClient {
	return ConnectedClient{
		RemoteAddr:        c.remoteAddr,
		ConnectedAt:       c.connectedAt,
		RxTransactions:    c.rxCount.Load(),
		TxTransactions:    c.txCount.Load(),
		FunctionCodeStats: fcSnapshot(c),
	}
}

// acceptLoop accepts incoming connections
func (s *TCPServer) acceptLoop(ctx context.Context) {
	for {
		// Check if we should stop
		select {
		case <-s.stopChan:
			return
		default:
			// Continue accepting
		}

		// Set accept deadline to allow checking for stop signal
		s.listener.(*net.TCPListener).SetDeadline(time.Now().Add(time.Second))

		conn, err := s.listener.Accept()
		if err != nil {
			if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
				// Timeout, just retry
				continue
			}

			// Check if we're shutting down
			select {
			case <-s.stopChan:
				return
			default:
				s.logger.Error(ctx, "Error accepting connection: %v", err)
				continue
			}
		}

		remoteAddr := conn.RemoteAddr().String()
		s.logger.Info(ctx, "New client connected: %s", remoteAddr)

		tracked := &clientConn{
			remoteAddr:  remoteAddr,
			connectedAt: time.Now(),
			conn:        conn,
		}

		// Add client to tracked connections
		s.clientsMutex.Lock()
		s.clients[remoteAddr] = tracked
		s.clientsMutex.Unlock()

		s.events.Emit(common.Event{Type: common.EventClientConnected, RemoteAddr: remoteAddr})
		if s.onClientConnect != nil {
			s.onClientConnect(snapshotOf(tracked))
		}

		// Handle the client connection
		go s.handleConnection(tracked)
	}
}

// handleConnection handles a client connection
// Implements the Modbus TCP message handling as defined in the specification
// Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf, Section 3 (Message Processing)
func (s *TCPServer) handleConnection(client *clientConn) {
	ctx := context.Background()
	conn := client.conn
	remoteAddr := client.remoteAddr

	defer func() {
		// Remove client from tracked connections
		s.clientsMutex.Lock()
		delete(s.clients, remoteAddr)
		s.clientsMutex.Unlock()

		conn.Close()
		s.logger.Info(ctx, "Client disconnected: %s", remoteAddr)

		s.events.Emit(common.Event{Type: common.EventClientDisconnected, RemoteAddr: remoteAddr})
		if s.onClientDisconnect != nil {
			s.onClientDisconnect(snapshotOf(client))
		}
	}()

	for {
		// Set a read deadline; this does not disconnect an idle client, it
		// only bounds a single blocking read so shutdown/timeouts can be
		// noticed promptly.
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		// Read the Modbus TCP header (7 bytes)
		// Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf, Section 3.1 (MBAP Header)
		header := make([]byte, common.TCPHeaderLength)
		_, err := io.ReadFull(conn, header)
		if err != nil {
			if err == io.EOF || strings.Contains(err.Error(), "use of closed network connection") {
				// Normal client disconnect
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Idle timeout: keep the connection open and wait again.
				continue
			}
			s.logger.Error(ctx, "Error reading header from %s: %v", remoteAddr, err)
			return
		}

		// Parse MBAP header, using big-endian as per Modbus specification
		transactionID := common.TransactionID(binary.BigEndian.Uint16(header[0:2]))
		protocolID := common.ProtocolID(binary.BigEndian.Uint16(header[2:4]))
		length := binary.BigEndian.Uint16(header[4:6])
		unitID := common.UnitID(header[6])

		// Validate protocol ID
		if protocolID != common.TCPProtocolIdentifier {
			s.logger.Error(ctx, "Invalid protocol ID from %s: %d", remoteAddr, protocolID)
			continue
		}

		// Read the PDU (length - 1 bytes, already read unitID)
		dataLength := int(length) - 1
		if dataLength <= 0 {
			s.logger.Error(ctx, "Invalid data length from %s: %d", remoteAddr, length)
			continue
		}

		data := make([]byte, dataLength)
		_, err = io.ReadFull(conn, data)
		if err != nil {
			s.logger.Error(ctx, "Error reading data from %s: %v", remoteAddr, err)
			return
		}

		// Extract function code and PDU data
		functionCode := common.FunctionCode(data[0])
		pduData := data[1:]

		client.rxCount.Add(1)
		client.fcCount[functionCode].Add(1)

		request := transport.NewRequest(unitID, functionCode, pduData)
		request.SetTransactionID(transactionID)

		s.logger.Debug(ctx, "Received request from %s: txID=%d, unit=%d, function=%s",
			remoteAddr, transactionID, unitID, functionCode)

		response, err := s.dispatchRequest(ctx, request)
		if err != nil {
			if errors.Is(err, common.ErrUnknownDevice) {
				s.logger.Debug(ctx, "Dropping request for unregistered device id %d from %s", unitID, remoteAddr)
				continue
			}

			// If it's a Modbus error, create an exception response
			// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
			if modbusErr, ok := err.(*common.ModbusError); ok {
				exceptionCode := modbusErr.ExceptionCode
				s.logger.Debug(ctx, "Modbus exception: %s", err.Error())

				exceptionResponse := transport.NewResponse(
					transactionID,
					unitID,
					functionCode|0x80, // Set the high bit for exception response
					[]byte{byte(exceptionCode)},
				)
				s.sendResponse(conn, exceptionResponse)
				client.txCount.Add(1)
			} else {
				// For other errors, log and disconnect
				s.logger.Error(ctx, "Error processing request from %s: %v", remoteAddr, err)
				return
			}
			continue
		}

		s.sendResponse(conn, response)
		client.txCount.Add(1)
	}
}

// dispatchRequest dispatches a request to the appropriate handler
// Routes requests to the registered handler for the specified function code
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (Function Codes)
func (s *TCPServer) dispatchRequest(ctx context.Context, request common.Request) (common.Response, error) {
	functionCode := request.GetPDU().FunctionCode

	s.mutex.RLock()
	handler, exists := s.handlers[functionCode]
	s.mutex.RUnlock()

	if !exists {
		// Function code not supported, return an exception
		// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Codes)
		return nil, &common.ModbusError{
			FunctionCode:  functionCode,
			ExceptionCode: common.ExceptionFunctionCodeNotSupported,
		}
	}

	return handler(ctx, request)
}

// sendResponse sends a response back to the client
// Encodes the Modbus Application Protocol response and sends it over the TCP connection
// Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf, Section 3 (Message Encoding)
func (s *TCPServer) sendResponse(conn net.Conn, response common.Response) {
	ctx := context.Background()
	data, err := response.Encode()
	if err != nil {
		s.logger.Error(ctx, "Error encoding response: %v", err)
		return
	}

	_, err = conn.Write(data)
	if err != nil {
		s.logger.Error(ctx, "Error sending response: %v", err)
		return
	}

	s.logger.Debug(ctx, "Sent response: txID=%d, function=%s",
		response.GetTransactionID(), response.GetPDU().FunctionCode)
}
