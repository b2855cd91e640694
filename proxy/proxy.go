// Package proxy implements a Modbus request-forwarding gateway: a TCP
// front-end server that serves reads from a short-lived, per-device
// cache and falls through to a back-end client (TCP or RTU) on a miss.
// Ref: spec component "Proxy" - "the proxy composes a server (front) and
// a client (back) sharing a per-(device-id) cache of four register
// classes."
package proxy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modbuslabs/gomodbus/client"
	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/logging"
	"github.com/modbuslabs/gomodbus/server"
	"github.com/modbuslabs/gomodbus/transport"
)

// Destination describes the back-end endpoint the proxy forwards to:
// either a TCP Modbus server/gateway or a serial RTU bus.
type Destination struct {
	// RTU selects serial/RTU framing for the back end when true;
	// otherwise the proxy dials Host:Port with MBAP/TCP framing.
	RTU bool

	// TCP destination fields.
	Host string
	Port int

	// RTU destination fields.
	SerialPort string
	RTUOptions []transport.RTUTransportOption
}

// Settings configures a Proxy.
// Ref: spec component "External interfaces" - "Proxy: { listen_address,
// listen_port, destination, freshness_window (clamped >= 200ms) }."
type Settings struct {
	ListenAddress   string
	ListenPort      int
	Destination     Destination
	FreshnessWindow time.Duration

	// DeviceIDs lists the device ids the proxy answers for on the front
	// end; each gets its own cache and back-end client view sharing the
	// single underlying back-end transport.
	DeviceIDs []common.UnitID
}

// Proxy is a cache-backed Modbus gateway.
type Proxy struct {
	front            *server.TCPServer
	backendTransport common.Transport
	logger           common.LoggerInterface

	mutex   sync.RWMutex
	devices map[common.UnitID]*deviceStore
}

// NewProxy builds a Proxy from settings but does not start it; call Start
// to connect the back end and begin accepting front-end connections.
func NewProxy(settings Settings) *Proxy {
	freshness := settings.FreshnessWindow
	if freshness < MinFreshnessWindow {
		freshness = MinFreshnessWindow
	}

	logger := logging.NewLogger()

	backendTransport, newRequest := buildBackendTransport(settings.Destination)

	p := &Proxy{
		backendTransport: backendTransport,
		logger:           logger,
		devices:          make(map[common.UnitID]*deviceStore),
	}

	p.front = server.NewTCPServer(settings.ListenAddress,
		server.WithServerPort(settings.ListenPort),
		server.WithServerLogger(logger),
	)

	for _, id := range settings.DeviceIDs {
		backendClient := client.NewBaseClient(backendTransport,
			client.WithUnitID(id),
			client.WithRequestFactory(newRequest),
			client.WithLogger(logger),
		)
		store := newDeviceStore(id, backendClient, freshness, logger)
		p.devices[id] = store
		// AddDeviceStore can only fail on a duplicate id, which DeviceIDs
		// cannot contain twice in well-formed settings.
		_ = p.front.AddDeviceStore(id, store)
	}

	// EncapsulatedInterface is never cached and the default server
	// handler answers from a canned local identity; the proxy instead
	// forwards it to whichever back-end client backs the request's unit.
	// Ref: spec component "Proxy" - "EncapsulatedInterface: always
	// forwarded; not cached."
	p.front.SetHandler(common.FuncReadDeviceIdentification, p.handleReadDeviceIdentification)

	return p
}

func buildBackendTransport(dest Destination) (common.Transport, client.RequestFactory) {
	if dest.RTU {
		return transport.NewRTUTransport(dest.SerialPort, dest.RTUOptions...),
			func(unitID common.UnitID, functionCode common.FunctionCode, data []byte) common.Request {
				return transport.NewRTURequest(unitID, functionCode, data)
			}
	}

	host := fmt.Sprintf("%s:%d", dest.Host, dest.Port)
	return transport.NewTCPTransport(host),
		func(unitID common.UnitID, functionCode common.FunctionCode, data []byte) common.Request {
			return transport.NewRequest(unitID, functionCode, data)
		}
}

// Start connects the back-end transport and begins serving the front end.
func (p *Proxy) Start(ctx context.Context) error {
	if err := p.backendTransport.Connect(ctx); err != nil {
		return fmt.Errorf("proxy: connecting to back end: %w", err)
	}
	return p.front.Start(ctx)
}

// Stop tears down both the front-end server and the back-end transport.
func (p *Proxy) Stop(ctx context.Context) error {
	stopErr := p.front.Stop(ctx)
	disconnectErr := p.backendTransport.Disconnect(ctx)
	if stopErr != nil {
		return stopErr
	}
	return disconnectErr
}

// IsRunning returns true while the front-end server is accepting
// connections.
func (p *Proxy) IsRunning() bool {
	return p.front.IsRunning()
}

// handleReadDeviceIdentification bypasses the cache entirely: it forwards
// the request verbatim to the back-end client for the request's unit id
// and re-encodes the returned identification as a response PDU, mirroring
// the byte layout server.serverProtocolHandler uses for its own canned
// response (MEI type, code, conformity level, more-follows, next object
// id, object count, then ID/length/value per object).
func (p *Proxy) handleReadDeviceIdentification(ctx context.Context, req common.Request) (common.Response, error) {
	p.mutex.RLock()
	store, ok := p.devices[req.GetUnitID()]
	p.mutex.RUnlock()
	if !ok {
		return nil, common.ErrUnknownDevice
	}

	data := req.GetPDU().Data
	if len(data) < 3 {
		return nil, common.NewModbusError(req.GetPDU().FunctionCode, common.ExceptionInvalidDataValue)
	}
	readDeviceIDCode := common.ReadDeviceIDCode(data[1])
	objectID := common.DeviceIDObjectCode(data[2])

	identification, err := store.backend.ReadDeviceIdentification(ctx, readDeviceIDCode, objectID)
	if err != nil {
		p.logger.Warn(ctx, "proxy: back-end device identification read failed for unit %d: %v", req.GetUnitID(), err)
		return nil, common.NewModbusError(req.GetPDU().FunctionCode, common.ExceptionServerDeviceFailure)
	}

	responseSize := 6
	for _, obj := range identification.Objects {
		responseSize += 2 + int(obj.Length)
	}

	responseData := make([]byte, responseSize)
	responseData[0] = byte(common.MEIReadDeviceID)
	responseData[1] = byte(identification.ReadDeviceIDCode)
	responseData[2] = identification.ConformityLevel
	if identification.MoreFollows {
		responseData[3] = 1
	}
	responseData[4] = byte(identification.NextObjectID)
	responseData[5] = identification.NumberOfObjects

	offset := 6
	for _, obj := range identification.Objects {
		responseData[offset] = byte(obj.ID)
		responseData[offset+1] = obj.Length
		copy(responseData[offset+2:offset+2+int(obj.Length)], []byte(obj.Value))
		offset += 2 + int(obj.Length)
	}

	return transport.NewResponse(req.GetTransactionID(), req.GetUnitID(), req.GetPDU().FunctionCode, responseData), nil
}
