package client

import (
	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/transport"
)

// RTUClient is a Modbus RTU client communicating over a serial line.
type RTUClient struct {
	*BaseClient
	rtuTransport *transport.RTUTransport
}

// RTUOption configures an RTUClient.
type RTUOption func(*RTUClient)

// WithRTULogger sets the logger for the RTU client.
func WithRTULogger(logger common.LoggerInterface) RTUOption {
	return func(c *RTUClient) {
		c.BaseClient = c.BaseClient.WithLogger(logger).(*BaseClient)
	}
}

// WithRTUUnitID sets the device id this client addresses. Device id 0
// (broadcast) is not used: it is replaced by common.MinRTUUnitID, so no
// broadcast frame is ever sent.
// Ref: spec "Boundary behaviors" - "RTU device id 0 => rejected by
// client-side validation."
func WithRTUUnitID(unitID common.UnitID) RTUOption {
	return func(c *RTUClient) {
		if unitID == 0 {
			unitID = common.MinRTUUnitID
		}
		c.BaseClient = NewBaseClient(
			c.rtuTransport,
			WithUnitID(unitID),
			WithLogger(c.BaseClient.logger),
			WithProtocol(c.BaseClient.protocol),
			WithRequestFactory(rtuRequestFactory),
		)
	}
}

func rtuRequestFactory(unitID common.UnitID, functionCode common.FunctionCode, data []byte) common.Request {
	return transport.NewRTURequest(unitID, functionCode, data)
}

// NewRTUClient creates a new Modbus RTU client on the given serial port.
func NewRTUClient(portName string, options ...transport.RTUTransportOption) *RTUClient {
	rtuTransport := transport.NewRTUTransport(portName, options...)

	baseClient := NewBaseClient(
		rtuTransport,
		WithUnitID(common.MinRTUUnitID),
		WithRequestFactory(rtuRequestFactory),
	)

	return &RTUClient{
		BaseClient:   baseClient,
		rtuTransport: rtuTransport,
	}
}

// WithOptions applies the given options to the RTUClient.
func (c *RTUClient) WithOptions(options ...RTUOption) *RTUClient {
	for _, option := range options {
		option(c)
	}
	return c
}

// WithLogger sets the logger for the client and returns it.
// (Deprecated in favor of WithOptions(WithRTULogger(logger)))
func (c *RTUClient) WithLogger(logger common.LoggerInterface) common.Client {
	return c.WithOptions(WithRTULogger(logger))
}
