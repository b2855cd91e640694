package client

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/common/test"
	"github.com/modbuslabs/gomodbus/logging"
)

func TestBaseClient_Connect(t *testing.T) {
	// Create a mock transport
	transport := test.NewMockTransport()
	
	// Create a client with the mock transport
	client := NewBaseClient(transport)
	
	// Test connect
	ctx := context.Background()
	err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	
	// Verify that the transport was connected
	if !transport.IsConnected() {
		t.Error("Transport should be connected but isn't")
	}
	
	// Test disconnect
	err = client.Disconnect(ctx)
	if err != nil {
		t.Fatalf("Disconnect returned error: %v", err)
	}
	
	// Verify that the transport was disconnected
	if transport.IsConnected() {
		t.Error("Transport should be disconnected but isn't")
	}
}

func TestBaseClient_WithLogger(t *testing.T) {
	// Create a mock transport
	transport := test.NewMockTransport()
	
	// Create a client with the mock transport
	client := NewBaseClient(transport)
	
	// Create a new client with a custom logger
	logger := logging.NewLogger()
	newClient := client.WithLogger(logger)
	
	// Verify that the new client is a different instance
	if newClient == client {
		t.Error("WithLogger should return a new client instance")
	}
	
	// Verify that the new client works
	ctx := context.Background()

	// Connect to the mock transport directly to ensure it's connected state is updated
	err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Failed to connect mock transport: %v", err)
	}

	// Now connect the client (which should use the already connected transport)
	err = newClient.Connect(ctx)
	if err != nil {
		t.Fatalf("New client's Connect returned error: %v", err)
	}

	if !transport.IsConnected() {
		t.Error("Transport should be connected but isn't")
	}
}

func TestBaseClient_ReadCoils(t *testing.T) {
	// Create a mock transport
	transport := test.NewMockTransport()

	// Create a client with the mock transport
	client := NewBaseClient(transport)

	// Create a request context
	ctx := context.Background()

	// Connect the transport and client
	err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Failed to connect transport: %v", err)
	}

	err = client.Connect(ctx)
	if err != nil {
		t.Fatalf("Failed to connect client: %v", err)
	}

	// Test parameters
	address := common.Address(100)
	quantity := common.Quantity(10)

	// Queue a mock response with coil values
	byteCount := 2 // Ceiling of 10/8 bits
	responseData := []byte{byte(byteCount), 0b10101010, 0b00000011} // 10 coils, alternating pattern then two true
	response := test.NewMockResponse(
		1, // Transaction ID
		1, // Unit ID
		common.FuncReadCoils,
		responseData,
	)
	transport.QueueResponse(response)

	// Call the client method
	values, err := client.ReadCoils(ctx, address, quantity)
	if err != nil {
		t.Fatalf("ReadCoils returned error: %v", err)
	}
	
	// Verify the number of values returned
	if len(values) != int(quantity) {
		t.Fatalf("Expected %d values, got %d", quantity, len(values))
	}
	
	// Verify the values
	expectedValues := []common.CoilValue{false, true, false, true, false, true, false, true, true, true}
	for i, expected := range expectedValues {
		if values[i] != expected {
			t.Errorf("Value at index %d: expected %t, got %t", i, expected, values[i])
		}
	}
	
	// Verify the request that was sent
	requests := transport.GetRequests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(requests))
	}
	
	// Verify the function code in the request
	req := requests[0]
	if req.GetPDU().FunctionCode != common.FuncReadCoils {
		t.Errorf("Expected function code %d, got %d",
			common.FuncReadCoils, req.GetPDU().FunctionCode)
	}

	// Verify the request data
	reqData := req.GetPDU().Data
	if len(reqData) != 4 {
		t.Fatalf("Expected request data length 4, got %d", len(reqData))
	}
	
	// Check address in request
	reqAddress := binary.BigEndian.Uint16(reqData[0:2])
	if reqAddress != uint16(address) {
		t.Errorf("Request address: expected %d, got %d", address, reqAddress)
	}
	
	// Check quantity in request
	reqQuantity := binary.BigEndian.Uint16(reqData[2:4])
	if reqQuantity != uint16(quantity) {
		t.Errorf("Request quantity: expected %d, got %d", quantity, reqQuantity)
	}
	
	// Test with an error from the transport
	transport.Clear()
	transport.QueueError(errors.New("test error"))
	
	_, err = client.ReadCoils(ctx, address, quantity)
	if err == nil {
		t.Error("ReadCoils should return error when transport returns error")
	}
}

func TestBaseClient_ReadHoldingRegisters(t *testing.T) {
	// Create a mock transport
	transport := test.NewMockTransport()

	// Create a client with the mock transport
	client := NewBaseClient(transport)

	// Create a request context
	ctx := context.Background()

	// Connect the transport and client
	err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Failed to connect transport: %v", err)
	}

	err = client.Connect(ctx)
	if err != nil {
		t.Fatalf("Failed to connect client: %v", err)
	}

	// Test parameters
	address := common.Address(100)
	quantity := common.Quantity(2)

	// Queue a mock response with register values
	byteCount := 4 // 2 registers * 2 bytes each
	responseData := []byte{byte(byteCount), 0x12, 0x34, 0x56, 0x78} // Two registers: 0x1234, 0x5678
	response := test.NewMockResponse(
		1, // Transaction ID
		1, // Unit ID
		common.FuncReadHoldingRegisters,
		responseData,
	)
	transport.QueueResponse(response)

	// Call the client method
	values, err := client.ReadHoldingRegisters(ctx, address, quantity)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters returned error: %v", err)
	}
	
	// Verify the number of values returned
	if len(values) != int(quantity) {
		t.Fatalf("Expected %d values, got %d", quantity, len(values))
	}
	
	// Verify the values
	expectedValues := []common.RegisterValue{0x1234, 0x5678}
	for i, expected := range expectedValues {
		if values[i] != expected {
			t.Errorf("Value at index %d: expected 0x%04X, got 0x%04X", 
				i, expected, values[i])
		}
	}
	
	// Verify the request function code
	requests := transport.GetRequests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(requests))
	}
	
	req := requests[0]
	if req.GetPDU().FunctionCode != common.FuncReadHoldingRegisters {
		t.Errorf("Expected function code %d, got %d",
			common.FuncReadHoldingRegisters, req.GetPDU().FunctionCode)
	}
}

func TestBaseClient_WriteSingleCoil(t *testing.T) {
	// Create a mock transport
	transport := test.NewMockTransport()

	// Create a client with the mock transport
	client := NewBaseClient(transport)

	// Create a request context
	ctx := context.Background()

	// Connect the transport and client
	err := transport.Connect(ctx)
	if err != nil {
		t.Fatalf("Failed to connect transport: %v", err)
	}

	err = client.Connect(ctx)
	if err != nil {
		t.Fatalf("Failed to connect client: %v", err)
	}

	// Test parameters
	address := common.Address(100)
	value := common.CoilValue(true)

	// Queue a mock response (echo of the request)
	responseData := make([]byte, 4)
	binary.BigEndian.PutUint16(responseData[0:2], uint16(address))
	binary.BigEndian.PutUint16(responseData[2:4], common.CoilOnU16)
	response := test.NewMockResponse(
		1, // Transaction ID
		1, // Unit ID
		common.FuncWriteSingleCoil,
		responseData,
	)
	transport.QueueResponse(response)

	// Call the client method
	err = client.WriteSingleCoil(ctx, address, value)
	if err != nil {
		t.Fatalf("WriteSingleCoil returned error: %v", err)
	}
	
	// Verify the request that was sent
	requests := transport.GetRequests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(requests))
	}
	
	// Verify the function code
	req := requests[0]
	if req.GetPDU().FunctionCode != common.FuncWriteSingleCoil {
		t.Errorf("Expected function code %d, got %d",
			common.FuncWriteSingleCoil, req.GetPDU().FunctionCode)
	}
	
	// Verify the request data
	reqData := req.GetPDU().Data
	if len(reqData) != 4 {
		t.Fatalf("Expected request data length 4, got %d", len(reqData))
	}
	
	// Check address in request
	reqAddress := binary.BigEndian.Uint16(reqData[0:2])
	if reqAddress != uint16(address) {
		t.Errorf("Request address: expected %d, got %d", address, reqAddress)
	}
	
	// Check value in request (ON = 0xFF00)
	reqValue := binary.BigEndian.Uint16(reqData[2:4])
	if reqValue != common.CoilOnU16 {
		t.Errorf("Request value: expected 0xFF00, got 0x%04X", reqValue)
	}
	
	// Test with a false value
	transport.Clear()
	value = common.CoilValue(false)
	
	// Queue a mock response
	responseData = make([]byte, 4)
	binary.BigEndian.PutUint16(responseData[0:2], uint16(address))
	binary.BigEndian.PutUint16(responseData[2:4], common.CoilOffU16)
	response = test.NewMockResponse(
		2, // Transaction ID
		1, // Unit ID
		common.FuncWriteSingleCoil,
		responseData,
	)
	transport.QueueResponse(response)
	
	// Call the client method
	err = client.WriteSingleCoil(ctx, address, value)
	if err != nil {
		t.Fatalf("WriteSingleCoil with false value returned error: %v", err)
	}
	
	// Verify the value in the request (OFF = 0x0000); Clear dropped the
	// earlier request, so this one is at index 0
	requests = transport.GetRequests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(requests))
	}
	reqData = requests[0].GetPDU().Data
	reqValue = binary.BigEndian.Uint16(reqData[2:4])
	if reqValue != common.CoilOffU16 {
		t.Errorf("Request value for false: expected 0x0000, got 0x%04X", reqValue)
	}
}