package args

import (
	"fmt"
	"time"

	"github.com/modbuslabs/gomodbus/client"
	"github.com/modbuslabs/gomodbus/common"
	"github.com/modbuslabs/gomodbus/logging"
	"github.com/modbuslabs/gomodbus/transport"
	flag "github.com/spf13/pflag"
)

// ModbusArgs holds common command-line arguments for the cmd/client demos.
// By default they dial a Modbus TCP server; passing --serial-port switches
// them to RTU framing over the named serial device.
type ModbusArgs struct {
	IP         string
	Port       int
	UnitID     int
	Timeout    time.Duration
	LogLevel   string
	LogLevelID common.LogLevel

	SerialPort string
	BaudRate   int
}

// ParseArgs parses common command-line arguments for Modbus clients.
func ParseArgs() *ModbusArgs {
	args := &ModbusArgs{}

	flag.StringVar(&args.IP, "ip", "127.0.0.1", "Modbus TCP server IP address")
	flag.IntVar(&args.Port, "port", common.DefaultTCPPort, "Modbus TCP server port")
	flag.IntVar(&args.UnitID, "unit", 1, "Modbus unit ID (slave ID)")
	flag.DurationVar(&args.Timeout, "timeout", 5*time.Second, "Timeout for Modbus operations")
	flag.StringVar(&args.LogLevel, "log", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&args.SerialPort, "serial-port", "", "Serial device path; when set, RTU framing replaces TCP")
	flag.IntVar(&args.BaudRate, "baud-rate", 19200, "RTU baud rate, used only with --serial-port")

	flag.Parse()

	switch args.LogLevel {
	case "debug":
		args.LogLevelID = common.LevelDebug
	case "info":
		args.LogLevelID = common.LevelInfo
	case "warn":
		args.LogLevelID = common.LevelWarn
	case "error":
		args.LogLevelID = common.LevelError
	default:
		fmt.Printf("Invalid log level: %s, using 'info'\n", args.LogLevel)
		args.LogLevelID = common.LevelInfo
	}

	return args
}

// CreateClient builds a TCP or RTU client from the parsed arguments,
// selecting RTU framing when SerialPort is set.
func (args *ModbusArgs) CreateClient() common.Client {
	logger := logging.NewLogger(
		logging.WithLevel(args.LogLevelID),
	)

	if args.SerialPort != "" {
		rtuClient := client.NewRTUClient(
			args.SerialPort,
			transport.WithBaudRate(args.BaudRate),
			transport.WithRTUTransportLogger(logger),
		)
		return rtuClient.WithOptions(
			client.WithRTULogger(logger),
			client.WithRTUUnitID(common.UnitID(args.UnitID)),
		)
	}

	tcpClient := client.NewTCPClient(
		args.IP,
		transport.WithPort(args.Port),
		transport.WithTimeoutOption(args.Timeout),
		transport.WithTransportLogger(logger),
	)
	return tcpClient.WithOptions(
		client.WithTCPLogger(logger),
		client.WithTCPUnitID(common.UnitID(args.UnitID)),
	)
}
