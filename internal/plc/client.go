package plc

import (
	"fmt"
	"net"
	"time"
)

// Dialer opens the transport for one short-lived Modbus exchange.
// Injectable so tests can fault-inject without sockets.
type Dialer func(address string, timeout time.Duration) (net.Conn, error)

func netDialer(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

// client wraps a single transient connection. It is created per
// operation and closed on every exit path, never held across calls.
type client struct {
	conn          net.Conn
	timeout       time.Duration
	transactionID uint16
}

func newClient(conn net.Conn, timeout time.Duration) *client {
	return &client{
		conn:    conn,
		timeout: timeout,
	}
}

func (c *client) close() error {
	return c.conn.Close()
}

// sendFrame sendet ein Frame und wartet auf Response
func (c *client) sendFrame(request *Frame) (*Frame, error) {
	// Unique Transaction ID
	c.transactionID++
	request.TransactionID = c.transactionID

	requestData := request.Encode()

	deadline := time.Now().Add(c.timeout)
	c.conn.SetWriteDeadline(deadline)

	if _, err := c.conn.Write(requestData); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	c.conn.SetReadDeadline(deadline)

	responseBuffer := make([]byte, 260) // Max Modbus TCP Frame
	n, err := c.conn.Read(responseBuffer)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(responseBuffer[:n])
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	return response, nil
}

// readCoils liest Coils (Function Code 0x01)
func (c *client) readCoils(unitID uint8, startAddr uint16, quantity uint16) ([]bool, error) {
	response, err := c.sendFrame(ReadCoilsRequest(0, unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}

	return response.ParseBitResponse(int(quantity))
}

// readDiscreteInputs liest Discrete Inputs (Function Code 0x02)
func (c *client) readDiscreteInputs(unitID uint8, startAddr uint16, quantity uint16) ([]bool, error) {
	response, err := c.sendFrame(ReadDiscreteInputsRequest(0, unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}

	return response.ParseBitResponse(int(quantity))
}

// writeSingleCoil schreibt einen einzelnen Coil (Function Code 0x05)
func (c *client) writeSingleCoil(unitID uint8, addr uint16, value bool) error {
	response, err := c.sendFrame(WriteSingleCoilRequest(0, unitID, addr, value))
	if err != nil {
		return err
	}

	if response.IsException() {
		return fmt.Errorf("modbus exception 0x%02X", response.ExceptionCode())
	}

	return nil
}
