package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Process messages
	MessageTypeProcessStatus MessageType = "process_status"
	MessageTypeSystemState   MessageType = "system_state"

	// PLC messages
	MessageTypePLCConnection MessageType = "plc_connection"
	MessageTypePLCIO         MessageType = "plc_io"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PLCConnectionData represents a PLC link state change
type PLCConnectionData struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// SystemStateData represents a cell run-state change
type SystemStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Helper functions for creating specific message types

func NewProcessStatusMessage(status interface{}) Message {
	return NewMessage(MessageTypeProcessStatus, status)
}

func NewPLCConnectionMessage(connected bool, message string) Message {
	return NewMessage(MessageTypePLCConnection, PLCConnectionData{
		Connected: connected,
		Message:   message,
	})
}

func NewPLCIOMessage(snapshot interface{}) Message {
	return NewMessage(MessageTypePLCIO, snapshot)
}

func NewSystemStateMessage(newState, previousState string) Message {
	return NewMessage(MessageTypeSystemState, SystemStateData{
		State:    newState,
		Previous: previousState,
	})
}
