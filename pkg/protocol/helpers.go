package protocol

// NewEventMessage creates an event log message
func NewEventMessage(data EventData) (*Message, error) {
	return NewMessage(TypeEvent, data)
}

// NewToastMessage creates a toast message
func NewToastMessage(data ToastData) (*Message, error) {
	return NewMessage(TypeToast, data)
}

// NewStatusMessage creates a status message
func NewStatusMessage(data StatusData) (*Message, error) {
	return NewMessage(TypeStatus, data)
}

// NewToolResultMessage creates a tool result message
func NewToolResultMessage(data ToolResultData) (*Message, error) {
	return NewMessage(TypeToolResult, data)
}

// GetEventData extracts event data from a message
func (m *Message) GetEventData() (*EventData, error) {
	var data EventData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetToastData extracts toast data from a message
func (m *Message) GetToastData() (*ToastData, error) {
	var data ToastData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetToolResultData extracts tool result data from a message
func (m *Message) GetToolResultData() (*ToolResultData, error) {
	var data ToolResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
