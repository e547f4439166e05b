package domain

// Action websocket request action
type Action string

const (
	// EnterRoom websocket action enter_room
	EnterRoom Action = "enter_room"
	// LeaveRoom websocket action leave_room
	LeaveRoom Action = "leave_room"
	// NotifyMessage websocket action notify_message
	NotifyMessage Action = "notify_message"
	// ViewUpdate websocket action view_update, pushed by the client API
	ViewUpdate Action = "view_update"
)

// WSRequest websocket Request
type WSRequest struct {
	Action string `json:"action"`
	RoomID string `json:"room_id"`
}

// WSResponse websocket Response
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
