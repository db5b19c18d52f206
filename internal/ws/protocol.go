package ws

import "encoding/json"

// Envelope is the single client-to-server frame shape. Type selects the
// action; ReqID, when present, is echoed on the matching ack or error so
// clients can correlate replies.
type Envelope struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`

	// auth
	Token string `json:"token,omitempty"`
	Guest bool   `json:"guest,omitempty"`
	Name  string `json:"name,omitempty"`

	// create_room
	BoardSize int    `json:"board_size,omitempty"`
	WinLength int    `json:"win_length,omitempty"`
	Obstacles []int  `json:"obstacles,omitempty"`
	Blitz     bool   `json:"blitz,omitempty"`
	Ante      int64  `json:"ante,omitempty"`
	RoomName  string `json:"room_name,omitempty"`

	// join_room
	RoomID string `json:"room_id,omitempty"`

	// move
	Cell int `json:"cell,omitempty"`

	// double_down_response, rematch_response
	Accept bool `json:"accept,omitempty"`
}

const (
	msgAuth               = "auth"
	msgCreateRoom         = "create_room"
	msgJoinRoom           = "join_room"
	msgConfirmWager       = "confirm_wager"
	msgMove               = "move"
	msgDoubleDown         = "double_down"
	msgDoubleDownResponse = "double_down_response"
	msgRematch            = "rematch"
	msgRematchResponse    = "rematch_response"
	msgClaimTimeout       = "claim_timeout"
	msgLeave              = "leave"
	msgListRooms          = "list_rooms"
)

type welcomeMessage struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Guest   bool   `json:"guest"`
	Balance int64  `json:"balance,omitempty"`
	Rating  int    `json:"rating,omitempty"`
	Level   int    `json:"level,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Code  string `json:"code"`
}

type ackMessage struct {
	Type   string `json:"type"`
	ReqID  string `json:"req_id,omitempty"`
	Action string `json:"action"`
	RoomID string `json:"room_id,omitempty"`
}

type roomClosedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

type roomListMessage struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Rooms any    `json:"rooms"`
}

func decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
