package domain

// HTTP request/response bodies for the directory surface. Field names match
// the directory service's JSON exactly.

type RegisterRequest struct {
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

type RegisterResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type CheckUsernameRequest struct {
	Username string `json:"username"`
}

type CheckUsernameResponse struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type PublicKeyRequest struct {
	Username string `json:"username"`
}

type PublicKeyResponse struct {
	PublicKey string `json:"public_key"`
}

type OnlineUsersResponse struct {
	Users []string `json:"users"`
}

type SignalingResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type OfferRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Offer string `json:"offer"`
}

type AnswerRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Answer string `json:"answer"`
}

type CandidateRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Candidate string `json:"candidate"`
}

// Relay frame types. The relay speaks newline-free JSON text frames over a
// websocket; Type selects which of the optional fields are meaningful.
const (
	FrameCheckUsername     = "check_username"
	FrameRegister          = "register"
	FrameSendMessage       = "send_message"
	FrameUsernameAvailable = "username_available"
	FrameRegistered        = "registered"
	FrameOnlineUsers       = "online_users"
	FrameMessage           = "message"
	FrameError             = "error"
)

// RelayFrame is the single envelope for every relay exchange. The relay never
// sees anything but opaque ciphertext inside Encrypted.
type RelayFrame struct {
	Type      string    `json:"type"`
	Username  string    `json:"username,omitempty"`
	PublicKey string    `json:"public_key,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	ID        string    `json:"id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Encrypted *Envelope `json:"encrypted,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Users     []string  `json:"users,omitempty"`
	Available bool      `json:"available,omitempty"`
	Message   string    `json:"message,omitempty"`
}
