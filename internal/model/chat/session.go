package chat

// SessionView is the read-only projection of a conversation exposed over HTTP.
type SessionView struct {
	UserID      string `json:"userId"`
	ActorID     string `json:"actorId"`
	NavState    string `json:"navState"`
	Busy        bool   `json:"busy"`
	HistorySize int    `json:"historySize"`
	Turns       []Turn `json:"turns,omitempty"`
}
