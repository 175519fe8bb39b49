package cloud

// Conversation is the v1 conversation detail payload. Only the fields
// the bridge reads are mapped.
type Conversation struct {
	ID        string `json:"conversationid"`
	Code      string `json:"code"`
	Status    string `json:"status"`
	Subject   string `json:"subject"`
	OwnerName string `json:"ownername"`
}

// Message is one entry of a conversation's message thread.
type Message struct {
	ID           string `json:"id"`
	UserID       string `json:"userid"`
	UserFullName string `json:"user_full_name"`
	Type         string `json:"type"`
	Message      string `json:"message"`
	DateCreated  string `json:"datecreated"`
}

// conversationMessagesResponse wraps the v1 thread listing. The API
// groups messages; the groups are flattened for callers.
type conversationMessagesResponse struct {
	Groups []messageGroup `json:"groups"`
}

type messageGroup struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userid"`
	Messages []Message `json:"messages"`
}

// Contact is the v3 contact detail payload.
type Contact struct {
	ID        string   `json:"id"`
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname"`
	Emails    []string `json:"emails"`
}
