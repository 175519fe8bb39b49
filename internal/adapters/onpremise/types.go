package onpremise

import "encoding/json"

// ContactRequest creates a contact via the v3 API.
type ContactRequest struct {
	Firstname   string   `json:"firstname"`
	Lastname    string   `json:"lastname"`
	Emails      []string `json:"emails"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"`
}

type contactResponse struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id"`
}

// TicketRequest creates a ticket via the v3 API.
type TicketRequest struct {
	DepartmentID   string `json:"departmentid"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	ContactEmail   string `json:"contactemail"`
	ContactName    string `json:"contactname"`
	UserIdentifier string `json:"useridentifier"`
	Recipient      string `json:"recipient"`
	Status         string `json:"status"`
	ChannelType    string `json:"channel_type"`
}

// Ticket is the creation response. Code is the human-readable ticket
// reference the reply webhooks use; ID is the opaque internal one.
type Ticket struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Agent is one agent-directory record from the v1 API.
type Agent struct {
	ContactID string `json:"contactid"`
	UserID    string `json:"userid"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// Identifier returns the agent's canonical id, preferring contactid.
func (a Agent) Identifier() string {
	if a.ContactID != "" {
		return a.ContactID
	}
	return a.UserID
}

// agentEnvelope wraps v1 agent responses. The API returns either a
// single object or a list under "response" depending on the endpoint.
type agentEnvelope struct {
	Response json.RawMessage `json:"response"`
}

func (e agentEnvelope) agents() ([]Agent, error) {
	if len(e.Response) == 0 {
		return nil, nil
	}
	var list []Agent
	if err := json.Unmarshal(e.Response, &list); err == nil {
		return list, nil
	}
	var one Agent
	if err := json.Unmarshal(e.Response, &one); err != nil {
		return nil, err
	}
	return []Agent{one}, nil
}
