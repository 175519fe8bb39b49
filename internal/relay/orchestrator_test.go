package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ndikhoa/ladesk-api/internal/adapters/cloud"
	"github.com/ndikhoa/ladesk-api/internal/adapters/onpremise"
	"github.com/ndikhoa/ladesk-api/internal/classifier"
	"github.com/ndikhoa/ladesk-api/internal/models"
	"github.com/ndikhoa/ladesk-api/internal/resolver"
)

type fakeCloud struct {
	conversation *cloud.Conversation
	contact      *cloud.Contact
	contactErr   error
	messages     []cloud.Message
	messagesErr  error

	sentConversationID string
	sentMessage        string
	sentIdentifier     string
	sendErr            error
}

func (f *fakeCloud) ConversationDetails(_ context.Context, _ string) (*cloud.Conversation, error) {
	return f.conversation, nil
}

func (f *fakeCloud) ContactDetails(_ context.Context, _ string) (*cloud.Contact, error) {
	return f.contact, f.contactErr
}

func (f *fakeCloud) ConversationMessages(_ context.Context, _ string) ([]cloud.Message, error) {
	return f.messages, f.messagesErr
}

func (f *fakeCloud) SendReply(_ context.Context, conversationID, message, userIdentifier string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentConversationID = conversationID
	f.sentMessage = message
	f.sentIdentifier = userIdentifier
	return nil
}

type fakeOnPremise struct {
	contactID  string
	contactErr error
	ticket     *onpremise.Ticket
	ticketErr  error

	contactReq onpremise.ContactRequest
	ticketReq  onpremise.TicketRequest
}

func (f *fakeOnPremise) CreateContact(_ context.Context, req onpremise.ContactRequest) (string, bool, error) {
	f.contactReq = req
	return f.contactID, false, f.contactErr
}

func (f *fakeOnPremise) CreateTicket(_ context.Context, req onpremise.TicketRequest) (*onpremise.Ticket, error) {
	f.ticketReq = req
	return f.ticket, f.ticketErr
}

type fakeStore struct {
	mappings  []models.ConversationMapping
	createErr error
	updateErr error

	created    *models.ConversationMapping
	lastReply  string
	lastTicket string
	lastAgent  string
}

func (f *fakeStore) CreateMapping(_ context.Context, m *models.ConversationMapping) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = m
	f.mappings = append(f.mappings, *m)
	return nil
}

func (f *fakeStore) UpdateLastReply(_ context.Context, ticketID, reply, agentName string, _ time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.lastTicket = ticketID
	f.lastReply = reply
	f.lastAgent = agentName
	return nil
}

func (f *fakeStore) AllMappings(_ context.Context, _ int) ([]models.ConversationMapping, error) {
	return f.mappings, nil
}

func (f *fakeStore) MappingByTicket(_ context.Context, id string) (*models.ConversationMapping, error) {
	for i := range f.mappings {
		if f.mappings[i].OnPremiseTicketID == id {
			return &f.mappings[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MappingByConversation(_ context.Context, id string) (*models.ConversationMapping, error) {
	for i := len(f.mappings) - 1; i >= 0; i-- {
		if f.mappings[i].CloudConversationID == id {
			return &f.mappings[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MappingByEmail(_ context.Context, email string) (*models.ConversationMapping, error) {
	for i := len(f.mappings) - 1; i >= 0; i-- {
		if f.mappings[i].CustomerEmail == email {
			return &f.mappings[i], nil
		}
	}
	return nil, nil
}

type fakeAgents struct {
	identifier string
	agentID    string
	agentName  string
}

func (f *fakeAgents) CloudIdentifier(_ context.Context, agentID, agentName string) string {
	f.agentID = agentID
	f.agentName = agentName
	return f.identifier
}

func newTestOrchestrator(t *testing.T, c *fakeCloud, op *fakeOnPremise, st *fakeStore, ag *fakeAgents) *Orchestrator {
	t.Helper()
	res, err := resolver.New(st)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOrchestrator(c, op, st, res, ag, nil, Config{
		DepartmentID:   "dept1",
		RecipientEmail: "support@example.com",
		BotSenders:     []string{"Acme Fan Page"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestHandleCustomerMessageCreatesTicketAndMapping(t *testing.T) {
	c := &fakeCloud{contact: &cloud.Contact{
		Firstname: "Jane", Lastname: "Doe", Emails: []string{"jane@example.com"},
	}}
	op := &fakeOnPremise{contactID: "ct1", ticket: &onpremise.Ticket{ID: "tid1", Code: "TKT-1"}}
	st := &fakeStore{}
	o := newTestOrchestrator(t, c, op, st, &fakeAgents{identifier: "default@example.com"})

	p := classifier.Payload{
		"conversation_id": "C100",
		"contact_id":      "cloudct",
		"message":         "I need help",
		"subject":         "Order question",
	}
	res, err := o.HandleCustomerMessage(context.Background(), p)
	if err != nil {
		t.Fatalf("HandleCustomerMessage failed: %v", err)
	}
	if res.TicketCode != "TKT-1" {
		t.Fatalf("expected ticket code TKT-1, got %q", res.TicketCode)
	}

	if op.ticketReq.Subject != "Facebook - C100 - Order question" {
		t.Errorf("unexpected subject %q", op.ticketReq.Subject)
	}
	if op.ticketReq.DepartmentID != "dept1" || op.ticketReq.Status != "N" || op.ticketReq.ChannelType != "E" {
		t.Errorf("unexpected ticket defaults: %+v", op.ticketReq)
	}
	if op.ticketReq.ContactEmail != "jane@example.com" || op.ticketReq.ContactName != "Jane Doe" {
		t.Errorf("expected resolved identity on ticket, got %+v", op.ticketReq)
	}

	if st.created == nil {
		t.Fatal("expected mapping to be stored")
	}
	if st.created.CloudConversationID != "C100" || st.created.OnPremiseTicketID != "TKT-1" {
		t.Fatalf("unexpected mapping %+v", st.created)
	}
	if st.created.OnPremiseContactID != "ct1" {
		t.Errorf("expected contact id on mapping, got %q", st.created.OnPremiseContactID)
	}
}

func TestHandleCustomerMessageSynthesizesIdentity(t *testing.T) {
	c := &fakeCloud{contactErr: errors.New("api down")}
	op := &fakeOnPremise{ticket: &onpremise.Ticket{ID: "tid2"}}
	st := &fakeStore{}
	o := newTestOrchestrator(t, c, op, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"conversation_id": "C200", "contact_id": "x", "message": "hi"}
	res, err := o.HandleCustomerMessage(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if op.ticketReq.ContactEmail != "facebook_C200@facebook.com" {
		t.Errorf("expected synthetic email, got %q", op.ticketReq.ContactEmail)
	}
	if op.ticketReq.ContactName != "Facebook Customer" {
		t.Errorf("expected default name, got %q", op.ticketReq.ContactName)
	}
	// No code on the ticket: the internal id becomes the mapping key.
	if res.TicketCode != "tid2" || st.created.OnPremiseTicketID != "tid2" {
		t.Errorf("expected id fallback, got %q / %q", res.TicketCode, st.created.OnPremiseTicketID)
	}
}

func TestHandleCustomerMessageSubjectFromConversation(t *testing.T) {
	c := &fakeCloud{conversation: &cloud.Conversation{ID: "C250", Subject: "Broken widget"}}
	op := &fakeOnPremise{ticket: &onpremise.Ticket{ID: "tid9", Code: "TKT-9"}}
	o := newTestOrchestrator(t, c, op, &fakeStore{}, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"conversation_id": "C250", "message": "hi"}
	if _, err := o.HandleCustomerMessage(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if op.ticketReq.Subject != "Facebook - C250 - Broken widget" {
		t.Errorf("expected subject from conversation details, got %q", op.ticketReq.Subject)
	}
}

func TestHandleCustomerMessageContactFailureIsTolerated(t *testing.T) {
	c := &fakeCloud{}
	op := &fakeOnPremise{contactErr: errors.New("duplicate email"), ticket: &onpremise.Ticket{ID: "tid3", Code: "TKT-3"}}
	st := &fakeStore{}
	o := newTestOrchestrator(t, c, op, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"conversation_id": "C300", "message": "hello"}
	if _, err := o.HandleCustomerMessage(context.Background(), p); err != nil {
		t.Fatalf("contact failure must not fail the relay: %v", err)
	}
	if st.created.OnPremiseContactID != "" {
		t.Errorf("expected empty contact id, got %q", st.created.OnPremiseContactID)
	}
}

func TestHandleCustomerMessageTicketFailureStoresNothing(t *testing.T) {
	c := &fakeCloud{}
	op := &fakeOnPremise{ticketErr: errors.New("api rejected")}
	st := &fakeStore{}
	o := newTestOrchestrator(t, c, op, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"conversation_id": "C400", "message": "hello"}
	if _, err := o.HandleCustomerMessage(context.Background(), p); err == nil {
		t.Fatal("expected error when ticket creation fails")
	}
	if st.created != nil {
		t.Fatalf("no mapping may be stored on ticket failure, got %+v", st.created)
	}
}

func TestHandleCustomerMessageRequiresConversationID(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCloud{}, &fakeOnPremise{}, &fakeStore{}, &fakeAgents{identifier: "d"})
	_, err := o.HandleCustomerMessage(context.Background(), classifier.Payload{"message": "hi"})
	if !errors.Is(err, ErrBadEvent) {
		t.Fatalf("expected ErrBadEvent, got %v", err)
	}
}

func TestHandleAgentReplyRelaysSanitizedMessage(t *testing.T) {
	c := &fakeCloud{}
	st := &fakeStore{mappings: []models.ConversationMapping{
		{ID: 1, CloudConversationID: "C100", OnPremiseTicketID: "TKT-1"},
	}}
	ag := &fakeAgents{identifier: "agent@example.com"}
	o := newTestOrchestrator(t, c, &fakeOnPremise{}, st, ag)

	p := classifier.Payload{"ticket_id": "TKT-1", "message": "<b>Hi!</b>&nbsp;there"}
	d := classifier.Decision{Kind: classifier.KindAgentReply, AgentID: "a1", AgentName: "Jane Doe"}

	res, err := o.HandleAgentReply(context.Background(), p, d)
	if err != nil {
		t.Fatalf("HandleAgentReply failed: %v", err)
	}
	if res.ConversationID != "C100" {
		t.Fatalf("expected C100, got %q", res.ConversationID)
	}
	if c.sentMessage != "Hi! there" {
		t.Errorf("expected sanitized message, got %q", c.sentMessage)
	}
	if c.sentIdentifier != "agent@example.com" {
		t.Errorf("expected resolved identifier, got %q", c.sentIdentifier)
	}
	if st.lastTicket != "TKT-1" || st.lastReply != "Hi! there" || st.lastAgent != "Jane Doe" {
		t.Errorf("last reply not recorded: %q %q %q", st.lastTicket, st.lastReply, st.lastAgent)
	}
}

func TestHandleAgentReplyNoMapping(t *testing.T) {
	c := &fakeCloud{}
	st := &fakeStore{}
	o := newTestOrchestrator(t, c, &fakeOnPremise{}, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"ticket_id": "ghost", "message": "hi"}
	_, err := o.HandleAgentReply(context.Background(), p, classifier.Decision{AgentID: "a1", AgentName: "Agent"})
	if !errors.Is(err, ErrNoMapping) {
		t.Fatalf("expected ErrNoMapping, got %v", err)
	}
	if c.sentMessage != "" {
		t.Fatal("nothing may be sent without a mapping")
	}
}

func TestHandleAgentReplySendFailureLeavesMappingUntouched(t *testing.T) {
	c := &fakeCloud{sendErr: errors.New("cloud down")}
	st := &fakeStore{mappings: []models.ConversationMapping{
		{ID: 1, CloudConversationID: "C100", OnPremiseTicketID: "TKT-1"},
	}}
	o := newTestOrchestrator(t, c, &fakeOnPremise{}, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"ticket_id": "TKT-1", "message": "hi"}
	_, err := o.HandleAgentReply(context.Background(), p, classifier.Decision{AgentID: "a1", AgentName: "Agent"})
	if err == nil {
		t.Fatal("expected error")
	}
	if st.lastTicket != "" {
		t.Fatal("mapping must not be updated when the send fails")
	}
}

func TestHandleAgentReplyBookkeepingFailureDoesNotFailRelay(t *testing.T) {
	c := &fakeCloud{}
	st := &fakeStore{
		mappings: []models.ConversationMapping{
			{ID: 1, CloudConversationID: "C100", OnPremiseTicketID: "TKT-1"},
		},
		updateErr: errors.New("db locked"),
	}
	o := newTestOrchestrator(t, c, &fakeOnPremise{}, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"ticket_id": "TKT-1", "message": "hi"}
	res, err := o.HandleAgentReply(context.Background(), p, classifier.Decision{AgentID: "a1", AgentName: "Agent"})
	if err != nil {
		t.Fatalf("reply was sent, bookkeeping failure must not surface: %v", err)
	}
	if res.ConversationID != "C100" || c.sentMessage != "hi" {
		t.Fatalf("expected delivered reply, got %+v / %q", res, c.sentMessage)
	}
}

func TestHandleAgentReplyResolvesByConversationCode(t *testing.T) {
	c := &fakeCloud{}
	st := &fakeStore{mappings: []models.ConversationMapping{
		{ID: 1, CloudConversationID: "C500", OnPremiseTicketID: "CODE-5"},
	}}
	o := newTestOrchestrator(t, c, &fakeOnPremise{}, st, &fakeAgents{identifier: "d"})

	// The ticket code arrives in the conversation_id field.
	p := classifier.Payload{"conversation_id": "CODE-5", "message": "reply"}
	res, err := o.HandleAgentReply(context.Background(), p, classifier.Decision{AgentID: "a1", AgentName: "Agent"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ConversationID != "C500" {
		t.Fatalf("expected C500, got %q", res.ConversationID)
	}
}

func TestHandleCloudAgentReplyUpdatesWithoutSending(t *testing.T) {
	c := &fakeCloud{}
	st := &fakeStore{mappings: []models.ConversationMapping{
		{ID: 1, CloudConversationID: "C600", OnPremiseTicketID: "TKT-6"},
	}}
	o := newTestOrchestrator(t, c, &fakeOnPremise{}, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"conversation_id": "C600", "message": "<p>done</p>"}
	d := classifier.Decision{AgentID: "a1", AgentName: "Jane Doe"}
	if _, err := o.HandleCloudAgentReply(context.Background(), p, d); err != nil {
		t.Fatal(err)
	}
	if c.sentMessage != "" {
		t.Fatal("Cloud-feed replies must not be sent back to Cloud")
	}
	if st.lastTicket != "TKT-6" || st.lastReply != "done" {
		t.Errorf("expected bookkeeping update, got %q %q", st.lastTicket, st.lastReply)
	}
}

func TestHandleCommentRecoversCommenterFromThread(t *testing.T) {
	c := &fakeCloud{messages: []cloud.Message{
		{ID: "m1", UserID: "u1", UserFullName: "John Smith", Message: "first"},
		{ID: "m2", UserID: "bot", UserFullName: "Acme Fan Page", Message: "auto reply"},
		{ID: "m3", UserID: "u2", UserFullName: "Mary Major", Message: "latest comment"},
	}}
	op := &fakeOnPremise{ticket: &onpremise.Ticket{ID: "tid7", Code: "TKT-7"}}
	st := &fakeStore{}
	o := newTestOrchestrator(t, c, op, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"conversation_id": "C700", "message": "latest comment"}
	if _, err := o.HandleComment(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if op.ticketReq.ContactName != "Mary Major" {
		t.Errorf("expected newest non-bot author, got %q", op.ticketReq.ContactName)
	}
	if op.ticketReq.ContactEmail != "facebook_u2@facebook.com" {
		t.Errorf("expected commenter-derived email, got %q", op.ticketReq.ContactEmail)
	}
}

func TestHandleCommentThreadFailureFallsBack(t *testing.T) {
	c := &fakeCloud{messagesErr: errors.New("api down")}
	op := &fakeOnPremise{ticket: &onpremise.Ticket{ID: "tid8", Code: "TKT-8"}}
	st := &fakeStore{}
	o := newTestOrchestrator(t, c, op, st, &fakeAgents{identifier: "d"})

	p := classifier.Payload{"conversation_id": "C800", "message": "a comment"}
	if _, err := o.HandleComment(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(op.ticketReq.ContactName, "Facebook User") {
		t.Errorf("expected fallback identity, got %q", op.ticketReq.ContactName)
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	st := &fakeStore{}
	res, _ := resolver.New(st)
	if _, err := NewOrchestrator(nil, &fakeOnPremise{}, st, res, &fakeAgents{}, nil, Config{}); err == nil {
		t.Fatal("expected error for nil Cloud service")
	}
	if _, err := NewOrchestrator(&fakeCloud{}, &fakeOnPremise{}, st, nil, &fakeAgents{}, nil, Config{}); err == nil {
		t.Fatal("expected error for nil resolver")
	}
}
