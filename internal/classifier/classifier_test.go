package classifier

import "testing"

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"{$user_id}", true},
		{"{$user_firstname} {$user_lastname}", true},
		{"{$user_email}", true},
		{"{$anything_else}", true},
		{"half {$resolved", true},
		{"agent007", false},
		{"Jane Doe", false},
		{"jane@example.com", false},
	}
	for _, tt := range tests {
		if got := IsPlaceholder(tt.value); got != tt.want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestClassifyCloud(t *testing.T) {
	c := New(Options{PlaceholderAgentAsCustomer: true, FanPageNames: []string{"Acme Fan Page"}})

	tests := []struct {
		name    string
		payload Payload
		want    Kind
	}{
		{
			name:    "rejected status",
			payload: Payload{"event_type": "message_added", "message_type": "M", "status": "X"},
			want:    KindIgnorable,
		},
		{
			name:    "deleted status",
			payload: Payload{"event_type": "agent_reply", "status": "D"},
			want:    KindIgnorable,
		},
		{
			name:    "customer message",
			payload: Payload{"event_type": "message_added", "message_type": "M", "status": "N", "message": "hello"},
			want:    KindCustomerMessage,
		},
		{
			name:    "customer message with long message type",
			payload: Payload{"event_type": "message_added", "message_type": "message"},
			want:    KindCustomerMessage,
		},
		{
			name:    "message_added with other message type",
			payload: Payload{"event_type": "message_added", "message_type": "T"},
			want:    KindIgnorable,
		},
		{
			name: "real agent reply",
			payload: Payload{
				"event_type": "agent_reply", "agent_id": "agent42",
				"agent_name": "Jane Doe", "channel_type": "E",
			},
			want: KindAgentReply,
		},
		{
			name: "agent reply without channel marker is skipped",
			payload: Payload{
				"event_type": "agent_reply", "agent_id": "agent42",
				"agent_name": "Jane Doe",
			},
			want: KindIgnorable,
		},
		{
			name: "agent reply with placeholder fields",
			payload: Payload{
				"event_type": "agent_reply", "agent_id": "{$user_id}",
				"agent_name": "{$user_firstname} {$user_lastname}",
			},
			want: KindCustomerMessage,
		},
		{
			name: "agent reply on facebook channel",
			payload: Payload{
				"event_type": "agent_reply", "agent_id": "agent42",
				"agent_name": "Jane Doe", "channel_type": "A",
			},
			want: KindCustomerMessage,
		},
		{
			name:    "comment event",
			payload: Payload{"event_type": "comment_added", "message": "nice post"},
			want:    KindComment,
		},
		{
			name:    "comment message type",
			payload: Payload{"event_type": "message_added", "message_type": "C"},
			want:    KindComment,
		},
		{
			name: "fan page sender downgrades to comment",
			payload: Payload{
				"event_type": "message_added", "message_type": "M",
				"customer_name": "Acme Fan Page",
			},
			want: KindComment,
		},
		{
			name:    "unknown event",
			payload: Payload{"event_type": "conversation_opened"},
			want:    KindIgnorable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(SourceCloud, tt.payload)
			if got.Kind != tt.want {
				t.Fatalf("expected %s, got %s (reason %s)", tt.want, got.Kind, got.Reason)
			}
		})
	}
}

func TestClassifyCloudHeuristicDisabled(t *testing.T) {
	c := New(Options{PlaceholderAgentAsCustomer: false})

	p := Payload{
		"event_type": "agent_reply",
		"agent_id":   "{$user_id}",
		"agent_name": "{$user_firstname} {$user_lastname}",
	}
	if got := c.Classify(SourceCloud, p); got.Kind != KindIgnorable {
		t.Fatalf("expected ignorable with heuristic off, got %s", got.Kind)
	}

	// The facebook channel marker overrides the heuristic setting.
	p["channel_type"] = "A"
	if got := c.Classify(SourceCloud, p); got.Kind != KindCustomerMessage {
		t.Fatalf("expected customer message for channel A, got %s", got.Kind)
	}
}

func TestClassifyOnPremise(t *testing.T) {
	c := New(Options{PlaceholderAgentAsCustomer: true})

	tests := []struct {
		name      string
		payload   Payload
		want      Kind
		agentID   string
		agentName string
	}{
		{
			name:    "non agent reply event",
			payload: Payload{"event_type": "message_added", "message_type": "M"},
			want:    KindIgnorable,
		},
		{
			name:    "agent reply without id",
			payload: Payload{"event_type": "agent_reply", "agent_id": "{$user_id}"},
			want:    KindIgnorable,
		},
		{
			name:      "agent reply with id only",
			payload:   Payload{"event_type": "agent_reply", "agent_id": "agent42", "message": "hi"},
			want:      KindAgentReply,
			agentID:   "agent42",
			agentName: "Agent",
		},
		{
			name: "agent reply with alternate id field",
			payload: Payload{
				"event_type": "agent_reply", "agent_id": "{$user_id}",
				"contactid": "c99", "agent_name": "Jane Doe",
			},
			want:      KindAgentReply,
			agentID:   "c99",
			agentName: "Jane Doe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(SourceOnPremise, tt.payload)
			if got.Kind != tt.want {
				t.Fatalf("expected %s, got %s (reason %s)", tt.want, got.Kind, got.Reason)
			}
			if tt.agentID != "" && got.AgentID != tt.agentID {
				t.Errorf("expected agent id %q, got %q", tt.agentID, got.AgentID)
			}
			if tt.agentName != "" && got.AgentName != tt.agentName {
				t.Errorf("expected agent name %q, got %q", tt.agentName, got.AgentName)
			}
		})
	}
}

func TestPayloadGet(t *testing.T) {
	p := Payload{"agent_id": "", "contactid": "c1", "userid": "u1"}
	if got := p.Get("agent_id", "contactid", "userid"); got != "c1" {
		t.Fatalf("expected c1, got %q", got)
	}
	if got := p.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
