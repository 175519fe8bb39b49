package classifier

import (
	"strings"
)

// Kind is the classification assigned to an inbound webhook event.
type Kind string

const (
	KindAgentReply      Kind = "agent_reply"
	KindCustomerMessage Kind = "customer_message"
	KindComment         Kind = "comment"
	KindIgnorable       Kind = "ignorable"
)

// Source identifies which platform delivered the webhook. The Cloud
// feed mixes customer messages, mislabeled agent replies and comments;
// the On-Premise feed only ever carries agent replies worth relaying.
type Source string

const (
	SourceCloud     Source = "cloud"
	SourceOnPremise Source = "onpremise"
)

// Payload is a webhook body normalized to a flat field→value mapping.
// Upstream payloads arrive in varying encodings, so everything is
// reduced to strings before classification.
type Payload map[string]string

// Get returns the first non-empty value among the given keys.
func (p Payload) Get(keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// Unresolved template literals the upstream platform leaks into
// webhook fields when a rule fires without the variable in scope.
var placeholderLiterals = []string{
	"{$user_id}",
	"{$user_firstname} {$user_lastname}",
	"{$user_email}",
}

// IsPlaceholder reports whether a field value must be treated as
// absent: empty, a known unresolved template literal, or anything
// still containing a template brace.
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	for _, lit := range placeholderLiterals {
		if v == lit {
			return true
		}
	}
	return strings.Contains(v, "{")
}

// Conversation statuses the bridge processes. Everything else is
// skipped: N=new, O/C=open, A=answered, R=resolved, plus events that
// carry no status at all.
var acceptedStatuses = []string{"N", "O", "C", "A", "R", ""}

func statusAccepted(status string) bool {
	for _, s := range acceptedStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Options tune the classification heuristics.
type Options struct {
	// PlaceholderAgentAsCustomer controls the heuristic that treats an
	// agent_reply event whose agent fields are all placeholders as a
	// customer message mislabeled upstream. When disabled such events
	// are ignored instead.
	PlaceholderAgentAsCustomer bool

	// FanPageNames are customer display names that actually belong to
	// the Facebook fan page or a bot. A message attributed to one of
	// them is a comment and the real commenter has to be recovered
	// from the conversation thread.
	FanPageNames []string
}

// Decision is the classifier output for one event.
type Decision struct {
	Kind   Kind
	Reason string

	// AgentID is the first valid (non-placeholder) agent identifier
	// found in the payload, set for KindAgentReply.
	AgentID string
	// AgentName is the display name to attribute the reply to,
	// defaulted to "Agent" when the payload value is a placeholder.
	AgentName string
}

// Classifier assigns event kinds to normalized webhook payloads. It is
// a pure function of the payload; the comment disambiguation that
// needs a thread lookup happens later in the orchestrator.
type Classifier struct {
	opts Options
}

func New(opts Options) *Classifier {
	return &Classifier{opts: opts}
}

// Classify maps a payload to an event kind.
//
// Cloud tie-break: AgentReply is checked before CustomerMessage, and
// only wins when the agent fields are fully present and
// non-placeholder and the event carries the email channel marker;
// otherwise the event falls through.
func (c *Classifier) Classify(src Source, p Payload) Decision {
	if src == SourceOnPremise {
		return c.classifyOnPremise(p)
	}
	return c.classifyCloud(p)
}

func (c *Classifier) classifyCloud(p Payload) Decision {
	status := p.Get("status")
	if !statusAccepted(status) {
		return Decision{Kind: KindIgnorable, Reason: "conversation_status_" + status}
	}

	eventType := p.Get("event_type")
	messageType := p.Get("message_type")
	channelType := p.Get("channel_type")
	agentName := p.Get("agent_name")
	agentID := firstValidID(p.Get("agent_id"), p.Get("contactid"), p.Get("userid"))

	if isCommentEvent(eventType) || messageType == "C" {
		return Decision{Kind: KindComment, Reason: "comment_event"}
	}

	if eventType == "agent_reply" {
		// A real agent reply carries resolved agent fields and the
		// email channel marker.
		if agentID != "" && !IsPlaceholder(agentName) && channelType == "E" {
			return Decision{Kind: KindAgentReply, AgentID: agentID, AgentName: agentName}
		}
		// Facebook-channel events labeled agent_reply are customer
		// messages regardless of the heuristic setting.
		if channelType == "A" {
			return c.customerOrComment(p, "agent_reply_on_facebook_channel")
		}
		if c.opts.PlaceholderAgentAsCustomer && (agentID == "" || IsPlaceholder(agentName)) {
			return c.customerOrComment(p, "agent_reply_without_agent")
		}
		return Decision{Kind: KindIgnorable, Reason: "agent_reply_without_agent"}
	}

	if eventType == "message_added" && (messageType == "M" || messageType == "message") {
		return c.customerOrComment(p, "")
	}

	return Decision{Kind: KindIgnorable, Reason: "unhandled_event_" + eventType}
}

// customerOrComment downgrades a would-be customer message to a
// comment when the purported customer name is really the fan page.
func (c *Classifier) customerOrComment(p Payload, reason string) Decision {
	name := p.Get("customer_name", "contact_name")
	for _, fp := range c.opts.FanPageNames {
		if fp != "" && strings.EqualFold(strings.TrimSpace(name), fp) {
			return Decision{Kind: KindComment, Reason: "fan_page_sender"}
		}
	}
	return Decision{Kind: KindCustomerMessage, Reason: reason}
}

// classifyOnPremise accepts only agent_reply events and requires a
// valid agent identifier from any of the id-bearing fields. The name
// is cosmetic on this feed and falls back to "Agent".
func (c *Classifier) classifyOnPremise(p Payload) Decision {
	eventType := p.Get("event_type")
	if eventType != "agent_reply" {
		return Decision{Kind: KindIgnorable, Reason: "non_agent_reply_event"}
	}

	agentID := firstValidID(p.Get("agent_id"), p.Get("contactid"), p.Get("userid"))
	if agentID == "" {
		return Decision{Kind: KindIgnorable, Reason: "no_valid_agent_id"}
	}

	agentName := p.Get("agent_name")
	if IsPlaceholder(agentName) {
		agentName = "Agent"
	}
	return Decision{Kind: KindAgentReply, AgentID: agentID, AgentName: agentName}
}

func firstValidID(candidates ...string) string {
	for _, c := range candidates {
		if !IsPlaceholder(c) {
			return strings.TrimSpace(c)
		}
	}
	return ""
}

func isCommentEvent(eventType string) bool {
	switch eventType {
	case "comment_added", "new_comment":
		return true
	}
	return false
}
