package session

// Event is an inbound user action. The set is closed: only the types in this
// file implement it.
type Event interface {
	eventName() string
}

// LinkSubmitted carries a URL sent by the user.
type LinkSubmitted struct {
	URL string
}

// DocumentSubmitted carries an uploaded file.
type DocumentSubmitted struct {
	Filename string
	MIMEType string
	Data     []byte
}

// TextSubmitted carries a plain text message. Forwarded is set when the
// user passed on someone else's message.
type TextSubmitted struct {
	Text      string
	Forwarded bool
}

// GenerateTriggered asks for a script of the whole queue.
type GenerateTriggered struct{}

// QueueInspectTriggered asks for the queue listing.
type QueueInspectTriggered struct{}

// QueueClearTriggered empties the queue.
type QueueClearTriggered struct{}

func (LinkSubmitted) eventName() string         { return "link_submitted" }
func (DocumentSubmitted) eventName() string     { return "document_submitted" }
func (TextSubmitted) eventName() string         { return "text_submitted" }
func (GenerateTriggered) eventName() string     { return "generate" }
func (QueueInspectTriggered) eventName() string { return "queue_inspect" }
func (QueueClearTriggered) eventName() string   { return "queue_clear" }

// ResponseKind tells the transport how to render a Response.
type ResponseKind string

const (
	ResponseAdded   ResponseKind = "added"
	ResponseScript  ResponseKind = "script"
	ResponseListing ResponseKind = "listing"
	ResponseCleared ResponseKind = "cleared"
	ResponseBusy    ResponseKind = "busy"
	ResponseError   ResponseKind = "error"
)

// Response is the single reply produced for every Event.
type Response struct {
	Kind ResponseKind
	// Text is always set and safe to show to the user.
	Text string
	// Script is set for ResponseScript only.
	Script    string
	QueueSize int
	// ErrorKind is set for ResponseError.
	ErrorKind string
}
