package whatsapp

// Meta WhatsApp Cloud API webhook types.

// WebhookPayload is the top-level webhook delivery.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents one business account entry.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps a single change notification.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue holds the message data.
type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Statuses         []Status  `json:"statuses,omitempty"`
}

// FirstMessage returns the first message of the delivery and its contact.
// The contact is nil when the provider sent none.
func (p *WebhookPayload) FirstMessage() (*Message, *Contact, bool) {
	if p == nil || len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil, nil, false
	}
	v := &p.Entry[0].Changes[0].Value
	if len(v.Messages) == 0 {
		return nil, nil, false
	}
	var contact *Contact
	if len(v.Contacts) > 0 {
		contact = &v.Contacts[0]
	}
	return &v.Messages[0], contact, true
}

// Metadata about the receiving phone number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is a WhatsApp contact.
type Contact struct {
	Profile ContactProfile `json:"profile"`
	WaID    string         `json:"wa_id"`
}

// ContactProfile has the display name.
type ContactProfile struct {
	Name string `json:"name"`
}

// Message represents an incoming WhatsApp message.
type Message struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Image       *MediaContent       `json:"image,omitempty"`
	Document    *MediaContent       `json:"document,omitempty"`
	Audio       *MediaContent       `json:"audio,omitempty"`
	Video       *MediaContent       `json:"video,omitempty"`
	Sticker     *MediaContent       `json:"sticker,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
}

// TextContent holds a text message body.
type TextContent struct {
	Body string `json:"body"`
}

// MediaContent holds the fields shared by image, video, audio, sticker and
// document messages. Filename is only sent for documents.
type MediaContent struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// InteractiveContent is a customer's answer to an interactive message.
type InteractiveContent struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
	ListReply   *ListReply   `json:"list_reply,omitempty"`
}

// ButtonReply is the button a customer tapped.
type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListReply is the list row a customer picked.
type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Status represents a message delivery status update.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// MediaResponse is the response when retrieving media metadata from the API.
type MediaResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

// Outbound payloads.

// SendRequest is the payload for POST /{phone-number-id}/messages.
type SendRequest struct {
	MessagingProduct string              `json:"messaging_product"`
	RecipientType    string              `json:"recipient_type"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *TextContent        `json:"text,omitempty"`
	Image            *MediaLink          `json:"image,omitempty"`
	Video            *MediaLink          `json:"video,omitempty"`
	Audio            *MediaLink          `json:"audio,omitempty"`
	Document         *MediaLink          `json:"document,omitempty"`
	Template         *Template           `json:"template,omitempty"`
	Interactive      *InteractiveMessage `json:"interactive,omitempty"`
}

// MediaLink references media by public URL.
type MediaLink struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Template is a pre-approved message template.
type Template struct {
	Name     string           `json:"name"`
	Language TemplateLanguage `json:"language"`
}

// TemplateLanguage selects the template translation.
type TemplateLanguage struct {
	Code string `json:"code"`
}

// InteractiveMessage is an outbound reply-button message.
type InteractiveMessage struct {
	Type   string            `json:"type"`
	Body   InteractiveBody   `json:"body"`
	Action InteractiveAction `json:"action"`
}

// InteractiveBody is the text shown above the buttons.
type InteractiveBody struct {
	Text string `json:"text"`
}

// InteractiveAction holds the buttons.
type InteractiveAction struct {
	Buttons []InteractiveButton `json:"buttons"`
}

// InteractiveButton is one reply button.
type InteractiveButton struct {
	Type  string      `json:"type"`
	Reply ButtonReply `json:"reply"`
}

// SendResponse is the response from the send message API.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// APIError is the error envelope returned by the Graph API.
type APIError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}
