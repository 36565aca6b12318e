package model

// OutboundMessage is one text or photo delivery with optional controls.
// PhotoRef set means the message is a photo and Text is its caption.
type OutboundMessage struct {
	ChatID   int64
	Text     string
	PhotoRef string
	Keyboard *Keyboard
}

// Keyboard holds either inline buttons or a persistent reply keyboard.
type Keyboard struct {
	Inline [][]Button
	Reply  [][]string
}

// Button is an inline control: a callback (Data) or a link (URL).
type Button struct {
	Text string
	Data string
	URL  string
}
