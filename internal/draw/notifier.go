package draw

// Notifier is the outbound notification sink (the chat, in practice).
// Publish returns a message id so the coordinator can keep editing the
// same progress message during the reveal wait.
type Notifier interface {
	Publish(channel int64, text string) (int, error)
	UpdateMessage(channel int64, messageID int, text string) error
}
