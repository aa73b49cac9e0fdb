package bot

import "context"

// Button is one inline-keyboard choice; Data travels back in the
// callback query payload.
type Button struct {
	Label string
	Data  string
}

// Messenger is the outbound side of the messaging platform. Send methods
// do not return errors: delivery failures are logged by the implementation
// and must never fail a dispatch.
type Messenger interface {
	SendText(chatID int64, text string)
	SendKeyboard(chatID int64, text string, buttons []Button)
	EditText(chatID int64, messageID int, text string)
	EditKeyboard(chatID int64, messageID int, text string, buttons []Button)
	AnswerCallback(callbackID string)
	SendTyping(chatID int64)
	DownloadVoice(ctx context.Context, fileID string) ([]byte, error)
}
