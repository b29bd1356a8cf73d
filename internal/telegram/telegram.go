// Package telegram posts operations notifications to the project's chats.
// Callers treat failures as best effort; nothing in the money path depends
// on a message arriving.
package telegram

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
)

// Destination chats. Each resolves to its own chat id from the environment,
// falling back to DEFAULT_CHAT_ID.
const (
	ChatFinance = "finance"
	ChatSignup  = "signup"
)

// Notify sends msg to the named chat. The text is escaped for MarkdownV2
// here so callers can pass amounts and usernames verbatim.
func Notify(msg string, chat string) error {
	token := os.Getenv("TELEGRAM_TOKEN")
	if token == "" {
		return errors.New("TELEGRAM_TOKEN is not set")
	}
	chatId := os.Getenv("DEFAULT_CHAT_ID")
	switch chat {
	case ChatFinance:
		chatId = os.Getenv("FINANCE_CHAT_ID")
	case ChatSignup:
		chatId = os.Getenv("SIGNUP_CHAT_ID")
	}
	if chatId == "" {
		return errors.New("chat id is not set")
	}
	chatIdInt, err := strconv.Atoi(chatId)
	if err != nil {
		return err
	}
	bot, err := gotgbot.NewBot(token, nil)
	if err != nil {
		return err
	}
	_, err = bot.SendMessage(int64(chatIdInt), escapeMarkdownV2(msg), &gotgbot.SendMessageOpts{
		ParseMode: "MarkdownV2",
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	return err
}

func escapeMarkdownV2(text string) string {
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	for _, char := range specialChars {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}
