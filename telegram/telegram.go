package telegram

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"fitroomapi/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"
)

var usernames string = os.Getenv("TG_ADMINS") //separated by comma from env

func EscapeMessage(message string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(message)
}

// AlertFailure delivers a failure message to the admin chat. Best effort:
// the worker never fails a job because the alert could not be sent.
func AlertFailure(message string) {
	token := os.Getenv("TG_TOKEN")
	chatIDRaw := os.Getenv("TG_ADMIN_CHAT_ID")
	if token == "" || chatIDRaw == "" {
		return
	}
	chatID, err := strconv.ParseInt(chatIDRaw, 10, 64)
	if err != nil {
		fmt.Println("Invalid TG_ADMIN_CHAT_ID:", err)
		return
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		fmt.Println("Error tg bot init:", err)
		return
	}
	msg := tgbotapi.NewMessage(chatID, EscapeMessage(message))
	msg.ParseMode = "markdown"
	if _, err := bot.Send(msg); err != nil {
		fmt.Println("Error sending tg alert:", err)
	}
}

func isAdmin(username string) bool {
	if usernames == "" {
		return false
	}
	for _, admin := range strings.Split(usernames, ",") {
		if strings.TrimSpace(admin) == username {
			return true
		}
	}
	return false
}

// RunAdminBot serves a couple of admin commands over Telegram, mainly quick
// production counters without opening a DB console.
func RunAdminBot(db *gorm.DB) {
	bot, err := tgbotapi.NewBotAPI(os.Getenv("TG_TOKEN"))
	if err != nil {
		println("Error tg bot init")
		log.Panic(err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if !isAdmin(update.Message.From.UserName) {
			continue
		}
		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

		switch update.Message.Command() {
		case "stats":
			var users, garments, generations int64
			db.Model(&models.UserAccount{}).Count(&users)
			db.Model(&models.Garment{}).Count(&garments)
			db.Model(&models.Generation{}).Count(&generations)
			text := fmt.Sprintf("```\nusers:       %v\ngarments:    %v\ngenerations: %v\n```", users, garments, generations)
			msg := tgbotapi.NewMessage(update.Message.Chat.ID, text)
			msg.ParseMode = "markdown"
			bot.Send(msg)
		case "failed":
			var failed []models.Generation
			db.Where("status = ?", models.GenerationStatusFailed).Order("id desc").Limit(10).Find(&failed)
			description := strings.Builder{}
			description.WriteString("```\n")
			for _, generation := range failed {
				message := ""
				if generation.ErrorMessage != nil {
					message = *generation.ErrorMessage
				}
				description.WriteString(fmt.Sprintf("#%v %s  🕐 %s\n   %s\n", generation.ID, generation.Mode, generation.CreatedAt.Format("2006-01-02 15:04"), message))
			}
			description.WriteString("```")
			msg := tgbotapi.NewMessage(update.Message.Chat.ID, description.String())
			msg.ParseMode = "markdown"
			if len(failed) == 0 {
				msg.Text = "No failed generations ✅"
			}
			bot.Send(msg)
		}
	}
}
