package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// NotifyRedemption posts a short message to the Telegram bot webhook when an
// invite code is redeemed. Fire-and-forget: failures are logged and never
// surfaced to the redeeming request.
func NotifyRedemption(account, code string) {
	notify(map[string]string{
		"text": fmt.Sprintf("Invite code %s redeemed by %s", code, account),
	})
}

// NotifyFarmingComplete tells a mini-app user their farming session paid out.
func NotifyFarmingComplete(userID string) {
	notify(map[string]string{
		"chat_id": userID,
		"text":    "You earned 200 points by farming. Head over to the app to start farming again.",
	})
}

func notify(body map[string]string) {
	webhook := os.Getenv("TELEGRAM_WEBHOOK_URL")
	if webhook == "" {
		return
	}
	go func() {
		payload, err := json.Marshal(body)
		if err != nil {
			return
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Post(webhook, "application/json", bytes.NewReader(payload))
		if err != nil {
			log.Printf("[telegram] notify failed: %v", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Printf("[telegram] notify returned %d", resp.StatusCode)
		}
	}()
}
