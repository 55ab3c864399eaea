package model

import (
	"time"
)

// Bot is a configured messaging-channel credential set owned by one operator.
// AccessToken is stored encrypted and decrypted only when a send is issued.
type Bot struct {
	ID            string    `json:"id"`
	OperatorID    string    `json:"operator_id"`
	Key           string    `json:"key"`
	PhoneNumberID string    `json:"phone_number_id"`
	AccessToken   string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}
