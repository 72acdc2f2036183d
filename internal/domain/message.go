package domain

import "time"

type Message struct {
	ID     string    `json:"id"`
	Sender Role      `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}
