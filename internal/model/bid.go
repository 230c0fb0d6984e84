package model

import "time"

// BidRequest は入札作成リクエストを表す。
// 入札ごとに生成し、クライアント側では保持しない。
type BidRequest struct {
	TaskID      string `json:"taskId"`
	UserID      string `json:"userId"`
	BidderEmail string `json:"bidderEmail"`
	BidderName  string `json:"bidderName"`
}

// BidSummary はユーザーが入札済みのタスクIDとその件数を表す。
type BidSummary struct {
	TaskIDs []string
	Count   int
}

// Bid は入札履歴の1件を表す。
type Bid struct {
	ID          string    `json:"_id"`
	TaskID      string    `json:"taskId"`
	UserID      string    `json:"userId"`
	BidderEmail string    `json:"bidderEmail"`
	BidderName  string    `json:"bidderName"`
	BidDate     time.Time `json:"bidDate"`
	Status      string    `json:"status"`
	Task        *Task     `json:"task,omitempty"`
}
