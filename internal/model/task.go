package model

// TaskStatusOpen は入札受付中のタスクを示す。
const TaskStatusOpen = "open"

// Task はマーケットプレイスに掲載されたタスクを表す。
type Task struct {
	ID          string  `json:"_id,omitempty"`
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Deadline    string  `json:"deadline"`
	Budget      float64 `json:"budget"`
	UserEmail   string  `json:"userEmail,omitempty"`
	UserName    string  `json:"userName,omitempty"`
	UserID      string  `json:"userId,omitempty"`
	Status      string  `json:"status,omitempty"`
	BidsCount   int     `json:"bidsCount,omitempty"`
}

// TaskInput はタスク作成・更新時にユーザーが入力する項目。
type TaskInput struct {
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Deadline    string  `json:"deadline"`
	Budget      float64 `json:"budget"`
}
