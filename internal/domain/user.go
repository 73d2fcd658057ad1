package domain

// User is the directory record cached in Redis and embedded in user.* events.
type User struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"` // "active" | "inactive"
}

func (u User) Active() bool { return u.Status == "active" }
