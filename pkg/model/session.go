package model

import "time"

// Object is a session's state blob: where the avatar stands, what it looks
// like and what it last said.
type Object struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ImgName  string  `json:"img_name"`
	ImgIndex int     `json:"img_index"`
	Effect   *string `json:"effect"`
	Chat     string  `json:"chat"`
}

// Clamp forces the position into [0,width] x [0,height].
func (o *Object) Clamp(width, height float64) {
	o.X = clamp(o.X, width)
	o.Y = clamp(o.Y, height)
}

func clamp(v, limit float64) float64 {
	if limit < 0 {
		limit = 0
	}
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// Session is a logged-in connection (in-memory only).
// Room is empty while the session is in the lobby.
type Session struct {
	ID          string
	Nick        string
	Room        string
	Obj         Object
	IP          string
	ConnectedAt time.Time
}

// Profile is the public view of an account.
type Profile struct {
	Nick    string  `json:"nick"`
	Special Special `json:"special"`
	Online  bool    `json:"online"`
	Room    *string `json:"room"`
}
