package vk

// GroupInfo is the subset of groups.getById fields we persist.
type GroupInfo struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ScreenName   string `json:"screen_name"`
	Description  string `json:"description"`
	MembersCount int    `json:"members_count"`
	Photo200     string `json:"photo_200"`
	IsClosed     int    `json:"is_closed"`
	Deactivated  string `json:"deactivated"`
}

// ResolvedObject is the utils.resolveScreenName response object.
type ResolvedObject struct {
	Type     string `json:"type"` // "group", "page", "event", "user"
	ObjectID int64  `json:"object_id"`
}

// IsGroup reports whether the resolved object is a community of any kind.
func (r ResolvedObject) IsGroup() bool {
	return r.Type == "group" || r.Type == "page" || r.Type == "event"
}

// Post is a wall.get item.
type Post struct {
	ID       int64       `json:"id"`
	OwnerID  int64       `json:"owner_id"`
	FromID   int64       `json:"from_id"`
	Date     int64       `json:"date"` // unix seconds
	Text     string      `json:"text"`
	Comments CountObject `json:"comments"`
	Likes    CountObject `json:"likes"`
	Reposts  CountObject `json:"reposts"`
	Views    CountObject `json:"views"`
}

// Comment is a wall.getComments item.
type Comment struct {
	ID     int64       `json:"id"`
	FromID int64       `json:"from_id"`
	Date   int64       `json:"date"`
	Text   string      `json:"text"`
	Likes  CountObject `json:"likes"`
}

// CountObject wraps VK's {"count": N} sub-objects.
type CountObject struct {
	Count int `json:"count"`
}

// WallPage is one page of wall.get results.
type WallPage struct {
	Count int    `json:"count"`
	Items []Post `json:"items"`
}

// CommentsPage is one page of wall.getComments results.
type CommentsPage struct {
	Count int       `json:"count"`
	Items []Comment `json:"items"`
}
