package domain

// ShowConfession is a confession joined with its likes and comments.
type ShowConfession struct {
	Confession
	LikesCount    int       `json:"likesCount"`
	CommentsCount int       `json:"commentsCount"`
	Likes         []Like    `json:"likes"`
	Comments      []Comment `json:"-"`
	Author        *User     `json:"author,omitempty"`
}

// ShowComment is a comment joined with its likes and replies.
type ShowComment struct {
	Comment
	LikesCount   int            `json:"likesCount"`
	RepliesCount int            `json:"repliesCount"`
	Likes        []Like         `json:"likes"`
	Replies      []ChildComment `json:"-"`
	Author       *User          `json:"author,omitempty"`
}

// ShowChildComment is a reply joined with its likes.
type ShowChildComment struct {
	ChildComment
	LikesCount int    `json:"likesCount"`
	Likes      []Like `json:"likes"`
	Author     *User  `json:"author,omitempty"`
}

func likedBy(likes []Like, actorID string) (Like, bool) {
	if actorID == "" {
		return Like{}, false
	}
	for _, l := range likes {
		if l.ActorID == actorID {
			return l, true
		}
	}
	return Like{}, false
}

// LikedBy returns the actor's like on the confession, if any.
func (v ShowConfession) LikedBy(actorID string) (Like, bool) { return likedBy(v.Likes, actorID) }

// Subject returns the like subject of the view.
func (v ShowConfession) Subject() Subject {
	return Subject{Kind: SubjectConfession, ID: v.ID}
}

func (v ShowComment) LikedBy(actorID string) (Like, bool) { return likedBy(v.Likes, actorID) }

func (v ShowComment) Subject() Subject {
	return Subject{Kind: SubjectComment, ID: v.ID}
}

func (v ShowChildComment) LikedBy(actorID string) (Like, bool) { return likedBy(v.Likes, actorID) }

func (v ShowChildComment) Subject() Subject {
	return Subject{Kind: SubjectChildComment, ID: v.ID}
}

// LikeSet returns the likes of the view.
func (v ShowConfession) LikeSet() []Like { return v.Likes }

func (v ShowComment) LikeSet() []Like { return v.Likes }

func (v ShowChildComment) LikeSet() []Like { return v.Likes }

// SubjectLikes is the bare like set of one subject, enough to toggle a like
// without loading the full view.
type SubjectLikes struct {
	Of    Subject `json:"subject"`
	Likes []Like  `json:"likes"`
}

func (v SubjectLikes) Subject() Subject { return v.Of }

func (v SubjectLikes) LikedBy(actorID string) (Like, bool) { return likedBy(v.Likes, actorID) }

func (v SubjectLikes) LikeSet() []Like { return v.Likes }
