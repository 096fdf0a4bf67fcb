package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLike_Validate(t *testing.T) {
	a, b := "a", "b"

	assert.ErrorIs(t, Like{}.Validate(), ErrNoLikeTarget)
	assert.ErrorIs(t, Like{ConfessionID: &a, CommentID: &b}.Validate(), ErrMultipleLikeTargets)
	assert.NoError(t, Like{ChildCommentID: &a}.Validate())

	empty := ""
	assert.ErrorIs(t, Like{CommentID: &empty}.Validate(), ErrNoLikeTarget)
}

func TestNewLike_Target(t *testing.T) {
	for _, kind := range []SubjectKind{SubjectConfession, SubjectComment, SubjectChildComment} {
		l, err := NewLike("user-1", Subject{Kind: kind, ID: "x"})
		require.NoError(t, err)
		require.NoError(t, l.Validate())

		target, ok := l.Target()
		require.True(t, ok)
		assert.Equal(t, Subject{Kind: kind, ID: "x"}, target)
	}

	_, err := NewLike("user-1", Subject{Kind: "post", ID: "x"})
	assert.ErrorIs(t, err, ErrUnknownSubjectKind)
}

func TestShowConfession_LikedBy(t *testing.T) {
	v := ShowConfession{Likes: []Like{{ID: "l1", ActorID: "u1"}, {ID: "l2", ActorID: "u2"}}}

	l, ok := v.LikedBy("u2")
	require.True(t, ok)
	assert.Equal(t, "l2", l.ID)

	_, ok = v.LikedBy("u3")
	assert.False(t, ok)
	_, ok = v.LikedBy("")
	assert.False(t, ok)
}
