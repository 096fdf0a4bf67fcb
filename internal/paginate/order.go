package paginate

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/UkralStul/confession-feed/internal/domain"
)

// CompareReplies orders replies by like count descending, then by creation
// date descending. Only the calendar date (UTC) is compared: two replies from
// the same day are equal and keep their fetch order under a stable sort.
func CompareReplies(a, b domain.ShowChildComment) int {
	if a.LikesCount != b.LikesCount {
		if a.LikesCount > b.LikesCount {
			return -1
		}
		return 1
	}
	return dateOnly(b.CreatedAt).Compare(dateOnly(a.CreatedAt))
}

// SortReplies sorts replies in place with CompareReplies.
func SortReplies(views []domain.ShowChildComment) {
	slices.SortStableFunc(views, CompareReplies)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Shuffle returns a copy of items permuted by a Fisher–Yates shuffle seeded
// with seed. The same seed always yields the same order.
func Shuffle[T any](items []T, seed uint64) []T {
	out := make([]T, len(items))
	copy(out, items)
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := len(out) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
