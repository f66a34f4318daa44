package ranking

import (
	"strconv"
	"time"
)

// Voter identifies who casts a judgment: a signed-in user or a guest session.
type Voter struct {
	UserID       int64
	SessionToken string
}

// UserVoter returns a voter for a signed-in user.
func UserVoter(userID int64) Voter { return Voter{UserID: userID} }

// GuestVoter returns a voter for an anonymous session.
func GuestVoter(token string) Voter { return Voter{SessionToken: token} }

// Anonymous reports whether the voter is a guest session.
func (v Voter) Anonymous() bool { return v.UserID == 0 }

// IsZero reports whether the voter carries no identity at all.
func (v Voter) IsZero() bool { return v.UserID == 0 && v.SessionToken == "" }

// Key is the ledger key for the voter: "user:<id>" or "guest:<token>".
func (v Voter) Key() string {
	if !v.Anonymous() {
		return "user:" + strconv.FormatInt(v.UserID, 10)
	}
	return "guest:" + v.SessionToken
}

// Item is a ranked photo as seen by the rating store.
type Item struct {
	ID          int64   `json:"id"`
	PartitionID int64   `json:"category_id"`
	OwnerID     int64   `json:"owner_id"`
	Filename    string  `json:"filename"`
	Rating      float64 `json:"elo_rating"`
	Comparisons int     `json:"total_duels"`
	Wins        int     `json:"wins"`
}

// Judgment is one immutable vote.
type Judgment struct {
	ID            int64     `json:"id"`
	Voter         Voter     `json:"-"`
	WinnerID      int64     `json:"winner_id"`
	LoserID       int64     `json:"loser_id"`
	IPHash        string    `json:"-"`
	UserAgentHash string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pair returns the normalized pair the judgment covers.
func (j Judgment) Pair() PairKey { return NewPairKey(j.WinnerID, j.LoserID) }

// Outcome is the result of an accepted judgment.
type Outcome struct {
	Judgment    Judgment `json:"vote"`
	Winner      Item     `json:"winner"`
	Loser       Item     `json:"loser"`
	WinnerDelta float64  `json:"winner_delta"`
	LoserDelta  float64  `json:"loser_delta"`
	// Remaining is the guest quota left after this vote, or Unlimited for users.
	Remaining int `json:"remaining_votes"`
}

// Unlimited is reported as remaining quota for signed-in voters.
const Unlimited = -1
