package domain

import "time"

// Poll is a read-only copy of the on-chain poll record. The contract is the
// sole source of truth; none of these fields are mutated locally.
type Poll struct {
	ID              uint64   `json:"id"`
	Creator         string   `json:"creator"`
	Title           string   `json:"title"`
	Question        string   `json:"question"`
	OptionTexts     []string `json:"optionTexts"`
	OptionVotes     []uint64 `json:"optionVotes"`
	VoterCount      uint64   `json:"voterCount"`
	Deadline        int64    `json:"deadline"`  // epoch millis
	CreatedAt       int64    `json:"createdAt"` // epoch seconds
	HasAlreadyVoted bool     `json:"hasAlreadyVoted"`
}

// Active reports whether the poll is still open for voting. Evaluated at read
// time, never stored.
func (p *Poll) Active(now time.Time) bool {
	return p.Deadline >= now.UnixMilli()
}

// User is the authenticated backend identity. It is not chain data.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar,omitempty"`
}

// AggregateStats holds the derived dashboard counters. They are recomputed by
// explicit refreshes, never patched incrementally from local actions.
type AggregateStats struct {
	TotalPolls       uint64 `json:"totalPolls"`
	ActivePolls      uint64 `json:"activePolls"`
	VotesCast        uint64 `json:"votesCast"`
	PollsVotedByUser uint64 `json:"pollsVotedByUser"`
}

type WalletStatus struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	State     string `json:"state"`
}

type CreatePollRequest struct {
	Title       string   `json:"title" binding:"required"`
	Question    string   `json:"question" binding:"required"`
	OptionTexts []string `json:"optionTexts" binding:"required,min=2,max=8"`
	Deadline    int64    `json:"deadline" binding:"required"` // epoch millis
}

// VoteRequest uses a pointer so that option zero still satisfies "required".
type VoteRequest struct {
	OptionIndex *uint64 `json:"optionIndex" binding:"required"`
}

type PollPage struct {
	Polls  []Poll `json:"polls"`
	Total  uint64 `json:"total"`
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Pages  uint64 `json:"pages"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SignupRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Avatar   string `json:"avatar,omitempty"`
}

type UpdateProfileRequest struct {
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

const (
	MinPollOptions = 2
	MaxPollOptions = 8
	DefaultLimit   = 6
	MaxPageSize    = 100
)

// PageCount derives the explore page count as ceil(total/limit).
func PageCount(total, limit uint64) uint64 {
	if limit == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
