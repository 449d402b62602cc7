package models

import (
	"slices"
	"time"
)

// Account is a registered user's persistent identity and relationship state.
type Account struct {
	ID                 string         `json:"id"`
	UserName           string         `json:"userName"`
	Email              string         `json:"email"`
	PhoneNumber        string         `json:"phoneNumber,omitempty"`
	PasswordHash       string         `json:"-"`
	Profile            map[string]any `json:"profile,omitempty"`
	ProfilePicturePath string         `json:"profilePicturePath,omitempty"`
	PendingRequests    []string       `json:"pendingRequests"`
	Friends            []string       `json:"friends"`
	Blocked            []string       `json:"blocked"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Set returns the members of the named relationship set.
func (a Account) Set(set RelationSet) []string {
	switch set {
	case SetPendingRequests:
		return a.PendingRequests
	case SetFriends:
		return a.Friends
	case SetBlocked:
		return a.Blocked
	default:
		return nil
	}
}

// Has reports whether id is a member of the named relationship set.
func (a Account) Has(set RelationSet, id string) bool {
	return slices.Contains(a.Set(set), id)
}

// RelationSet names one of the relationship sets stored on an account.
type RelationSet string

const (
	// SetPendingRequests holds accounts that sent this account a friend request.
	SetPendingRequests RelationSet = "pendingRequests"
	// SetFriends holds mutual friends.
	SetFriends RelationSet = "friends"
	// SetBlocked holds accounts this account has blocked.
	SetBlocked RelationSet = "blocked"
)

// Valid reports whether s is a known relationship set.
func (s RelationSet) Valid() bool {
	switch s {
	case SetPendingRequests, SetFriends, SetBlocked:
		return true
	}
	return false
}

// SetOpKind distinguishes set insertion from removal.
type SetOpKind int

const (
	SetOpPush SetOpKind = iota
	SetOpPull
)

// SetOp is a single idempotent mutation of one relationship set.
type SetOp struct {
	Kind  SetOpKind
	Set   RelationSet
	Value string
}

// Push returns an op adding value to set if absent.
func Push(set RelationSet, value string) SetOp {
	return SetOp{Kind: SetOpPush, Set: set, Value: value}
}

// Pull returns an op removing value from set if present.
func Pull(set RelationSet, value string) SetOp {
	return SetOp{Kind: SetOpPull, Set: set, Value: value}
}

// AccountPatch lists the account fields a caller may change. Nil fields are left untouched.
type AccountPatch struct {
	UserName           *string
	Email              *string
	PhoneNumber        *string
	PasswordHash       *string
	Profile            map[string]any
	ProfilePicturePath *string
	UpdatedAt          time.Time
}

// Empty reports whether the patch changes nothing.
func (p AccountPatch) Empty() bool {
	return p.UserName == nil && p.Email == nil && p.PhoneNumber == nil &&
		p.PasswordHash == nil && p.Profile == nil && p.ProfilePicturePath == nil
}

// AccountSummary is the public projection returned in relationship listings.
type AccountSummary struct {
	ID       string         `json:"id"`
	UserName string         `json:"userName"`
	Profile  map[string]any `json:"profile,omitempty"`
}

// SessionTokens groups the bearer credentials issued to authenticated accounts.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
