package session

import (
	"context"
	"time"
)

// Window is how long a recorded join satisfies a hasJoined check.
const Window = 60 * time.Second

// Session is one profile's recent join activity: the profile's stable id
// and, per destination server token, the epoch second the join was
// recorded. The JSON field names match the original sessions.json layout so
// an existing document loads unchanged.
type Session struct {
	ProfileID string           `json:"uuid"`
	Servers   map[string]int64 `json:"servers"`
}

// Store records joins and answers hasJoined checks. Implementations
// normalize usernames to lower case; a record stops satisfying CheckJoin
// once it is older than Window.
type Store interface {
	RecordJoin(ctx context.Context, username, profileID, serverID string, now time.Time) error
	CheckJoin(ctx context.Context, username, serverID string, now time.Time) (string, bool, error)
}
