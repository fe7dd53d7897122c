package model

// AuthUser is the in-memory representation of an authenticated principal,
// populated at token validation time (from DB join of user + team membership).
type AuthUser struct {
	UserID        int64
	Email         string
	DisplayName   string
	CurrentTeamID int64 // 0 = no active team
	// teams is the set of team IDs this user belongs to.
	teams map[int64]struct{}
}

func NewAuthUser(userID int64, email, displayName string) *AuthUser {
	return &AuthUser{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		teams:       make(map[int64]struct{}),
	}
}

// JoinTeam records team membership on the in-memory principal.
func (u *AuthUser) JoinTeam(teamID int64) {
	u.teams[teamID] = struct{}{}
}

// IsMember returns true if the user belongs to the given team.
func (u *AuthUser) IsMember(teamID int64) bool {
	_, ok := u.teams[teamID]
	return ok
}
