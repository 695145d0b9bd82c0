package model

import "database/sql"

// User is the account-owning root entity. All other entities hang off a
// user, directly or through a vehicle/fuel station.
type User struct {
	MasterMetadata
	SyncMetadata

	Name     string
	Email    string
	Username string
}

func (u *User) MasterMeta() *MasterMetadata { return &u.MasterMetadata }
func (u *User) SyncMeta() *SyncMetadata     { return &u.SyncMetadata }

// Overwrite replaces u's domain fields and master metadata with other's,
// keeping local identifiers intact. Used when resetting a main copy from
// its master or applying a remotely updated version.
func (u *User) Overwrite(other *User) {
	u.Name = other.Name
	u.Email = other.Email
	u.Username = other.Username
	u.overwriteMaster(&other.MasterMetadata)
}

func (m *MasterMetadata) overwriteMaster(other *MasterMetadata) {
	m.GlobalID = other.GlobalID
	m.MediaType = other.MediaType
	m.Relations = other.Relations
	m.CreatedAt = other.CreatedAt
	m.UpdatedAt = other.UpdatedAt
	m.DeletedAt = other.DeletedAt
}

// SaveUserErr is the user-faulted validation bitmask for saving a user.
type SaveUserErr uint64

const (
	SaveUserAnyIssues SaveUserErr = 1 << iota
	SaveUserNameNotProvided
	SaveUserInvalidEmail
	SaveUserEmailNotProvided
)

// Validate returns a bitmask of violated rules; zero means the user is
// saveable. Detection happens before any state mutation.
func (u *User) Validate() SaveUserErr {
	var mask SaveUserErr
	if u.Name == "" {
		mask |= SaveUserAnyIssues | SaveUserNameNotProvided
	}
	if u.Email == "" {
		mask |= SaveUserAnyIssues | SaveUserEmailNotProvided
	} else if !looksLikeEmail(u.Email) {
		mask |= SaveUserAnyIssues | SaveUserInvalidEmail
	}
	return mask
}

func looksLikeEmail(s string) bool {
	at := -1
	for i, r := range s {
		if r == '@' {
			if at >= 0 {
				return false
			}
			at = i
		}
	}
	return at > 0 && at < len(s)-1
}

// NullString is a convenience for building sql.NullString values at call
// sites that deal with optional identifiers.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
