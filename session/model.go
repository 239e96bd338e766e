package session

import (
	"fmt"
	"strconv"
)

// Persisted field names. The layout is a flat key/value record shared by every
// backend.
const (
	FieldIsLoggedIn      = "is_logged_in"
	FieldUserID          = "user_id"
	FieldUserEmail       = "user_email"
	FieldUserToken       = "user_token"
	FieldFirstTimeLaunch = "first_time_launch"
)

// Fields lists every persisted field name.
var Fields = []string{
	FieldIsLoggedIn,
	FieldUserID,
	FieldUserEmail,
	FieldUserToken,
	FieldFirstTimeLaunch,
}

// Session is the durable sign-in state of the local user. The zero value is the
// empty session: signed out, no identity, first launch still pending.
type Session struct {
	IsLoggedIn          bool
	UserID              string
	Email               string
	Token               string
	FirstLaunchConsumed bool
}

// Patch names the fields a Save should write. Nil fields are left untouched.
type Patch struct {
	IsLoggedIn          *bool
	UserID              *string
	Email               *string
	Token               *string
	FirstLaunchConsumed *bool
}

// SignedIn returns the patch written after a successful authentication.
func SignedIn(userID, email, token string) Patch {
	loggedIn := true
	return Patch{
		IsLoggedIn: &loggedIn,
		UserID:     &userID,
		Email:      &email,
		Token:      &token,
	}
}

// FirstLaunchDone returns the patch that marks onboarding as consumed.
func FirstLaunchDone() Patch {
	consumed := true
	return Patch{FirstLaunchConsumed: &consumed}
}

// Empty reports whether p writes nothing.
func (p Patch) Empty() bool {
	return p.IsLoggedIn == nil && p.UserID == nil && p.Email == nil && p.Token == nil && p.FirstLaunchConsumed == nil
}

func (p Patch) encode() map[string]string {
	out := make(map[string]string, len(Fields))
	if p.IsLoggedIn != nil {
		out[FieldIsLoggedIn] = strconv.FormatBool(*p.IsLoggedIn)
	}
	if p.UserID != nil {
		out[FieldUserID] = *p.UserID
	}
	if p.Email != nil {
		out[FieldUserEmail] = *p.Email
	}
	if p.Token != nil {
		out[FieldUserToken] = *p.Token
	}
	if p.FirstLaunchConsumed != nil {
		// Stored inverted: the key records whether the first launch is still ahead.
		out[FieldFirstTimeLaunch] = strconv.FormatBool(!*p.FirstLaunchConsumed)
	}
	return out
}

// decode builds a Session from stored fields. Missing fields take their zero
// value; unknown fields are ignored.
func decode(fields map[string]string) (Session, error) {
	var s Session
	if v, ok := fields[FieldIsLoggedIn]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Session{}, fmt.Errorf("%w: %s=%q", ErrCorrupt, FieldIsLoggedIn, v)
		}
		s.IsLoggedIn = b
	}
	if v, ok := fields[FieldFirstTimeLaunch]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Session{}, fmt.Errorf("%w: %s=%q", ErrCorrupt, FieldFirstTimeLaunch, v)
		}
		s.FirstLaunchConsumed = !b
	}
	s.UserID = fields[FieldUserID]
	s.Email = fields[FieldUserEmail]
	s.Token = fields[FieldUserToken]

	// A logged-in flag without the identity it refers to is not a session.
	if s.IsLoggedIn && (s.UserID == "" || s.Token == "") {
		return Session{}, fmt.Errorf("%w: logged in without user id or token", ErrCorrupt)
	}
	return s, nil
}
