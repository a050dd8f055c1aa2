package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned when a persisted user record cannot be decoded.
var ErrMalformedRecord = errors.New("malformed user record")

// Role is the account category carried in a user record's user_type field.
type Role string

const (
	RoleStudent    Role = "student"
	RoleCompany    Role = "company"
	RoleSchool     Role = "school"
	RoleUniversity Role = "university"
	RoleMentor     Role = "mentor"
)

// UserRecord is the authenticated user as cached by the client.
//
// Only id and user_type are interpreted. Every other field is kept in Extra
// and written back verbatim so records survive a round trip unchanged.
type UserRecord struct {
	ID       string
	UserType Role
	Email    string
	Name     string
	Extra    map[string]json.RawMessage

	numericID bool
}

// Identity returns a stable key for memoizing checks against this record.
func (u *UserRecord) Identity() string {
	if u == nil {
		return ""
	}
	return u.ID + "|" + string(u.UserType)
}

// Clone returns a deep copy of u.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	out := *u
	if u.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(u.Extra))
		for k, v := range u.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &out
}

func (u UserRecord) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(u.Extra)+4)
	for k, v := range u.Extra {
		fields[k] = v
	}
	if u.ID != "" {
		if u.numericID {
			fields["id"] = json.Number(u.ID)
		} else {
			fields["id"] = u.ID
		}
	}
	if u.UserType != "" {
		fields["user_type"] = string(u.UserType)
	}
	if u.Email != "" {
		fields["email"] = u.Email
	}
	if u.Name != "" {
		fields["name"] = u.Name
	}
	return json.Marshal(fields)
}

func (u *UserRecord) UnmarshalJSON(data []byte) error {
	rec, err := ParseUserRecord(data)
	if err != nil {
		return err
	}
	*u = *rec
	return nil
}

// ParseUserRecord decodes a cached user record. Anything other than a JSON
// object, or an object whose known fields carry the wrong types, is reported
// as ErrMalformedRecord.
func ParseUserRecord(data []byte) (*UserRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrMalformedRecord
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	rec := &UserRecord{}
	if raw, ok := fields["id"]; ok {
		id, numeric, err := decodeID(raw)
		if err != nil {
			return nil, err
		}
		rec.ID = id
		rec.numericID = numeric
		delete(fields, "id")
	}

	for name, dst := range map[string]*string{
		"email": &rec.Email,
		"name":  &rec.Name,
	} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if err := decodeOptionalString(raw, dst); err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrMalformedRecord, name, err)
		}
		delete(fields, name)
	}

	if raw, ok := fields["user_type"]; ok {
		var role string
		if err := decodeOptionalString(raw, &role); err != nil {
			return nil, fmt.Errorf("%w: field user_type: %v", ErrMalformedRecord, err)
		}
		rec.UserType = Role(role)
		delete(fields, "user_type")
	}

	if len(fields) > 0 {
		rec.Extra = fields
	}
	return rec, nil
}

func decodeID(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return "", false, nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, fmt.Errorf("%w: field id: %v", ErrMalformedRecord, err)
		}
		return s, false, nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false, fmt.Errorf("%w: field id: %v", ErrMalformedRecord, err)
		}
		return n.String(), true, nil
	}
}

func decodeOptionalString(raw json.RawMessage, dst *string) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*dst = ""
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// State is a point-in-time view of the client session store.
type State struct {
	Token   string
	User    *UserRecord
	Loading bool
}

// HasToken reports whether a bearer token is present.
func (s State) HasToken() bool { return s.Token != "" }

// HasUser reports whether a user record is present.
func (s State) HasUser() bool { return s.User != nil }
