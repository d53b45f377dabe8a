package models

// Team is a team affiliation as returned by the API.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is the identity record held by a session.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	IsAdmin     bool   `json:"isAdmin"`
	IsManager   bool   `json:"isManager"`
	ManagedTeam *Team  `json:"managedTeam,omitempty"`
	Teams       []Team `json:"teams,omitempty"`
}

// Normalize returns a copy with IsManager set when the user manages a team.
func (u User) Normalize() User {
	if u.ManagedTeam != nil && u.ManagedTeam.ID != "" {
		u.IsManager = true
	}
	if u.Teams != nil {
		u.Teams = append([]Team(nil), u.Teams...)
	}
	if u.ManagedTeam != nil {
		t := *u.ManagedTeam
		u.ManagedTeam = &t
	}
	return u
}

// Name is "First Last", falling back to the email.
func (u User) Name() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	}
	return u.Email
}
