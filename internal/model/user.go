package model

// User mirrors the users table.  Identity and credentials live with the
// external auth provider; only the display fields needed for license
// records are kept here.  ID is the provider's subject.
type User struct {
	ID        string // users.id
	Email     string // users.email
	Name      string // users.name
	FirstName string // users.first_name
}

// DisplayName returns the best available name for the user, or "" when
// neither name column is populated.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.FirstName
}
