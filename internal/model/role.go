package model

// Role is chosen once per session and only used for pairing and display.
type Role string

const (
	RoleCaretaker  Role = "caretaker"
	RoleHelpSeeker Role = "helpseeker"
)

func (r Role) Valid() bool {
	return r == RoleCaretaker || r == RoleHelpSeeker
}
