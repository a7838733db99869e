package directory

// Role classifies platform accounts.
type Role string

const (
	RolePatient       Role = "patient"
	RoleDoctor        Role = "doctor"
	RoleVirtualDoctor Role = "virtual_doctor"
	RoleAdmin         Role = "admin"
)

// User is the platform account record. The appointment core reads users but
// never mutates them, except for clearing a dead push token.
type User struct {
	ID                   int64
	Name                 string
	Email                string
	Phone                string
	Role                 Role
	PushToken            string
	NotificationsEnabled bool
}

// Doctor is a doctor profile with its daily working window as wall-clock
// "HH:MM" strings.
type Doctor struct {
	ID        int64
	UserID    int64
	Approved  bool
	StartTime string
	EndTime   string
}

// VirtualSettings is the admin-authored working window for the virtual pool.
// The most recent active record wins.
type VirtualSettings struct {
	ID        int64
	StartTime string
	EndTime   string
	Active    bool
}
