package rest

type RegisterIn struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"` // manager|user, defaults to user
}

type LoginIn struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateTaskIn struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Type           string `json:"type,omitempty"` // specific|general
	AssignedUserID string `json:"assignedUserId,omitempty"`
}

type PatchTaskIn struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"` // todo|in_progress|done
}
