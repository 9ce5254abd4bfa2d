package httpapi

import blogAuth "github.com/MrEthical07/blogAuth"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,max=4096"`
}

// ChangePasswordRequest is the body of PUT /auth/password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required,max=1024"`
	NewPassword string `json:"newPassword" validate:"required,max=1024"`
}

// LoginResponse mirrors blogAuth.LoginResult.
type LoginResponse = blogAuth.LoginResult

// RefreshResponse mirrors blogAuth.RefreshResult.
type RefreshResponse = blogAuth.RefreshResult

// MessageResponse acknowledges requests without a payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// MeResponse is the guarded identity returned by GET /auth/me.
type MeResponse struct {
	SubjectID   string   `json:"subjectId"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}
