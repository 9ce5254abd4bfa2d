package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil && s.deps.Login.Tokens != nil
}

func (s Service) Login(ctx context.Context, email, password string) LoginResult {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, subjectID, accessToken string) LogoutResult {
	return RunLogout(ctx, subjectID, accessToken, s.deps.Logout)
}

func (s Service) LogoutByAccessToken(ctx context.Context, accessToken string) LogoutResult {
	return RunLogoutByAccessToken(ctx, accessToken, s.deps.Logout)
}

func (s Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) PasswordResult {
	return RunChangePassword(ctx, req, s.deps.Password)
}

func (s Service) Validate(ctx context.Context, tokenStr string, checkBlacklist bool) ValidateResult {
	return RunValidate(ctx, tokenStr, checkBlacklist, s.deps.Validate)
}
