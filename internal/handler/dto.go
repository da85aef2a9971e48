package handler

import (
	"time"

	"github.com/iliyamo/contacts-auth/internal/model"
	"github.com/iliyamo/contacts-auth/internal/service"
)

type userResponse struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	Confirmed bool       `json:"confirmed"`
	CreatedAt time.Time  `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Confirmed: u.Confirmed,
		CreatedAt: u.CreatedAt,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func toTokenResponse(p service.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.Access.Token,
		RefreshToken: p.Refresh.Token,
		TokenType:    "bearer",
	}
}
