package usecase

import (
	"context"
	"errors"
	"fmt"

	"peer-match/internal/domain/member"
	"peer-match/internal/pkg/jwt"
	"peer-match/internal/repository"
	ucauth "peer-match/internal/usecase/auth"

	"github.com/google/uuid"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

type Session struct {
	MemberID     uuid.UUID
	AccessToken  string
	RefreshToken string
}

type AuthUsecase interface {
	LoginTelegram(ctx context.Context, initData string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	IssueAccessToken(ctx context.Context, memberID uuid.UUID) (string, error)
}

type Auth struct {
	verifier *ucauth.Verifier
	members  repository.MemberRepository
	jwt      jwt.Service
}

func NewAuthUsecase(members repository.MemberRepository, verifier *ucauth.Verifier, jwtSvc jwt.Service) *Auth {
	return &Auth{verifier: verifier, members: members, jwt: jwtSvc}
}

// LoginTelegram resolves a signed Telegram payload to a member, creating the member on first
// sign-in, and issues a session.
func (u *Auth) LoginTelegram(ctx context.Context, initData string) (Session, error) {
	if u.verifier == nil {
		return Session{}, ErrUnauthorized
	}

	tu, err := u.verifier.Verify(initData)
	if err != nil {
		if errors.Is(err, ucauth.ErrInvalidInput) {
			return Session{}, ErrInvalidInput
		}
		return Session{}, ErrUnauthorized
	}

	id, err := u.members.UpsertTelegramUser(ctx, member.Profile{
		MessagingAddress: tu.ID,
		FirstName:        tu.FirstName,
		LastName:         tu.LastName,
		Username:         tu.Username,
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: upsert member: %w", ErrDependency, err)
	}

	return u.issue(id, tu.ID)
}

func (u *Auth) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrUnauthorized
	}

	claims, err := u.jwt.ValidateToken(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrRefreshTokenExpired
		}
		return Session{}, ErrInvalidRefreshToken
	}
	if !u.jwt.IsRefreshToken(claims) || claims.TokenType != jwt.TokenTypeRefresh {
		return Session{}, ErrInvalidRefreshToken
	}

	p, err := u.profile(ctx, claims.MemberID)
	if err != nil {
		return Session{}, err
	}
	return u.issue(p.ID, p.MessagingAddress)
}

// IssueAccessToken mints an access token for an existing member.
func (u *Auth) IssueAccessToken(ctx context.Context, memberID uuid.UUID) (string, error) {
	p, err := u.profile(ctx, memberID)
	if err != nil {
		return "", err
	}
	tok, err := u.jwt.GenerateAccessToken(p.ID, p.MessagingAddress)
	if err != nil {
		return "", ErrInternal
	}
	return tok, nil
}

func (u *Auth) profile(ctx context.Context, memberID uuid.UUID) (member.Profile, error) {
	if memberID == uuid.Nil {
		return member.Profile{}, ErrUnauthorized
	}
	profiles, err := u.members.FindProfiles(ctx, []uuid.UUID{memberID})
	if err != nil {
		return member.Profile{}, fmt.Errorf("%w: load member: %w", ErrDependency, err)
	}
	p, ok := profiles[memberID]
	if !ok {
		return member.Profile{}, ErrUnauthorized
	}
	return p, nil
}

func (u *Auth) issue(memberID uuid.UUID, telegramID int64) (Session, error) {
	access, err := u.jwt.GenerateAccessToken(memberID, telegramID)
	if err != nil {
		return Session{}, ErrInternal
	}
	refresh, err := u.jwt.GenerateRefreshToken(memberID)
	if err != nil {
		return Session{}, ErrInternal
	}
	return Session{MemberID: memberID, AccessToken: access, RefreshToken: refresh}, nil
}
