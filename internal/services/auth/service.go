// Package auth implements registration and session management. Signing
// up is the only place a user, their custodial wallet and their
// referral node are created, and all three commit atomically.
package auth

import (
	"errors"
	"fmt"

	"veyra/internal/models"
	"veyra/internal/repositories"
	"veyra/internal/services/referral"
	"veyra/internal/services/wallet"
	"veyra/internal/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Service is the authentication API.
type Service interface {
	// Register creates the user with their wallet and referral node.
	// A valid referral code is mandatory; only seed accounts are
	// created without one, through admin tooling.
	Register(email, password, referralCode string) (*models.User, string, string, error)

	Login(email, password string) (*models.User, string, string, error)
	RefreshTokens(refreshToken string) (string, string, error)
	Logout(userID uint) error

	GetUserByID(id uint) (*models.User, error)
	GetUserTokenVersion(id uint) (int, error)
}

type service struct {
	store     repositories.Store
	wallets   wallet.Service
	referrals referral.Service
}

// NewService creates an auth service.
func NewService(store repositories.Store, wallets wallet.Service, referrals referral.Service) Service {
	if store == nil {
		panic("store is required")
	}
	if wallets == nil {
		panic("wallet service is required")
	}
	if referrals == nil {
		panic("referral service is required")
	}
	return &service{store: store, wallets: wallets, referrals: referrals}
}

func (s *service) Register(email, password, referralCode string) (*models.User, string, string, error) {
	if email == "" {
		return nil, "", "", errors.New("email is required")
	}
	if len(password) < minPasswordLength {
		return nil, "", "", ErrWeakPassword
	}
	if referralCode == "" {
		return nil, "", "", referral.ErrInvalidReferralCode
	}

	if _, err := s.store.Users().GetByEmail(email); err == nil {
		return nil, "", "", ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, "", "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to hash password: %w", err)
	}

	var user *models.User
	err = s.store.ExecuteInTransaction(func(st repositories.Store) error {
		user = &models.User{
			Email:        email,
			Password:     string(hashed),
			Name:         email,
			Role:         "user",
			TokenVersion: 1,
		}
		if err := st.Users().Create(user); err != nil {
			return err
		}
		if _, err := s.wallets.CreateWallet(st, user.ID); err != nil {
			return err
		}
		_, err := s.referrals.Register(st, user.ID, referralCode)
		return err
	})
	if err != nil {
		return nil, "", "", err
	}

	logrus.WithFields(logrus.Fields{"user": user.ID}).Info("user registered")

	access, refresh, err := s.issueTokens(user)
	if err != nil {
		return nil, "", "", err
	}
	return user, access, refresh, nil
}

func (s *service) Login(email, password string) (*models.User, string, string, error) {
	user, err := s.store.Users().GetByEmail(email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, "", "", ErrInvalidCredentials
		}
		return nil, "", "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logrus.WithField("user", user.ID).Warn("login with wrong password")
		return nil, "", "", ErrInvalidCredentials
	}

	access, refresh, err := s.issueTokens(user)
	if err != nil {
		return nil, "", "", err
	}
	return user, access, refresh, nil
}

func (s *service) RefreshTokens(refreshToken string) (string, string, error) {
	_, claims, err := utils.ParseToken(refreshToken)
	if err != nil {
		return "", "", ErrInvalidToken
	}

	user, err := s.store.Users().GetByID(claims.UserID)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	if user.TokenVersion != claims.TokenVersion {
		return "", "", ErrInvalidToken
	}

	return s.issueTokens(user)
}

func (s *service) Logout(userID uint) error {
	return s.store.Users().IncrementTokenVersion(userID)
}

func (s *service) GetUserByID(id uint) (*models.User, error) {
	return s.store.Users().GetByID(id)
}

func (s *service) GetUserTokenVersion(id uint) (int, error) {
	user, err := s.store.Users().GetByID(id)
	if err != nil {
		return 0, err
	}
	return user.TokenVersion, nil
}

func (s *service) issueTokens(user *models.User) (string, string, error) {
	return utils.GenerateTokens(&models.UserClaims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
	})
}
