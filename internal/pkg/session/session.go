package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
)

// Settings is a key value storage
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Store keeps the backend auth cookie
type Store struct {
	settings Settings
}

// NewStore creates session store
func NewStore(settings Settings) (*Store, error) {
	if settings == nil {
		return nil, fmt.Errorf("no settings")
	}
	return &Store{settings: settings}, nil
}

// Cookie returns the cookie or utils.ErrLoginExpired if there is no session
func (s *Store) Cookie(ctx context.Context) (string, error) {
	res, err := s.settings.GetSetting(ctx, persistence.KeyAuthCookie)
	if err != nil {
		return "", err
	}
	if res == "" {
		return "", utils.ErrLoginExpired
	}
	return res, nil
}

// Set saves a new cookie
func (s *Store) Set(ctx context.Context, cookie string) error {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return fmt.Errorf("empty cookie")
	}
	goapp.Log.Info().Msg("session set")
	return s.settings.SetSetting(ctx, persistence.KeyAuthCookie, cookie)
}

// Clear drops the cookie
func (s *Store) Clear(ctx context.Context) error {
	goapp.Log.Info().Msg("session cleared")
	return s.settings.DeleteSetting(ctx, persistence.KeyAuthCookie)
}
