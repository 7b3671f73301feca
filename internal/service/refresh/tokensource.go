package refresh

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/nkiryanov/authsession/internal/models"
	"github.com/nkiryanov/authsession/internal/tokenmanager"
)

type tokenSource struct {
	ctx context.Context
	c   *Coordinator
	now func() time.Time
}

// TokenSource exposes the session to oauth2 aware clients
// Expired or missing access token is renewed through the coordinator
func (c *Coordinator) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, c: c, now: time.Now}
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	access, ok := s.c.store.AccessToken(s.ctx)
	if !ok || tokenmanager.IsExpired(access, s.now()) {
		var err error
		access, err = s.c.Refresh(s.ctx, access)
		if err != nil {
			return nil, err
		}
	}

	token := &oauth2.Token{
		AccessToken: access,
		TokenType:   models.TokenTypeBearer,
	}
	if exp, err := tokenmanager.ExpiresAt(access); err == nil {
		token.Expiry = exp
	}

	return token, nil
}
