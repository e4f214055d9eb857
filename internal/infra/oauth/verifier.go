package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/core/domain"
	"github.com/courtbook/identity-service/internal/core/port"
	"github.com/courtbook/identity-service/internal/infra/config"
)

// ErrProviderRejected reports that the provider did not accept the presented token.
var ErrProviderRejected = errors.New("provider rejected token")

const (
	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	facebookGraphURL   = "https://graph.facebook.com/v19.0"
)

// Verifier validates Google and Facebook identity tokens against the
// provider endpoints and returns the asserted identity.
type Verifier struct {
	cfg    config.SocialSettings
	client *http.Client
	logger *zap.Logger

	googleURL   string
	facebookURL string
}

// NewVerifier constructs a provider token verifier.
func NewVerifier(cfg config.SocialSettings, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		cfg:         cfg,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      log,
		googleURL:   googleTokenInfoURL,
		facebookURL: facebookGraphURL,
	}
}

// Verify implements port.ProviderVerifier.
func (v *Verifier) Verify(ctx context.Context, provider domain.AuthProvider, idToken string) (*port.ProviderIdentity, error) {
	switch provider {
	case domain.AuthProviderGoogle:
		return v.verifyGoogle(ctx, idToken)
	case domain.AuthProviderFacebook:
		return v.verifyFacebook(ctx, idToken)
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

type googleTokenInfo struct {
	Subject       string `json:"sub"`
	Audience      string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
}

func (v *Verifier) verifyGoogle(ctx context.Context, idToken string) (*port.ProviderIdentity, error) {
	endpoint := v.googleURL + "?id_token=" + url.QueryEscape(idToken)

	var info googleTokenInfo
	if err := v.fetchJSON(ctx, endpoint, &info); err != nil {
		return nil, err
	}

	if v.cfg.GoogleClientID != "" && info.Audience != v.cfg.GoogleClientID {
		v.logger.Warn("google token audience mismatch", zap.String("aud", info.Audience))
		return nil, ErrProviderRejected
	}
	if info.Subject == "" || info.EmailVerified != "true" {
		return nil, ErrProviderRejected
	}

	return &port.ProviderIdentity{
		Provider:   domain.AuthProviderGoogle,
		ProviderID: info.Subject,
		Email:      info.Email,
		FullName:   info.Name,
	}, nil
}

type facebookDebugToken struct {
	Data struct {
		AppID   string `json:"app_id"`
		IsValid bool   `json:"is_valid"`
		UserID  string `json:"user_id"`
	} `json:"data"`
}

type facebookProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (v *Verifier) verifyFacebook(ctx context.Context, accessToken string) (*port.ProviderIdentity, error) {
	appToken := v.cfg.FacebookAppID + "|" + v.cfg.FacebookAppSecret
	debugURL := fmt.Sprintf("%s/debug_token?input_token=%s&access_token=%s",
		v.facebookURL, url.QueryEscape(accessToken), url.QueryEscape(appToken))

	var debug facebookDebugToken
	if err := v.fetchJSON(ctx, debugURL, &debug); err != nil {
		return nil, err
	}
	if !debug.Data.IsValid || debug.Data.UserID == "" {
		return nil, ErrProviderRejected
	}
	if v.cfg.FacebookAppID != "" && debug.Data.AppID != v.cfg.FacebookAppID {
		v.logger.Warn("facebook token app mismatch", zap.String("app_id", debug.Data.AppID))
		return nil, ErrProviderRejected
	}

	profileURL := fmt.Sprintf("%s/me?fields=id,name,email&access_token=%s",
		v.facebookURL, url.QueryEscape(accessToken))

	var profile facebookProfile
	if err := v.fetchJSON(ctx, profileURL, &profile); err != nil {
		return nil, err
	}

	return &port.ProviderIdentity{
		Provider:   domain.AuthProviderFacebook,
		ProviderID: profile.ID,
		Email:      profile.Email,
		FullName:   profile.Name,
	}, nil
}

func (v *Verifier) fetchJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
