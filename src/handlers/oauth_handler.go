package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/username/fundfolio/backend/src/config"
	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/model"
	"github.com/username/fundfolio/backend/src/utils"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var googleOauthConfig *oauth2.Config

// InitializeGoogleOAuthConfig must be called after config.LoadConfig.
func InitializeGoogleOAuthConfig() {
	googleOauthConfig = &oauth2.Config{
		ClientID:     config.Cfg.GoogleClientID,
		ClientSecret: config.Cfg.GoogleClientSecret,
		RedirectURL:  config.Cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// HandleGoogleLogin starts the OAuth flow. The state value is stored in
// a short-lived cookie and checked on callback.
func (h *UserHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if googleOauthConfig == nil || googleOauthConfig.ClientID == "" {
		utils.SendJSONError(w, "Google sign-in is not configured", http.StatusServiceUnavailable)
		return
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		utils.SendJSONError(w, "Failed to start OAuth flow", http.StatusInternalServerError)
		return
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	url := googleOauthConfig.AuthCodeURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *UserHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || r.URL.Query().Get("state") != stateCookie.Value {
		logger.L.Warn("OAuth callback with invalid state")
		utils.SendJSONError(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		utils.SendJSONError(w, "Authorization code missing", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	token, err := googleOauthConfig.Exchange(ctx, code)
	if err != nil {
		logger.L.Error("OAuth code exchange failed", "error", err)
		utils.SendJSONError(w, "Failed to exchange authorization code", http.StatusBadGateway)
		return
	}

	userInfo, err := fetchGoogleUserInfo(ctx, token)
	if err != nil {
		logger.L.Error("Failed to fetch Google user info", "error", err)
		utils.SendJSONError(w, "Failed to fetch user profile", http.StatusBadGateway)
		return
	}
	if !userInfo.VerifiedEmail {
		utils.SendJSONError(w, "Google account email is not verified", http.StatusForbidden)
		return
	}

	user, err := findOrCreateGoogleUser(userInfo)
	if err != nil {
		logger.L.Error("Failed to resolve Google user", "email", userInfo.Email, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
		return
	}

	accessToken, refreshToken, err := h.issueSession(user, r)
	if err != nil {
		logger.L.Error("OAuth: failed to issue session", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	redirectURL := fmt.Sprintf("%s/auth/callback?access_token=%s&refresh_token=%s",
		strings.TrimRight(config.Cfg.FrontendBaseURL, "/"), accessToken, refreshToken)
	http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
}

func fetchGoogleUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := googleOauthConfig.Client(ctx, token)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request returned status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	return &info, nil
}

func findOrCreateGoogleUser(info *googleUserInfo) (*model.User, error) {
	email := strings.ToLower(info.Email)

	user, err := model.GetUserByEmail(database.DB, email)
	if err == nil {
		if user.AuthProvider != "google" {
			return nil, fmt.Errorf("an account with this email already exists; sign in with your password")
		}
		return user, nil
	}

	username := info.Name
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}

	user = &model.User{
		Username:        username,
		Email:           email,
		Password:        "",
		AuthProvider:    "google",
		IsEmailVerified: true,
	}
	if err := user.CreateUser(database.DB); err != nil {
		// Username collisions get a suffix derived from the Google ID.
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			suffix := info.ID
			if len(suffix) > 6 {
				suffix = suffix[len(suffix)-6:]
			}
			user.Username = fmt.Sprintf("%s_%s", username, suffix)
			if retryErr := user.CreateUser(database.DB); retryErr == nil {
				return user, nil
			}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}
