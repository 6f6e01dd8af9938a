package handlers

import (
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/auth"
	"github.com/surveyforge/surveyforge/config"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/httpx"
	"github.com/surveyforge/surveyforge/models"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	if _, err := auth.GetUserByEmail(req.Email); err == nil {
		httpx.ValidationFailed(w, map[string]string{"email": "already registered"})
		return
	}

	user, err := auth.CreateUser(req.Email, req.Name, req.Password)
	if err != nil {
		httpx.Internal(w, "auth.register", err, logrus.Fields{"email": req.Email})
		return
	}

	httpx.JSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func LoginHandlerEmail(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	user, err := auth.GetUserByEmail(req.Email)
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		httpx.Unauthorized(w, "invalid credentials")
		return
	}

	if err := startSession(w, r, user.ID); err != nil {
		httpx.Internal(w, "auth.session", err, logrus.Fields{"email": req.Email})
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"message": "login successful"})
}

func LoginHandler(w http.ResponseWriter, r *http.Request) {
	if config.GoogleOauthConfig.ClientID == "" || config.GoogleOauthConfig.ClientSecret == "" {
		httpx.Error(w, http.StatusInternalServerError, "oauth is not configured")
		return
	}

	state := config.GenerateStateOauthCookie(w)
	http.Redirect(w, r, config.GoogleOauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func GoogleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if err := config.VerifyStateOauthCookie(r); err != nil {
		httpx.BadRequest(w, "invalid oauth state")
		return
	}

	token, err := config.GoogleOauthConfig.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		httpx.Internal(w, "auth.oauth_exchange", err, nil)
		return
	}

	user, err := auth.GetGoogleUserInfo(token.AccessToken)
	if err != nil {
		httpx.Internal(w, "auth.oauth_userinfo", err, nil)
		return
	}
	if err := auth.CreateOrUpdateUser(user); err != nil {
		httpx.Internal(w, "auth.oauth_upsert", err, logrus.Fields{"email": user.Email})
		return
	}

	if err := startSession(w, r, user.ID); err != nil {
		httpx.Internal(w, "auth.session", err, logrus.Fields{"email": user.Email})
		return
	}

	http.Redirect(w, r, frontendURL()+"/dashboard", http.StatusSeeOther)
}

func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w, r)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)

	var user models.User
	if err := db.DB.First(&user, userID).Error; err != nil {
		httpx.NotFound(w, "user not found")
		return
	}

	httpx.JSON(w, http.StatusOK, user)
}

func startSession(w http.ResponseWriter, r *http.Request, userID uint) error {
	session, err := auth.Store.New(r, "session-name")
	if err != nil {
		return err
	}
	session.Values["authenticated"] = true
	session.Values["user_id"] = userID
	return session.Save(r, w)
}

func frontendURL() string {
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		return v
	}
	return "http://localhost:3000"
}
