package controllers

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/TobiasKell/NoteMorph/app/models"
	"github.com/TobiasKell/NoteMorph/internal/pkg/database"
	"github.com/TobiasKell/NoteMorph/internal/pkg/env"
	"github.com/TobiasKell/NoteMorph/internal/pkg/hcaptcha"
	"github.com/TobiasKell/NoteMorph/internal/pkg/mail"
	"github.com/TobiasKell/NoteMorph/internal/pkg/session"
	"github.com/TobiasKell/NoteMorph/internal/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type activateRequest struct {
	Token string `json:"token"`
}

// HandleAuthRegister creates an inactive user account and sends the
// activation email. Captcha verification only runs when a secret is
// configured.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "request body could not be parsed")
	}

	if hcaptcha.Enabled() {
		if ok, err := hcaptcha.Verify(req.CaptchaToken); !ok {
			log.Printf("auth: captcha verification failed: %v", err)
			return jsonError(c, fiber.StatusBadRequest, "captcha_failed", "captcha verification failed")
		}
	}

	user, err := models.CreateUser(req.Name, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_user", err.Error())
	}
	if err := user.GenerateActivationToken(); err != nil {
		log.Printf("auth: activation token generation failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "registration_failed", "registration failed, please try again")
	}

	if err := database.GetDB().Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return jsonError(c, fiber.StatusConflict, "email_taken", "an account with this email already exists")
		}
		log.Printf("auth: user creation failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "registration_failed", "registration failed, please try again")
	}

	sendActivationMail(user)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": user.ID, "email": user.Email})
}

// sendActivationMail delivers the activation link best-effort; a mail outage
// must not fail the registration.
func sendActivationMail(user *models.User) {
	baseURL := env.GetEnv("PUBLIC_URL", "http://localhost:4000")
	link := fmt.Sprintf("%s/activate?token=%s", baseURL, user.ActivationToken)
	body := fmt.Sprintf("<p>Hi %s,</p><p>please activate your NoteMorph account:</p><p><a href=\"%s\">%s</a></p>",
		user.Name, link, link)
	if err := mail.SendMail(user.Email, "Activate your NoteMorph account", body); err != nil {
		log.Printf("auth: activation mail to %s failed: %v", user.Email, err)
	}
}

// HandleAuthActivate flips an inactive account to active when the token matches.
func HandleAuthActivate(c *fiber.Ctx) error {
	var req activateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "request body could not be parsed")
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_token", "activation token is missing")
	}

	var user models.User
	if err := database.GetDB().Where("activation_token = ?", token).First(&user).Error; err != nil {
		return jsonError(c, fiber.StatusNotFound, "invalid_token", "activation token is unknown")
	}
	if user.IsActive() {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}

	updates := map[string]interface{}{"status": models.STATUS_ACTIVE, "activation_token": ""}
	if err := database.GetDB().Model(&user).Updates(updates).Error; err != nil {
		log.Printf("auth: activation failed for user %d: %v", user.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "activation_failed", "activation failed, please try again")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleAuthLogin verifies credentials and establishes the session.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "request body could not be parsed")
	}

	var user models.User
	// notice: in production you should not inform the user
	// with detailed messages about login failures
	if err := database.GetDB().Where("email = ?", strings.TrimSpace(req.Email)).First(&user).Error; err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "login_failed", "there is a problem with the login process")
	}
	if !user.CheckPassword(req.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "login_failed", "there is a problem with the login process")
	}
	if !user.IsActive() {
		return jsonError(c, fiber.StatusForbidden, "account_inactive", "account is not active")
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		log.Printf("auth: session load failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "session_failed", "session could not be created")
	}
	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, user.ID)
	sess.Set(USER_NAME, user.Name)
	sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)
	if err := sess.Save(); err != nil {
		log.Printf("auth: session save failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "session_failed", "session could not be saved")
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := database.GetDB().Model(&user).Update("last_login_at", &now).Error; err != nil {
		log.Printf("auth: updating last login failed for user %d: %v", user.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":         user.ID,
		"name":       user.Name,
		"avatar_url": utils.GetGravatarURL(user.Email, 80),
	})
}

// HandleAuthLogout destroys the session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		_ = sess.Destroy()
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
