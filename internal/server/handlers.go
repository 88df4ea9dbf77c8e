package server

import (
	"log"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"prepdeck/internal/auth"
	"prepdeck/internal/domain"
	"prepdeck/internal/storage"
	"prepdeck/internal/usecase"
)

const promptPreviewLimit = 120

func (h *handlers) test(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "API is working"})
}

func (h *handlers) health(c *fiber.Ctx) error {
	if h.deps.Oracle == nil || !h.deps.Oracle.Configured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "GEMINI_KEY not configured",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type evalRequest struct {
	Prompt string `json:"prompt"`
}

func (h *handlers) eval(c *fiber.Ctx) error {
	var req evalRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing prompt in request")
	}
	if h.deps.Oracle == nil || !h.deps.Oracle.Configured() {
		return domain.ErrMissingCredential
	}

	log.Printf("proxy: prompt %q", promptPreview(req.Prompt))
	text, err := h.deps.Oracle.Complete(c.UserContext(), req.Prompt)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"text": text})
}

func promptPreview(prompt string) string {
	flat := strings.ReplaceAll(prompt, "\n", " ")
	runes := []rune(flat)
	if len(runes) <= promptPreviewLimit {
		return flat
	}
	return string(runes[:promptPreviewLimit]) + "..."
}

func (h *handlers) metrics(c *fiber.Ctx) error {
	if h.deps.Metrics == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(h.deps.Metrics.GetSnapshot())
}

func (h *handlers) companies(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"companies": h.deps.Catalog.CompanyIDs(),
		"roles":     h.deps.Catalog.Roles,
		"levels":    h.deps.Catalog.Levels,
	})
}

func (h *handlers) company(c *fiber.Ctx) error {
	company, ok := h.deps.Catalog.Company(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "company not found")
	}
	return c.JSON(company)
}

type aptitudeRequest struct {
	Choice int `json:"choice"`
}

func (h *handlers) checkAptitude(c *fiber.Ctx) error {
	index, err := c.ParamsInt("index")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "aptitude index must be a number")
	}
	var req aptitudeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	correct, err := h.deps.Catalog.CheckAptitude(c.Params("id"), index, req.Choice)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"correct": correct})
}

func (h *handlers) signup(c *fiber.Ctx) error {
	var req auth.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	session, err := h.deps.Auth.Signup(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Account created successfully!",
		"user":    session.User,
		"token":   session.Token,
	})
}

func (h *handlers) login(c *fiber.Ctx) error {
	var req auth.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	session, err := h.deps.Auth.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Logged in successfully!",
		"user":    session.User,
		"token":   session.Token,
	})
}

func (h *handlers) me(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	user, err := h.deps.Auth.Me(c.UserContext(), claims)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": user})
}

// claimsOf reads the claims the jwt middleware stored on the request.
func claimsOf(c *fiber.Ctx) (*auth.Claims, error) {
	token, _ := c.Locals("user").(*jwt.Token)
	return auth.ClaimsFromToken(token)
}

func (h *handlers) startInterview(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	var setup domain.InterviewSetup
	if err := c.BodyParser(&setup); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	session, err := h.deps.Hosted.Start(c.UserContext(), claims.Subject, setup)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     session.ID,
		"status": session.Interview.Status(),
	})
}

func (h *handlers) session(c *fiber.Ctx) (*HostedSession, error) {
	claims, err := claimsOf(c)
	if err != nil {
		return nil, err
	}
	return h.deps.Hosted.Get(claims.Subject, c.Params("id"))
}

func (h *handlers) interviewStatus(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(session.Interview.Status())
}

func (h *handlers) interviewAction(action func(*usecase.Interview) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := h.session(c)
		if err != nil {
			return err
		}
		if err := action(session.Interview); err != nil {
			return err
		}
		return c.JSON(session.Interview.Status())
	}
}

type endRequest struct {
	Reason string `json:"reason"`
}

func (h *handlers) endInterview(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req endRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	return c.JSON(session.Interview.End(req.Reason))
}

type answerRequest struct {
	Text string `json:"text"`
}

func (h *handlers) submitAnswer(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req answerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	record, err := session.Interview.SubmitAnswer(c.UserContext(), req.Text)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"answer": record,
		"status": session.Interview.Status(),
	})
}

type followUpRequest struct {
	Answer string `json:"answer"`
}

func (h *handlers) followUp(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req followUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	question, err := session.Interview.FollowUp(c.UserContext(), req.Answer)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"question": question})
}

func (h *handlers) listAnswers(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	records, err := h.deps.Answers(claims.Subject).List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"answers": records})
}

func (h *handlers) deleteAnswer(c *fiber.Ctx) error {
	claims, err := claimsOf(c)
	if err != nil {
		return err
	}
	raw, err := url.PathUnescape(c.Params("key"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed answer key")
	}
	key, err := storage.ParseRecordKey(raw)
	if err != nil {
		return err
	}
	if err := h.deps.Answers(claims.Subject).Delete(c.UserContext(), key); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
