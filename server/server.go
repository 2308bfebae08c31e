package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/velaline/booking-agent/agent/contract"
	enginex "github.com/velaline/booking-agent/agent/engine"
)

type Config struct {
	Addr        string        `envconfig:"ADDR" split_words:"true" default:":8080"`
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"90s"`
}

// Server is the thin HTTP entry point over the engine. One route per
// engine operation; everything conversational lives behind HandleTurn.
type Server struct {
	app    *fiber.App
	engine *enginex.Engine
	addr   string
}

type messageRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type messageResponse struct {
	Reply string `json:"reply"`
}

func New(engine *enginex.Engine, cfg Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:    app,
		engine: engine,
		addr:   cfg.Addr,
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Post("/sessions/:sessionID/messages", s.handleMessage)
	app.Post("/sessions/:sessionID/reset", s.handleReset)

	return s, nil
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("sessionID"))

	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	reply, err := s.engine.HandleTurn(c.Context(), sessionID, contractx.ParseRole(req.Role), req.Text)
	if err != nil {
		if errors.Is(err, enginex.ErrInvalidSession) || errors.Is(err, enginex.ErrInvalidMessage) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("turn failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "turn failed"})
	}

	return c.JSON(messageResponse{Reply: reply})
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("sessionID"))

	if _, err := s.engine.ResetSession(c.Context(), sessionID); err != nil {
		if errors.Is(err, enginex.ErrInvalidSession) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("reset failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reset failed"})
	}

	return c.JSON(fiber.Map{"reset": true})
}

func (s *Server) Listen() error {
	log.Info().Str("addr", s.addr).Msg("booking agent listening")
	return s.app.Listen(s.addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
