package server

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/veilarc/ragfence/internal/models"
	"github.com/veilarc/ragfence/internal/types"
	"github.com/veilarc/ragfence/pkg/auth"
	"github.com/veilarc/ragfence/pkg/extract"
	"github.com/veilarc/ragfence/pkg/ingest"
	"github.com/veilarc/ragfence/pkg/query"
	"go.uber.org/zap"
)

type Config struct {
	Port        int
	MaxUploadMB int
}

// Server exposes the HTTP surface: login, document upload, scoped chat,
// and the audit trail. Every data route runs behind the bearer-token
// middleware; handlers read the verified identity from locals and never
// from the request body.
type Server struct {
	config    Config
	app       *fiber.App
	validate  *validator.Validate
	auth      *auth.Service
	pipeline  *ingest.Pipeline
	queries   *query.Service
	extractor *extract.URLExtractor
	audits    types.AuditRecorder
	log       *zap.Logger
}

func New(
	config Config,
	authSvc *auth.Service,
	pipeline *ingest.Pipeline,
	queries *query.Service,
	extractor *extract.URLExtractor,
	audits types.AuditRecorder,
	log *zap.Logger,
) *Server {
	if config.MaxUploadMB == 0 {
		config.MaxUploadMB = 15
	}
	app := fiber.New(fiber.Config{
		BodyLimit:             config.MaxUploadMB * 1024 * 1024,
		DisableStartupMessage: true,
	})

	s := &Server{
		config:    config,
		app:       app,
		validate:  validator.New(),
		auth:      authSvc,
		pipeline:  pipeline,
		queries:   queries,
		extractor: extractor,
		audits:    audits,
		log:       log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Post("/auth/login", s.handleLogin)

	api := s.app.Group("/", s.requireIdentity)
	api.Post("/documents/upload_pdf", s.handleUploadPDF)
	api.Post("/documents/upload_url", s.handleUploadURL)
	api.Post("/chat/query", s.handleQuery)
	api.Get("/audit", s.handleAudit)
}

func (s *Server) Listen() error {
	return s.app.Listen(fmt.Sprintf(":%d", s.config.Port))
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// requireIdentity verifies the bearer token and stashes the resulting
// identity for the handlers downstream.
func (s *Server) requireIdentity(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	identity, err := s.auth.Verify(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	c.Locals("identity", identity)
	return c.Next()
}

func identityFrom(c *fiber.Ctx) models.Identity {
	identity, _ := c.Locals("identity").(models.Identity)
	return identity
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	token, err := s.auth.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return fiber.NewError(fiber.StatusUnauthorized, "bad username or password")
		}
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleUploadPDF(c *fiber.Ctx) error {
	identity := identityFrom(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable file")
	}

	title := c.FormValue("title")
	if title == "" {
		title = fileHeader.Filename
	}
	allowedUsers, err := parseUserIDs(c.FormValue("allowed_users"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "allowed_users must be numeric ids")
	}

	result, err := s.pipeline.Ingest(c.Context(), identity, ingest.Request{
		Title:         title,
		RolesAllowed:  splitList(c.FormValue("roles_allowed")),
		SourceType:    "pdf",
		SourceValue:   fileHeader.Filename,
		RawText:       extract.PDFText(data),
		SensitiveFlag: c.FormValue("sensitive") == "true",
		AllowedUsers:  allowedUsers,
		AllowedGroups: splitList(c.FormValue("allowed_groups")),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"doc_id": result.DocID, "chunks_indexed": result.ChunksIndexed})
}

type uploadURLRequest struct {
	Title         string   `json:"title" validate:"required"`
	URL           string   `json:"url" validate:"required,url"`
	RolesAllowed  []string `json:"roles_allowed"`
	Sensitive     bool     `json:"sensitive"`
	AllowedUsers  []int64  `json:"allowed_users"`
	AllowedGroups []string `json:"allowed_groups"`
}

func (s *Server) handleUploadURL(c *fiber.Ctx) error {
	identity := identityFrom(c)

	var req uploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	text, err := s.extractor.Extract(c.Context(), req.URL)
	if err != nil {
		return s.fail(c, err)
	}

	result, err := s.pipeline.Ingest(c.Context(), identity, ingest.Request{
		Title:         req.Title,
		RolesAllowed:  req.RolesAllowed,
		SourceType:    "url",
		SourceValue:   req.URL,
		RawText:       text,
		SensitiveFlag: req.Sensitive,
		AllowedUsers:  req.AllowedUsers,
		AllowedGroups: req.AllowedGroups,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"doc_id": result.DocID, "chunks_indexed": result.ChunksIndexed})
}

type queryRequest struct {
	Question string `json:"question" validate:"required"`
}

func (s *Server) handleQuery(c *fiber.Ctx) error {
	identity := identityFrom(c)

	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	resp, err := s.queries.Answer(c.Context(), identity, req.Question)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}

func (s *Server) handleAudit(c *fiber.Ctx) error {
	identity := identityFrom(c)
	if !identity.IsAdmin() {
		return fiber.NewError(fiber.StatusForbidden, "admin only")
	}

	limit := c.QueryInt("limit", 50)
	events, err := s.audits.List(c.Context(), identity.TenantID, limit)
	if err != nil {
		return s.fail(c, err)
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	return c.JSON(fiber.Map{"events": events})
}

// fail maps domain errors to HTTP statuses and logs the rest.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ingest.ErrEmptyContent):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "document has no content")
	case errors.Is(err, extract.ErrExtractionFailed):
		return fiber.NewError(fiber.StatusBadGateway, "source extraction failed")
	}
	s.log.Error("request failed",
		zap.String("path", c.Path()),
		zap.Error(err))
	return fiber.NewError(fiber.StatusInternalServerError, "internal error")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseUserIDs(raw string) ([]int64, error) {
	var out []int64
	for _, part := range splitList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
