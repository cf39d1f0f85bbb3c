// Package mcpserver exposes school data as MCP tools so agents can query
// homework, grades, and schedules, manage authentication, and keep
// per-school memory.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/magister-tools/magctl/internal/agentctx"
	"github.com/magister-tools/magctl/internal/api"
	"github.com/magister-tools/magctl/internal/auth"
	"github.com/magister-tools/magctl/internal/config"
	"github.com/magister-tools/magctl/internal/logger"
	"github.com/magister-tools/magctl/internal/service"
	"github.com/magister-tools/magctl/internal/tracker"
)

// Server wraps the service layer and exposes it via MCP.
type Server struct {
	cfg       config.Config
	log       *logger.Logger
	session   *auth.Manager
	context   *agentctx.Store
	tracker   *tracker.Tracker
	mcpServer *server.MCPServer
	transport string
}

// NewServer creates an MCP server for one school.
func NewServer(cfg config.Config, transport string, log *logger.Logger) (*Server, error) {
	mcpServer := server.NewMCPServer(
		"magctl",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s := &Server{
		cfg:       cfg,
		log:       log,
		session:   auth.NewManager(cfg, log),
		context:   agentctx.NewStore(cfg.School, cfg.ContextDir()),
		tracker:   tracker.New(cfg.StatePath()),
		mcpServer: mcpServer,
		transport: transport,
	}

	s.registerTools()

	return s, nil
}

// Start serves MCP over stdio or streamable-http.
func (s *Server) Start(ctx context.Context, listenAddr string) error {
	switch s.transport {
	case "stdio":
		return server.ServeStdio(s.mcpServer)
	case "streamable-http":
		httpServer := server.NewStreamableHTTPServer(
			s.mcpServer,
			server.WithEndpointPath("/mcp"),
		)
		return httpServer.Start(listenAddr)
	default:
		return fmt.Errorf("unsupported server transport: %s", s.transport)
	}
}

// service authenticates non-interactively and builds the service layer.
// MCP runs headless, so the recovery chain never opens a browser here.
func (s *Server) service(ctx context.Context) (*service.Service, error) {
	token, err := s.session.EnsureAuthenticated(ctx, false)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(s.cfg.School, token.AccessToken, s.cfg.Timeout, s.log)
	return service.New(client, s.log), nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	// Homework and tests
	getHomeworkTool := mcp.NewTool("get_homework",
		mcp.WithDescription("Get upcoming homework assignments grouped by day"),
		mcp.WithNumber("days",
			mcp.Description("Number of days to look ahead (default 7)"),
		),
		mcp.WithString("subject",
			mcp.Description("Filter by subject name (case-insensitive partial match)"),
		),
		mcp.WithBoolean("include_completed",
			mcp.Description("Include homework already marked as done"),
		),
	)
	s.mcpServer.AddTool(getHomeworkTool, s.handleGetHomework)

	getUpcomingTestsTool := mcp.NewTool("get_upcoming_tests",
		mcp.WithDescription("Get upcoming tests and exams"),
		mcp.WithNumber("days",
			mcp.Description("Number of days to look ahead (default 14)"),
		),
	)
	s.mcpServer.AddTool(getUpcomingTestsTool, s.handleGetUpcomingTests)

	// Grades
	getRecentGradesTool := mcp.NewTool("get_recent_grades",
		mcp.WithDescription("Get the most recent grades with a weighted average"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of grades to return (default 10)"),
		),
	)
	s.mcpServer.AddTool(getRecentGradesTool, s.handleGetRecentGrades)

	// Schedule
	getScheduleTool := mcp.NewTool("get_schedule",
		mcp.WithDescription("Get the lesson schedule for a day"),
		mcp.WithString("date",
			mcp.Description("Date in YYYY-MM-DD format (default today)"),
		),
	)
	s.mcpServer.AddTool(getScheduleTool, s.handleGetSchedule)

	// Summary
	getStudentSummaryTool := mcp.NewTool("get_student_summary",
		mcp.WithDescription("Get a compact overview: homework count, next test, recent grades, today's lessons"),
	)
	s.mcpServer.AddTool(getStudentSummaryTool, s.handleGetStudentSummary)

	// Authentication
	checkAuthStatusTool := mcp.NewTool("check_auth_status",
		mcp.WithDescription("Check whether a valid session exists and when it expires"),
	)
	s.mcpServer.AddTool(checkAuthStatusTool, s.handleCheckAuthStatus)

	authenticateTool := mcp.NewTool("authenticate",
		mcp.WithDescription("Establish a session using stored tokens or credentials, without opening a browser"),
	)
	s.mcpServer.AddTool(authenticateTool, s.handleAuthenticate)

	refreshTokenTool := mcp.NewTool("refresh_token",
		mcp.WithDescription("Force a token refresh using the stored refresh token"),
	)
	s.mcpServer.AddTool(refreshTokenTool, s.handleRefreshToken)

	// Change detection
	checkChangesTool := mcp.NewTool("check_changes",
		mcp.WithDescription("Check for new grades, schedule changes, and homework deadlines since the last check"),
	)
	s.mcpServer.AddTool(checkChangesTool, s.handleCheckChanges)

	// Export
	exportScheduleTool := mcp.NewTool("export_schedule_ical",
		mcp.WithDescription("Export the schedule as an iCalendar file"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Output path for the .ics file"),
		),
		mcp.WithNumber("days",
			mcp.Description("Number of days to export (default 14)"),
		),
	)
	s.mcpServer.AddTool(exportScheduleTool, s.handleExportScheduleICal)

	// Agent context
	getContextTool := mcp.NewTool("get_context",
		mcp.WithDescription("Read the agent context: preferences, recent activity, cached data, and session notes"),
	)
	s.mcpServer.AddTool(getContextTool, s.handleGetContext)

	updatePreferencesTool := mcp.NewTool("update_preferences",
		mcp.WithDescription("Merge updates into the stored agent preferences"),
		mcp.WithObject("preferences",
			mcp.Required(),
			mcp.Description("Preference keys and values to merge"),
		),
	)
	s.mcpServer.AddTool(updatePreferencesTool, s.handleUpdatePreferences)

	updateContextNotesTool := mcp.NewTool("update_context_notes",
		mcp.WithDescription("Replace the markdown session notes in the agent context"),
		mcp.WithString("notes",
			mcp.Required(),
			mcp.Description("New markdown notes body"),
		),
	)
	s.mcpServer.AddTool(updateContextNotesTool, s.handleUpdateContextNotes)

	logActivityTool := mcp.NewTool("log_activity",
		mcp.WithDescription("Record an agent query in the context activity log"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The query or action to log"),
		),
	)
	s.mcpServer.AddTool(logActivityTool, s.handleLogActivity)
}
