package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/magister-tools/magctl/internal/ical"
	"github.com/magister-tools/magctl/internal/service"
)

// handleGetHomework handles the get_homework tool request
func (s *Server) handleGetHomework(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	opts := service.HomeworkOptions{Days: 7, WithAttachments: true}
	if v, ok := args["days"].(float64); ok && v > 0 {
		opts.Days = int(v)
	}
	if v, ok := args["subject"].(string); ok {
		opts.Subject = v
	}
	if v, ok := args["include_completed"].(bool); ok {
		opts.IncludeCompleted = v
	}

	svc, err := s.service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	days, err := svc.Homework(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch homework: %v", err)), nil
	}

	type labeledDay struct {
		service.HomeworkDay
		Label string `json:"label"`
	}
	out := make([]labeledDay, 0, len(days))
	for i := range days {
		out = append(out, labeledDay{HomeworkDay: days[i], Label: days[i].Label()})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal homework: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleGetUpcomingTests handles the get_upcoming_tests tool request
func (s *Server) handleGetUpcomingTests(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	days := 14
	if v, ok := args["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	svc, err := s.service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	tests, err := svc.UpcomingTests(ctx, days)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch tests: %v", err)), nil
	}

	data, err := json.Marshal(tests)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal tests: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleGetRecentGrades handles the get_recent_grades tool request
func (s *Server) handleGetRecentGrades(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	svc, err := s.service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	grades, err := svc.RecentGrades(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch grades: %v", err)), nil
	}

	result := map[string]interface{}{"grades": grades}
	if avg, ok := service.WeightedAverage(grades); ok {
		result["weighted_average"] = avg
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal grades: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleGetSchedule handles the get_schedule tool request
func (s *Server) handleGetSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	day := time.Now()
	if v, ok := args["date"].(string); ok && v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", v)), nil
		}
		day = parsed
	}

	svc, err := s.service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	lessons, err := svc.Schedule(ctx, day)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch schedule: %v", err)), nil
	}

	data, err := json.Marshal(lessons)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal schedule: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleGetStudentSummary handles the get_student_summary tool request
func (s *Server) handleGetStudentSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	summary, err := svc.StudentSummary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to build summary: %v", err)), nil
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleCheckAuthStatus handles the check_auth_status tool request
func (s *Server) handleCheckAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := map[string]interface{}{
		"school":        s.cfg.School,
		"authenticated": false,
	}

	token, err := s.session.Store().Get()
	if err == nil && token != nil {
		status["authenticated"] = !token.IsExpired()
		status["has_refresh_token"] = token.HasRefreshToken()
		if token.PersonName != "" {
			status["person_name"] = token.PersonName
		}
		if remaining, ok := token.TimeUntilExpiry(); ok {
			status["expires_in_seconds"] = int(remaining.Seconds())
		}
	}
	status["has_credentials"] = s.session.Credentials().Has()

	data, err := json.Marshal(status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleAuthenticate handles the authenticate tool request
func (s *Server) handleAuthenticate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := s.session.EnsureAuthenticated(ctx, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	result := map[string]interface{}{
		"authenticated": true,
		"school":        token.School,
	}
	if token.PersonName != "" {
		result["person_name"] = token.PersonName
	}
	if remaining, ok := token.TimeUntilExpiry(); ok {
		result["expires_in_seconds"] = int(remaining.Seconds())
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleRefreshToken handles the refresh_token tool request
func (s *Server) handleRefreshToken(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := s.session.Refresher().Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refresh failed: %v", err)), nil
	}

	result := map[string]interface{}{"refreshed": true}
	if remaining, ok := token.TimeUntilExpiry(); ok {
		result["expires_in_seconds"] = int(remaining.Seconds())
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleCheckChanges handles the check_changes tool request
func (s *Server) handleCheckChanges(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	changes, err := svc.CheckChanges(ctx, s.tracker, s.cfg.Notifications)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("change check failed: %v", err)), nil
	}

	result := map[string]interface{}{
		"changes":     changes,
		"initialized": s.tracker.IsInitialized(),
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal changes: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleExportScheduleICal handles the export_schedule_ical tool request
func (s *Server) handleExportScheduleICal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments type"), nil
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return mcp.NewToolResultError("missing or invalid 'path' argument"), nil
	}
	days := 14
	if v, ok := args["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	svc, err := s.service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("authentication failed: %v", err)), nil
	}

	start := time.Now()
	lessons, err := svc.ScheduleRange(ctx, start, start.AddDate(0, 0, days))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to fetch schedule: %v", err)), nil
	}

	calendar := ical.ScheduleCalendar(lessons, "Magister Rooster")
	if err := ical.WriteFile(path, calendar); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write calendar: %v", err)), nil
	}

	data, err := json.Marshal(map[string]interface{}{"path": path, "events": len(lessons)})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleGetContext handles the get_context tool request
func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stored := s.context.Read()

	result := map[string]interface{}{
		"frontmatter": stored.Frontmatter,
		"notes":       stored.Body,
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal context: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleUpdatePreferences handles the update_preferences tool request
func (s *Server) handleUpdatePreferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments type"), nil
	}

	updates, ok := args["preferences"].(map[string]interface{})
	if !ok || len(updates) == 0 {
		return mcp.NewToolResultError("missing or invalid 'preferences' argument"), nil
	}

	if err := s.context.UpdatePreferences(updates); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update preferences: %v", err)), nil
	}

	data, err := json.Marshal(s.context.Preferences())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal preferences: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleUpdateContextNotes handles the update_context_notes tool request
func (s *Server) handleUpdateContextNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments type"), nil
	}

	notes, ok := args["notes"].(string)
	if !ok {
		return mcp.NewToolResultError("missing or invalid 'notes' argument"), nil
	}

	if err := s.context.UpdateNotes(notes); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update notes: %v", err)), nil
	}
	return mcp.NewToolResultText(`{"updated": true}`), nil
}

// handleLogActivity handles the log_activity tool request
func (s *Server) handleLogActivity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments type"), nil
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return mcp.NewToolResultError("missing or invalid 'query' argument"), nil
	}

	if err := s.context.LogActivity(query); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to log activity: %v", err)), nil
	}
	return mcp.NewToolResultText(`{"logged": true}`), nil
}
