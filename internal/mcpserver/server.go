// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes learnmate tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/learnmate/internal/retrieval"
	"github.com/starford/learnmate/internal/scheduler"
	"github.com/starford/learnmate/internal/studyservice"
	"github.com/starford/learnmate/internal/suggest"
	"github.com/starford/learnmate/internal/vectorindex"
)

const guideURI = "learnmate://guide"

// Searcher runs similarity queries over a subject index.
type Searcher interface {
	Search(ctx context.Context, subjectID int64, query string, k int) ([]retrieval.Result, error)
}

// Answerer suggests the correct option of a question.
type Answerer interface {
	CorrectAnswer(ctx context.Context, cmd suggest.Command) (string, error)
}

// Sweeper processes pending resources on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (scheduler.Result, error)
}

// Server wraps the MCP server with learnmate tools.
type Server struct {
	mcp     *server.MCPServer
	study   *studyservice.Service
	search  Searcher
	answers Answerer
	sweeper Sweeper
}

// New creates a new MCP server with all learnmate tools registered.
func New(study *studyservice.Service, search Searcher, answers Answerer, sweeper Sweeper) *Server {
	s := &Server{study: study, search: search, answers: answers, sweeper: sweeper}

	s.mcp = server.NewMCPServer(
		"learnmate",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_subjects",
		mcp.WithDescription("List every subject with its resources."),
	), s.listSubjects)

	s.mcp.AddTool(mcp.NewTool("list_resources",
		mcp.WithDescription("List the resources of a subject with their processing status."),
		mcp.WithNumber("subject_id", mcp.Required(), mcp.Description("Subject id")),
	), s.listResources)

	s.mcp.AddTool(mcp.NewTool("search_materials",
		mcp.WithDescription("Similarity search over the processed material of a subject."),
		mcp.WithNumber("subject_id", mcp.Required(), mcp.Description("Subject id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of chunks (default 5)")),
	), s.searchMaterials)

	s.mcp.AddTool(mcp.NewTool("suggest_answer",
		mcp.WithDescription("Suggest the correct answer of a multiple-choice question "+
			"using the subject's material. Read "+guideURI+" first."),
		mcp.WithNumber("subject_id", mcp.Required(), mcp.Description("Subject id")),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question text")),
		mcp.WithArray("answers", mcp.Required(),
			mcp.Description("Answer options in display order"),
			mcp.WithStringItems()),
	), s.suggestAnswer)

	s.mcp.AddTool(mcp.NewTool("practice_exam",
		mcp.WithDescription("Sample stored exam questions of a subject into a practice exam."),
		mcp.WithNumber("subject_id", mcp.Required(), mcp.Description("Subject id")),
		mcp.WithNumber("num_questions", mcp.Description("Number of questions (default 10)")),
	), s.practiceExam)

	s.mcp.AddTool(mcp.NewTool("process_pending",
		mcp.WithDescription("Ingest every pending resource now."),
	), s.processPending)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Study Tools Guide",
			mcp.WithResourceDescription("How the learnmate tools fit together."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuide,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func subjectID(req mcp.CallToolRequest) (int64, error) {
	id, err := req.RequireInt("subject_id")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("subject_id must be positive, got %d", id)
	}
	return int64(id), nil
}

func (s *Server) listSubjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjects, err := s.study.ListSubjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(subjects)
}

func (s *Server) listResources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := subjectID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := s.study.ListResources(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(list)
}

func (s *Server) searchMaterials(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := subjectID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.search.Search(ctx, id, query, req.GetInt("limit", retrieval.DefaultK))
	if errors.Is(err, vectorindex.ErrNoIndex) {
		return mcp.NewToolResultText("no indexed material for this subject"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) suggestAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := subjectID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	options, err := req.RequireStringSlice("answers")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cmd := suggest.Command{SubjectID: id, Question: suggest.Question{Text: question}}
	for _, o := range options {
		cmd.Question.Answers = append(cmd.Question.Answers, suggest.Answer{Text: o})
	}
	out, err := s.answers.CorrectAnswer(ctx, cmd)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) practiceExam(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := subjectID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.study.PracticeExam(ctx, id, req.GetInt("num_questions", 10))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(e)
}

func (s *Server) processPending(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("processed: %d, failed: %d", res.Processed, res.Failed)), nil
}

func (s *Server) readGuide(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     StudyGuide,
		},
	}, nil
}
