package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/gemini"
	"github.com/xraph/learngate/plan"
)

type profileRequest struct {
	StudentProfile *StudentProfile `json:"studentProfile"`
}

type achievementsRequest struct {
	StudentProfile *StudentProfile `json:"studentProfile"`
	Tasks          json.RawMessage `json:"tasks"`
	Skills         json.RawMessage `json:"skills"`
}

type learningPathRequest struct {
	StudentProfile *StudentProfile `json:"studentProfile"`
	SkillName      string          `json:"skillName"`
	CurrentScore   *float64        `json:"currentScore"`
	Category       string          `json:"category"`
}

type tutorRequest struct {
	StudentProfile *StudentProfile `json:"studentProfile"`
	UserMessage    string          `json:"userMessage"`
}

type recommendationsRequest struct {
	StudentProfile      *StudentProfile `json:"studentProfile"`
	CompletedTasksCount int             `json:"completedTasksCount"`
	CurrentStreak       int             `json:"currentStreak"`
	Skills              json.RawMessage `json:"skills"`
}

type proxyRequest struct {
	SystemPrompt string `json:"systemPrompt"`
	UserPrompt   string `json:"userPrompt"`
	MaxTokens    int    `json:"maxTokens"`
}

const missingProfile = "Missing studentProfile in request body"

func (s *Server) generateTasks(c *gin.Context) {
	var req profileRequest
	if !bind(c, &req) {
		return
	}
	if req.StudentProfile == nil {
		respondBadRequest(c, missingProfile)
		return
	}
	s.generate(c, plan.FeatureTaskGeneration, tasksPrompt(req.StudentProfile), "Failed to generate tasks")
}

func (s *Server) analyzeSkills(c *gin.Context) {
	var req profileRequest
	if !bind(c, &req) {
		return
	}
	if req.StudentProfile == nil {
		respondBadRequest(c, missingProfile)
		return
	}
	s.generate(c, plan.FeatureSkillsAnalysis, skillsPrompt(req.StudentProfile), "Failed to analyze skills")
}

func (s *Server) generateAchievements(c *gin.Context) {
	var req achievementsRequest
	if !bind(c, &req) {
		return
	}
	if req.StudentProfile == nil {
		respondBadRequest(c, missingProfile)
		return
	}
	s.generate(c, plan.FeatureAchievements,
		achievementsPrompt(req.StudentProfile, req.Tasks, req.Skills),
		"Failed to generate achievements")
}

func (s *Server) generateLearningPath(c *gin.Context) {
	var req learningPathRequest
	if !bind(c, &req) {
		return
	}
	if req.StudentProfile == nil || strings.TrimSpace(req.SkillName) == "" || req.CurrentScore == nil || req.Category == "" {
		respondBadRequest(c, "Missing required fields: studentProfile, skillName, currentScore, category")
		return
	}
	s.generate(c, plan.FeatureLearningPaths,
		learningPathPrompt(req.StudentProfile, req.SkillName, *req.CurrentScore, req.Category),
		"Failed to generate learning path")
}

func (s *Server) tutorChat(c *gin.Context) {
	var req tutorRequest
	if !bind(c, &req) {
		return
	}
	if req.StudentProfile == nil || strings.TrimSpace(req.UserMessage) == "" {
		respondBadRequest(c, "Missing required fields: studentProfile, userMessage")
		return
	}
	s.generate(c, plan.FeatureAITutorQueries, tutorPrompt(req.StudentProfile, req.UserMessage), "Failed to get tutor response")
}

// skillRecommendations is not quota-governed.
func (s *Server) skillRecommendations(c *gin.Context) {
	var req recommendationsRequest
	if !bind(c, &req) {
		return
	}
	profile := req.StudentProfile
	if profile == nil {
		profile = &StudentProfile{}
	}
	s.generate(c, "",
		recommendationsPrompt(profile, req.CompletedTasksCount, req.CurrentStreak, req.Skills),
		"Failed to generate recommendations")
}

// geminiProxy forwards caller-supplied prompts. It answers in both the
// legacy content-parts shape and a flat response field.
func (s *Server) geminiProxy(c *gin.Context) {
	var req proxyRequest
	if !bind(c, &req) {
		return
	}
	if strings.TrimSpace(req.SystemPrompt) == "" || strings.TrimSpace(req.UserPrompt) == "" {
		respondBadRequest(c, "Missing required fields: systemPrompt, userPrompt")
		return
	}

	text, _, err := s.gateway.Generate(c.Request.Context(), userID(c), "", gemini.Request{
		SystemInstruction: req.SystemPrompt,
		UserContent:       req.UserPrompt,
		MaxOutputTokens:   req.MaxTokens,
	})
	if err != nil {
		s.respondError(c, err, "Failed to generate content")
		return
	}
	if text == "" {
		text = "No response received from Gemini."
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"content":  []gin.H{{"text": text}},
		"response": text,
	})
}

func (s *Server) getSubscription(c *gin.Context) {
	sub, _, err := s.gateway.GetOrCreateSubscription(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"subscription": sub,
	})
}

func (s *Server) generate(c *gin.Context, feature string, req gemini.Request, failure string) {
	text, _, err := s.gateway.Generate(c.Request.Context(), userID(c), feature, req)
	if err != nil {
		if errors.Is(err, learngate.ErrUsageCheckFailed) {
			s.logger.Error("usage check failed",
				"user_id", userID(c),
				"feature", feature,
				"error", err,
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "Failed to check usage limits"})
			return
		}
		s.respondError(c, err, failure)
		return
	}
	respondContent(c, text)
}

// bind decodes the JSON body, answering 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return false
	}
	return true
}
