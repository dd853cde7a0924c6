package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xraph/learngate/gemini"
)

// Output token budgets per endpoint.
const (
	learningPathTokens = 8192
	tutorTokens        = 2048
)

// StudentProfile is the learner description sent with every AI request.
type StudentProfile struct {
	Name              string `json:"name"`
	Country           string `json:"country"`
	EducationalSystem string `json:"educationalSystem"`
	Strengths         string `json:"strengths"`
	Weaknesses        string `json:"weaknesses"`
}

func or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (p *StudentProfile) summary(fallback string) string {
	return fmt.Sprintf(`- Name: %s
- Country: %s
- Educational System: %s
- Strengths: %s
- Weaknesses: %s`,
		or(p.Name, "Student"),
		or(p.Country, fallback),
		or(p.EducationalSystem, fallback),
		or(p.Strengths, "None"),
		or(p.Weaknesses, "None"),
	)
}

func compactJSON(v json.RawMessage, empty string) string {
	if len(v) == 0 || string(v) == "null" {
		return empty
	}
	return string(v)
}

func tasksPrompt(p *StudentProfile) gemini.Request {
	return gemini.Request{
		SystemInstruction: `You are an educational assistant. Generate 4 practical study tasks for a single student based on the profile below.
Return the result strictly as JSON: an array of task objects.
Each task object must have:
- "title" (short),
- "description" (concise steps or resources),
- "difficulty" ("Easy"|"Medium"|"Hard"),
- "estimatedMinutes" (integer)
- "answer" (detailed solution/answer with step-by-step explanation)

For the "answer" field:
- Provide complete solutions for problems/exercises
- Include step-by-step explanations
- Add helpful tips or common mistakes to avoid
- Make answers educational and detailed (3-5 sentences minimum)
- Format for easy reading

Use local context where useful and keep tasks actionable in low-resource settings.
Return only JSON.`,
		UserContent: "Student profile:\n" + p.summary("Unknown"),
	}
}

func skillsPrompt(p *StudentProfile) gemini.Request {
	return gemini.Request{
		SystemInstruction: "You are an educational assessment assistant for African students.",
		UserContent: fmt.Sprintf(`Based on the student's profile below, estimate TWO categories of skills:

1. ACADEMIC SKILLS (5-6 skills): Traditional academic competencies relevant to their education system
2. TECHNOLOGY SKILLS (5-6 skills): Digital literacy and tech skills relevant for career readiness

For each skill, provide a score from 0 to 100 indicating current competency.

Consider:
- Student's educational system and country context
- Available technology infrastructure in %s
- Career opportunities in African tech ecosystem
- Skills that can be learned with low resources (mobile-first)
- Local job market demands

Student profile:
%s

Return strictly as JSON with this structure:
{
  "academic": {
    "Numeracy": 72,
    "Reading Comprehension": 80,
    "Problem Solving": 60,
    "Critical Thinking": 70,
    "Writing Skills": 65
  },
  "technology": {
    "Digital Literacy": 45,
    "Mobile Computing": 55,
    "Internet Research": 70,
    "Basic Coding": 30,
    "Data Entry & Spreadsheets": 65,
    "Email & Communication": 75
  }
}

Focus on practical, achievable tech skills that are in-demand in Africa.
Return only JSON.`, or(p.Country, "their region"), p.summary("Unknown")),
	}
}

func achievementsPrompt(p *StudentProfile, tasks, skills json.RawMessage) gemini.Request {
	return gemini.Request{
		SystemInstruction: "You are an achievement engine.",
		UserContent: fmt.Sprintf(`Create up to 5 achievement objects for this student based on the profile, tasks, and skills.
Each achievement object should have:
- "title"
- "description"
- "criteria" (short explanation of how to earn it)
- "date" (ISO string or empty for not yet achieved)

Student profile:
%s

Current tasks: %s
Current skills: %s

Return only JSON array.`, p.summary("Unknown"), compactJSON(tasks, "[]"), compactJSON(skills, "{}")),
	}
}

func learningPathPrompt(p *StudentProfile, skillName string, currentScore float64, category string) gemini.Request {
	tech := category == "technology"

	system := "You are an educational content creator specializing in academic skill development."
	focus := fmt.Sprintf(`IMPORTANT for Academic Skills:
- Align with %s curriculum
- Use local examples from %s
- Consider low-resource classroom settings
- Include offline practice activities
- Reference local educational resources`, or(p.EducationalSystem, "the local"), or(p.Country, "the student's country"))
	career := ""
	if tech {
		system = "You are an educational content creator specializing in technology education for African students."
		focus = `IMPORTANT for Technology Skills:
- Focus on mobile-first learning (most students use smartphones)
- Suggest FREE resources and tools available in Africa
- Consider low bandwidth situations
- Include practical projects they can do offline
- Mention local tech communities and opportunities (e.g., iHub Kenya, CcHub Nigeria)
- Emphasize skills valuable for freelancing/remote work
- Recommend apps available on Google Play Store`
		career = `
  "careerOpportunities": [
    "Specific job/freelance opportunity 1",
    "Opportunity 2...",
    "Opportunity 3..."
  ],`
	}

	user := fmt.Sprintf(`Generate a personalized learning path for this student to improve their %s skill from %g%% proficiency to mastery.

Student Profile:
%s

%s

Create a JSON response with:
{
  "learningSteps": [
    {
      "step": 1,
      "title": "...",
      "description": "Detailed explanation of what to learn...",
      "estimatedDays": 3,
      "resources": "Specific free tools/apps/websites",
      "offline": true
    },
    ...5-7 progressive steps
  ],
  "practiceExercises": [
    {
      "title": "...",
      "description": "Clear instructions for the exercise...",
      "difficulty": "Easy",
      "toolsNeeded": "smartphone with internet",
      "estimatedTime": "30 mins"
    },
    ...4-6 exercises from easy to hard
  ],
  "quickTips": [
    "Practical tip 1 specific to %s",
    "Tip 2...",
    "Tip 3..."
  ],
  "freeResources": [
    {
      "name": "Resource name",
      "type": "app|website|youtube|pdf",
      "url": "actual URL or 'Available offline'",
      "offline": true,
      "description": "Why this resource is useful"
    },
    ...5-8 resources
  ],%s
  "milestones": [
    {"progress": 25, "achievement": "What you'll achieve at 25%%"},
    {"progress": 50, "achievement": "What you'll achieve at 50%%"},
    {"progress": 75, "achievement": "What you'll achieve at 75%%"},
    {"progress": 100, "achievement": "Master level achievement"}
  ]
}

Make it highly practical and achievable with limited resources.
Return only valid JSON.`, skillName, currentScore, p.summary("Unknown"), focus, or(p.Country, "the student's country"), career)

	return gemini.Request{
		SystemInstruction: system,
		UserContent:       user,
		MaxOutputTokens:   learningPathTokens,
	}
}

func tutorPrompt(p *StudentProfile, message string) gemini.Request {
	system := fmt.Sprintf(`You are a personalized AI tutor for %s who is studying %s in %s.

Student's Profile:
- Name: %s
- Country: %s
- Educational System: %s
- Strengths: %s
- Areas for Improvement: %s

Be supportive, use local examples and low-tech suggestions where helpful.`,
		or(p.Name, "a student"),
		or(p.EducationalSystem, "their curriculum"),
		or(p.Country, "their country"),
		or(p.Name, "Student"),
		or(p.Country, "Not specified"),
		or(p.EducationalSystem, "Not specified"),
		or(p.Strengths, "Not specified"),
		or(p.Weaknesses, "Not specified"),
	)
	return gemini.Request{
		SystemInstruction: system,
		UserContent:       "User question: " + message,
		MaxOutputTokens:   tutorTokens,
	}
}

func recommendationsPrompt(p *StudentProfile, completedTasks, streak int, skills json.RawMessage) gemini.Request {
	return gemini.Request{
		SystemInstruction: "You are a career advisor for African students.",
		UserContent: fmt.Sprintf(`Based on this student's progress, recommend 3-5 skills they should learn next.

Student Profile:
%s

Progress:
- Tasks Completed: %d
- Current Streak: %d days
- Current Skills: %s

Return JSON:
{
  "recommendations": [
    {
      "skillName": "...",
      "category": "academic|technology",
      "priority": "high|medium|low",
      "reason": "Why this skill is important for this student",
      "estimatedWeeks": 4,
      "prerequisites": ["skill1", "skill2"],
      "careerBenefit": "How this helps their career in Africa"
    }
  ]
}

Focus on practical skills with high demand in African job markets.`, p.summary("Unknown"), completedTasks, streak, compactJSON(skills, "{}")),
	}
}
