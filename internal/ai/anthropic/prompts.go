package anthropic

import (
	"fmt"
	"strings"

	"github.com/DukeRupert/toeicprep/internal/ai"
)

var partDescriptions = map[int]string{
	1: "Part 1 (Photographs): describe a workplace photo in one sentence; write the scene description in the passage field",
	2: "Part 2 (Question-Response): a spoken question or statement with three possible responses (choices A-C only)",
	3: "Part 3 (Conversations): a short workplace conversation transcript followed by a question",
	4: "Part 4 (Talks): a short announcement, voicemail or talk transcript followed by a question",
	5: "Part 5 (Incomplete Sentences): a single sentence with a blank testing grammar or vocabulary",
	6: "Part 6 (Text Completion): a short business text with a blank to complete",
	7: "Part 7 (Reading Comprehension): an email, notice or article followed by a comprehension question",
}

// buildQuestionPrompt creates the prompt for a batch of practice questions
func buildQuestionPrompt(req ai.QuestionRequest) string {
	var b strings.Builder

	b.WriteString("You are an experienced TOEIC Listening & Reading test writer. ")
	b.WriteString("Write original practice questions that match the style and difficulty of the real exam.\n\n")
	fmt.Fprintf(&b, "Format: %s.\n", partDescriptions[req.Part])
	fmt.Fprintf(&b, "Number of questions: %d.\n", req.Count)
	fmt.Fprintf(&b, "Difficulty: %s.\n", req.Difficulty)
	if req.Topic != "" {
		fmt.Fprintf(&b, "Business topic: %s.\n", req.Topic)
	}

	b.WriteString(`
Guidelines:
- Use realistic international business contexts (offices, travel, shipping, finance, hiring)
- Exactly one choice is correct; distractors must be plausible
- Explanations are one or two sentences and name the grammar point or clue

**Response Format:**
Return a JSON object with this exact structure:

{
  "questions": [
    {
      "part": 5,
      "passage": "Optional passage or transcript",
      "prompt": "The question or sentence with a blank",
      "choices": ["(A) ...", "(B) ...", "(C) ...", "(D) ..."],
      "answer": "B",
      "explanation": "Why B is correct"
    }
  ]
}

**Important:** Return ONLY the JSON object, no additional text or explanation.`)

	return b.String()
}

// buildExplainPrompt creates the tutoring prompt for a follow-up question
func buildExplainPrompt(req ai.ChatRequest) string {
	var b strings.Builder

	b.WriteString("You are a patient TOEIC tutor. Answer the learner in clear, simple English, ")
	b.WriteString("in no more than 150 words. Focus on the rule or clue that decides the answer.\n\n")
	fmt.Fprintf(&b, "Question:\n%s\n\n", req.Question)
	if req.UserAnswer != "" {
		fmt.Fprintf(&b, "Learner's answer: %s\n", req.UserAnswer)
	}
	if req.CorrectAnswer != "" {
		fmt.Fprintf(&b, "Correct answer: %s\n", req.CorrectAnswer)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "Why is my answer wrong?"
	}
	fmt.Fprintf(&b, "\nLearner asks: %s", message)

	return b.String()
}
