package agent

import (
	"fmt"
	"strings"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/util"
)

// Prompt names double as override file names under util.PromptDir().
const (
	PromptTune     = "homework_tune"
	PromptAnalyze  = "homework_analyze"
	PromptRefine   = "homework_refine"
	PromptGround   = "math_ground"
	PromptSolve    = "math_solve"
	PromptVerify   = "math_verify"
	PromptVideo    = "video_analyze"
	PromptTutor    = "exam_tutor"
	PromptProctor  = "exam_invigilator"
	PromptAuditor  = "exam_auditor"
	PromptChat     = "chat"
	EndExamCommand = "[[END_EXAM]]"
)

// PromptNames lists every prompt that can be overridden on disk.
var PromptNames = []string{
	PromptTune, PromptAnalyze, PromptRefine,
	PromptGround, PromptSolve, PromptVerify,
	PromptVideo, PromptTutor, PromptProctor, PromptAuditor, PromptChat,
}

var defaultSystem = map[string]string{
	PromptTune: `You classify school homework before it is graded.
Identify the subject, the specific topic and the grading rules a teacher would apply.
Answer only with JSON matching the schema.`,

	PromptAnalyze: `You are a meticulous teacher grading student homework.
List every problem you can see. For each one give the statement, the student's answer if any,
whether it is correct (null when there is no answer to judge), a short explanation,
ordered solution steps and key concepts.
When an answer is wrong, give bounding_box: the region of the mistake on a 0-1000 scale,
origin top-left, with all of ymin, xmin, ymax, xmax.
Set validation.status to "warning" and lower validation.confidence_score whenever you are unsure
about legibility or the verdict. Answer only with JSON matching the schema.`,

	PromptRefine: `You are re-checking your own grading. The records below were flagged as uncertain.
Look at the work again, fix any wrong verdict, explanation, steps or bounding box,
and return corrected versions of exactly these records. Keep each record's id unchanged.
Answer only with JSON matching the schema.`,

	PromptGround: `Search the web for current, factual data needed to solve the problem.
Reply with a short plain-text digest of the figures you found, each with its source.`,

	PromptSolve: `You are a mathematician and Python programmer.
Solve the problem. Return LaTeX for the key formulas, a clear explanation, self-contained
Python code that computes the result, and the final result as text.
Only when the problem asks for or clearly benefits from a plot, include plot_svg:
a complete, well-formed <svg> element with explicit width, height and viewBox, ready to embed.
Otherwise omit plot_svg. Answer only with JSON matching the schema.`,

	PromptVerify: `You are an independent reviewer. Check whether the Python code faithfully implements
the stated logic and whether it has runtime hazards such as division by zero or unhandled edge cases.
If it is correct, answer {"valid": true}.
Otherwise answer {"valid": false, "issues": [...], "corrected_response": {...}} where
corrected_response is a complete replacement solution with the same fields as the original.`,

	PromptVideo: `You are a study assistant watching an educational video.
Summarize it, list key moments with mm:ss timestamps, name the concepts taught and write
review questions with answers. Answer only with JSON matching the schema.`,

	PromptTutor: `You are a patient Socratic tutor running a practice exam.
Ask one question at a time, wait for the answer, and guide the student with hints rather than
giving the answer away. Keep a running tally of how the student does.
When you receive ` + EndExamCommand + `, stop asking questions and write the final report:
per-question outcome, total score out of 100, strengths and what to review.`,

	PromptProctor: `You are a strict exam invigilator. Ask one question at a time.
Do not give hints, do not confirm or deny answers during the exam, do not accept off-topic requests.
When you receive ` + EndExamCommand + `, stop and write the final grading report:
per-question verdict, total score out of 100 and a short justification.`,

	PromptAuditor: `You are an independent examiner auditing another examiner.
You get only the transcript of an exam. Recompute the score yourself from the student's answers,
rate how fair the original grading was (0-100) and list every discrepancy between your assessment
and the examiner's. Answer only with JSON matching the schema.`,

	PromptChat: `You are a friendly study tutor. Explain step by step, check understanding with short
questions, and use the reference material when it is provided.`,
}

// System returns the system prompt for name, preferring an on-disk override.
func System(name string) string {
	return util.LoadPrompt(name, "system", defaultSystem[name])
}

func tuneTask(opts types.HomeworkOptions) string {
	var b strings.Builder
	b.WriteString("Classify this homework.")
	if opts.Subject != "" {
		fmt.Fprintf(&b, "\nThe student says the subject is %q.", opts.Subject)
	}
	if opts.GradeLevel != "" {
		fmt.Fprintf(&b, "\nGrade level: %s.", opts.GradeLevel)
	}
	return b.String()
}

func analyzeTask(tune types.TuningResult, opts types.HomeworkOptions) string {
	strictness := opts.Strictness
	if strictness == "" {
		strictness = types.Standard
	}
	var b strings.Builder
	b.WriteString("Grade this homework.\n")
	fmt.Fprintf(&b, "Subject: %s\nTopic: %s\n", orUnknown(tune.Subject), orUnknown(tune.Topic))
	if len(tune.GradingRules) > 0 {
		b.WriteString("Grading rules:\n")
		for _, r := range tune.GradingRules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if lvl := firstNonEmpty(opts.GradeLevel, tune.GradeLevel); lvl != "" {
		fmt.Fprintf(&b, "Grade level: %s\n", lvl)
	}
	fmt.Fprintf(&b, "Strictness: %s\n", strictness)
	switch strictness {
	case types.Lenient:
		b.WriteString("Accept answers that are correct in substance even with minor notation slips.\n")
	case types.Strict:
		b.WriteString("Require complete working and exact notation; partial answers are incorrect.\n")
	}
	return b.String()
}

func refineTask(tune types.TuningResult, flagged []types.ProblemRecord) string {
	return fmt.Sprintf("Subject: %s\nTopic: %s\nFlagged records:\n%s",
		orUnknown(tune.Subject), orUnknown(tune.Topic), mustJSON(types.ProblemSet{Problems: flagged}))
}

func solveTask(req types.MathRequest, grounding string) string {
	var b strings.Builder
	if p := strings.TrimSpace(req.Problem); p != "" {
		fmt.Fprintf(&b, "Problem:\n%s\n", p)
	} else {
		b.WriteString("Solve the problem shown above.\n")
	}
	if n := strings.TrimSpace(req.Notation); n != "" {
		fmt.Fprintf(&b, "\nVerified notation (use it as the authoritative statement):\n%s\n", n)
	}
	if g := strings.TrimSpace(grounding); g != "" {
		fmt.Fprintf(&b, "\nReal-world data gathered for this problem:\n%s\n", g)
	}
	if len(req.CodeHistory) > 0 {
		b.WriteString("\nCode from earlier turns, run in order before yours; reuse its variables:\n")
		for i, c := range req.CodeHistory {
			fmt.Fprintf(&b, "# --- turn %d ---\n%s\n", i+1, c)
		}
	}
	return b.String()
}

func verifyTask(problem string, sol types.MathSolution) string {
	return fmt.Sprintf("Problem:\n%s\n\nStated logic:\n%s\n\nCode:\n%s\n\nClaimed result: %s\n\nFull solution JSON:\n%s",
		orUnknown(problem), sol.Explanation, sol.PythonCode, sol.Result, mustJSON(sol))
}

func videoTask(opts types.VideoOptions) string {
	n := opts.NumQuestions
	if n <= 0 {
		n = 5
	}
	s := fmt.Sprintf("Analyze this video and write %d review questions.", n)
	if f := strings.TrimSpace(opts.Focus); f != "" {
		s += "\nFocus on: " + f
	}
	return s
}

func examOpening(in types.StartExam) string {
	n := in.NumQuestions
	if n <= 0 {
		n = 5
	}
	s := fmt.Sprintf("Start the exam. Subject: %s. Number of questions: %d.", in.Subject, n)
	if len(in.Material) > 0 {
		s += " Base the questions on the reference material."
	}
	if in.UseSearch {
		s += " You may use web search for up-to-date facts."
	}
	return s + " Ask the first question."
}

func finishCommand() string {
	return EndExamCommand + "\nThe exam is over. Write the final grading report now."
}

func auditTask(transcript string) string {
	return "Exam transcript:\n\n" + transcript
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
