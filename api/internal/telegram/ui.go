package telegram

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
)

func formatHomework(rep types.HomeworkReport) string {
	var b strings.Builder
	b.WriteString("📚 ")
	b.WriteString(orDash(rep.Subject))
	if rep.Topic != "" {
		b.WriteString(" / ")
		b.WriteString(rep.Topic)
	}
	fmt.Fprintf(&b, "\nScore: %d/%d\n", rep.Score.Correct, rep.Score.Total)
	if len(rep.Problems) == 0 {
		b.WriteString("\nNo problems found on the photo.")
		return b.String()
	}
	for i, p := range rep.Problems {
		mark := "❔"
		if p.IsCorrect != nil {
			mark = "❌"
			if *p.IsCorrect {
				mark = "✅"
			}
		}
		fmt.Fprintf(&b, "\n%d) %s %s\n", i+1, mark, strings.TrimSpace(p.ProblemStatement))
		if p.StudentAnswer != "" {
			fmt.Fprintf(&b, "   Your answer: %s\n", p.StudentAnswer)
		}
		if p.IsCorrect != nil && !*p.IsCorrect && p.CorrectAnswer != "" {
			fmt.Fprintf(&b, "   Correct answer: %s\n", p.CorrectAnswer)
		}
		if p.Explanation != "" {
			fmt.Fprintf(&b, "   %s\n", p.Explanation)
		}
		if p.Validation.Status == types.StatusWarning {
			fmt.Fprintf(&b, "   ⚠️ not sure about this one (%d%%)\n", p.Validation.ConfidenceScore)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatMath(res types.MathLabResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧮 Result: %s\n", orDash(res.Result))
	if res.Explanation != "" {
		b.WriteString("\n")
		b.WriteString(res.Explanation)
		b.WriteString("\n")
	}
	if res.Latex != "" {
		fmt.Fprintf(&b, "\nLaTeX: %s\n", res.Latex)
	}
	if res.WasAutoRepaired {
		b.WriteString("\n🔁 Corrected after an independent check.\n")
	}
	writeSources(&b, res.Sources)
	return strings.TrimRight(b.String(), "\n")
}

func formatReply(rep types.Reply) string {
	var b strings.Builder
	b.WriteString(rep.Text)
	writeSources(&b, rep.Sources)
	return b.String()
}

func formatExamReport(rep types.ExamReport) string {
	var b strings.Builder
	b.WriteString("📝 Exam report\n\n")
	b.WriteString(strings.TrimSpace(rep.Report))
	if a := rep.Audit; a != nil {
		fmt.Fprintf(&b, "\n\n⚖️ Independent audit: %.0f/100, fairness %d/100", a.AuditedScore, a.FairnessScore)
		for _, d := range a.Discrepancies {
			fmt.Fprintf(&b, "\n• %s", d)
		}
		if a.Feedback != "" {
			b.WriteString("\n")
			b.WriteString(a.Feedback)
		}
	}
	return b.String()
}

func writeSources(b *strings.Builder, sources []llm.Source) {
	if len(sources) == 0 {
		return
	}
	b.WriteString("\n🔗 Sources:")
	for _, s := range sources {
		title := s.Title
		if title == "" {
			title = s.URI
		}
		fmt.Fprintf(b, "\n%s %s", title, s.URI)
	}
}

// splitMessage cuts text into pieces of at most limit runes, preferring line
// breaks.
func splitMessage(text string, limit int) []string {
	var out []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > 0 {
			cut = nl
		}
		out = append(out, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" || len(out) == 0 {
		out = append(out, text)
	}
	return out
}

func byteOffset(s string, runes int) int {
	i := 0
	for pos := range s {
		if i == runes {
			return pos
		}
		i++
	}
	return len(s)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
