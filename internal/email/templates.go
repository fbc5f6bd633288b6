package email

import (
	"fmt"
	"html"
	"strings"
)

// QuizResultsParams holds the data for the email sent right after a lead
// submits a completed quiz.
type QuizResultsParams struct {
	To          string
	Name        string
	Score       int
	MaxScore    int
	Percentage  int
	Band        string // quiz.Band value: "strong" | "promising" | "developing"
	TrackingURL string // click-through link; clicking it ends the drip sequence
}

// QuizResults renders the quiz-results email.
func QuizResults(p QuizResultsParams) Message {
	first := "there"
	if f := strings.Fields(p.Name); len(f) > 0 {
		first = f[0]
	}

	var verdict string
	switch p.Band {
	case "strong":
		verdict = "Your profile is a strong match for the scholarship programme."
	case "promising":
		verdict = "Your profile shows real promise for the scholarship programme."
	default:
		verdict = "You are eligible to apply, and the programme team can help you build a stronger application."
	}

	link := html.EscapeString(p.TrackingURL)

	return Message{
		To:      p.To,
		Subject: fmt.Sprintf("%s, your scholarship assessment results", first),
		HTML: fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 560px; margin: 0 auto; padding: 24px;">
  <h2 style="margin-bottom: 8px;">Your assessment results</h2>
  <p>Hi %s,</p>
  <p>You scored <strong>%d out of %d</strong> (%d%%) on the MBA scholarship
  assessment. %s</p>
  <p>The next step is the online application. It takes about ten minutes.</p>
  <p style="margin: 32px 0;">
    <a href="%s"
       style="background: #7c1d2e; color: #ffffff; padding: 12px 24px;
              border-radius: 6px; text-decoration: none; font-weight: 600;">
      Start my application
    </a>
  </p>
  <p style="color: #6b7280; font-size: 14px;">
    If the button above does not work, copy this URL:<br>
    <a href="%s" style="color: #6b7280;">%s</a>
  </p>
  <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 32px 0;">
  <p style="color: #9ca3af; font-size: 12px;">
    Online MBA Scholarship Programme
  </p>
</body>
</html>`, html.EscapeString(first), p.Score, p.MaxScore, p.Percentage, verdict, link, link, link),
	}
}

// Custom wraps admin-authored content in the standard layout. content is
// trusted HTML from the dashboard editor and is inserted as-is; plain text
// gets its line breaks preserved.
func Custom(to, subject, content string) Message {
	body := content
	if !strings.Contains(content, "<") {
		body = strings.ReplaceAll(html.EscapeString(content), "\n", "<br>\n")
	}

	return Message{
		To:      to,
		Subject: subject,
		HTML: fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 560px; margin: 0 auto; padding: 24px;">
  %s
  <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 32px 0;">
  <p style="color: #9ca3af; font-size: 12px;">
    Online MBA Scholarship Programme
  </p>
</body>
</html>`, body),
	}
}
