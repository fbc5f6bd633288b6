package sequence

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

// Content is a rendered drip email. The zero value means nothing to send.
type Content struct {
	Subject string
	HTML    string
}

// Empty reports whether c is the no-op sentinel.
func (c Content) Empty() bool {
	return c.Subject == "" && c.HTML == ""
}

// Resolver renders stage emails. TrackBaseURL is the public base URL of this
// service; the click-through link points at its /api/track endpoint.
type Resolver struct {
	TrackBaseURL string
}

// TrackingURL is the link embedded in every drip email for token.
func (r Resolver) TrackingURL(token string) string {
	return strings.TrimRight(r.TrackBaseURL, "/") + "/api/track?token=" + url.QueryEscape(token)
}

// Resolve returns the subject and body for stage. Stages outside 1..3 yield
// the empty Content.
func (r Resolver) Resolve(stage int, name, token string) Content {
	first := firstName(name)
	link := r.TrackingURL(token)

	switch stage {
	case StageFirst:
		return Content{
			Subject: fmt.Sprintf("%s, your MBA scholarship is reserved", first),
			HTML: layout(first, "Your scholarship is reserved",
				`<p>Congratulations on completing the scholarship assessment. Based on your
  results we have reserved a scholarship place for you on the online MBA.</p>
  <p>Reserved places are held for a limited time. Start your application to
  secure it.</p>`,
				link, "Start my application"),
		}
	case StageSecond:
		return Content{
			Subject: fmt.Sprintf("%s, scholarship places are filling up", first),
			HTML: layout(first, "Places are filling up",
				`<p>Most of this intake's scholarship places have already been claimed.
  Yours is still on hold, but we can only keep it for a little longer.</p>
  <p>The application takes about ten minutes and you can save your progress.</p>`,
				link, "Continue to the application"),
		}
	case StageFinal:
		return Content{
			Subject: fmt.Sprintf("Last chance, %s: your scholarship place expires soon", first),
			HTML: layout(first, "Final reminder",
				`<p>This is the last reminder we will send about your reserved scholarship
  place. If you do not start an application it will be released to the next
  candidate on the waiting list.</p>`,
				link, "Claim my scholarship"),
		}
	default:
		return Content{}
	}
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func layout(first, heading, body, link, cta string) string {
	escLink := html.EscapeString(link)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #1a1a1a; max-width: 560px; margin: 0 auto; padding: 24px;">
  <h2 style="margin-bottom: 8px;">%s</h2>
  <p>Hi %s,</p>
  %s
  <p style="margin: 32px 0;">
    <a href="%s"
       style="background: #7c1d2e; color: #ffffff; padding: 12px 24px;
              border-radius: 6px; text-decoration: none; font-weight: 600;">
      %s
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
</html>`, heading, html.EscapeString(first), body, escLink, cta, escLink, escLink)
}
