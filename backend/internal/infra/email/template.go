package email

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
)

var deletionHTMLTemplate = template.Must(template.New("deletion_html").Parse(`<p>Hallo Admin,</p>
<p>für den Prompt <strong>{{.Title}}</strong> wurde eine Löschanfrage gestellt.</p>
<ul>
<li>Gemeldet von: {{.Requester}}</li>
<li>Zeitpunkt: {{.When}}</li>
<li>Erstellt von: {{.CreatedBy}}</li>
</ul>
<p>Begründung:</p>
<blockquote>{{.Reason}}</blockquote>
{{if .URL}}<p><a href="{{.URL}}">Zum Admin-Bereich</a></p>{{end}}
<p>Prompt Managerin</p>`))

// composeDeletionContent 生成删除申请通知的主题、纯文本与 HTML 正文。
func composeDeletionContent(baseURL string, notice promptdomain.DeletionNotice) (subject string, textBody string, htmlBody string) {
	title := strings.TrimSpace(notice.PromptTitle)
	if title == "" {
		title = notice.PromptID
	}
	requester := requesterLabel(notice)
	when := notice.RequestedAt.In(time.UTC).Format("02.01.2006 15:04 MST")
	adminURL := buildAdminURL(baseURL)

	subject = fmt.Sprintf("Löschanfrage: %s", title)

	var text strings.Builder
	fmt.Fprintf(&text, "Hallo Admin,\n\nfür den Prompt \"%s\" (ID %s) wurde eine Löschanfrage gestellt.\n\n", title, notice.PromptID)
	fmt.Fprintf(&text, "Gemeldet von: %s\nZeitpunkt: %s\nErstellt von: %s\n\nBegründung:\n%s\n", requester, when, notice.CreatedBy, notice.Reason)
	if adminURL != "" {
		fmt.Fprintf(&text, "\nAdmin-Bereich: %s\n", adminURL)
	}
	text.WriteString("\nPrompt Managerin")

	data := struct {
		Title     string
		Requester string
		When      string
		CreatedBy string
		Reason    string
		URL       string
	}{title, requester, when, notice.CreatedBy, notice.Reason, adminURL}

	var html strings.Builder
	_ = deletionHTMLTemplate.Execute(&html, data)
	return subject, text.String(), html.String()
}

func buildAdminURL(baseURL string) string {
	trimmed := strings.TrimRight(normaliseBaseURL(baseURL), "/")
	if trimmed == "" {
		return ""
	}
	return trimmed + "/admin"
}

func requesterLabel(notice promptdomain.DeletionNotice) string {
	name := strings.TrimSpace(notice.RequesterName)
	if name == "" {
		name = "Anonym"
	}
	if notice.RequesterCode == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, notice.RequesterCode)
}
