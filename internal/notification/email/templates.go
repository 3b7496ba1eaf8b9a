package email

import (
	"bytes"
	"fmt"
	"html/template"
)

var templates = template.Must(template.New("email").Parse(`
{{define "activation"}}<h1>Welcome, {{.UserName}}!</h1>
<p>Please click the link below to activate your account:</p>
<p><a href="{{.Link}}">Activate account</a></p>
<p>If you did not sign up, ignore this message.</p>{{end}}

{{define "recovery"}}<h1>Password recovery</h1>
<p>Your recovery code is:</p>
<p style="font-size:24px;letter-spacing:4px"><b>{{.Code}}</b></p>
<p>If you did not request a password reset, ignore this message.</p>{{end}}

{{define "password_changed"}}<h1>Your password was changed</h1>
<p>All active sessions have been signed out.</p>
<p>If you did not do it, contact our support.</p>{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("error rendering %s email: %w", name, err)
	}
	return buf.String(), nil
}
