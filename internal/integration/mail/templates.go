package mail

import "html/template"

const layoutHTML = `{{define "layout"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8">
<style>
  body { font-family: -apple-system, system-ui, sans-serif; color: #1a1a1a; margin: 0; padding: 0; }
  .container { max-width: 600px; margin: 0 auto; padding: 24px; }
  .header { background: #1e40af; color: white; padding: 24px; text-align: center; border-radius: 8px 8px 0 0; }
  .header h1 { margin: 0; font-size: 20px; }
  .content { background: #f8fafc; padding: 24px; border: 1px solid #e2e8f0; }
  .footer { text-align: center; padding: 16px; color: #64748b; font-size: 12px; }
  .card { background: white; border: 1px solid #e2e8f0; border-radius: 8px; padding: 16px; margin: 12px 0; }
  .badge { display: inline-block; padding: 4px 10px; border-radius: 12px; font-size: 12px; font-weight: 600; }
  .badge-green { background: #dcfce7; color: #166534; }
  .badge-yellow { background: #fef9c3; color: #854d0e; }
  .badge-red { background: #fee2e2; color: #991b1b; }
  .badge-blue { background: #dbeafe; color: #1e40af; }
  .price { font-size: 18px; font-weight: 700; color: #166534; }
  .btn { display: inline-block; background: #1e40af; color: white; padding: 10px 20px; border-radius: 6px; text-decoration: none; font-weight: 600; }
  table { width: 100%; border-collapse: collapse; }
  td, th { text-align: left; padding: 8px 12px; border-bottom: 1px solid #e2e8f0; }
  th { background: #f1f5f9; font-size: 13px; color: #475569; }
</style>
</head>
<body>
<div class="container">
  <div class="header"><h1>🏞️ Water-Watcher</h1></div>
  <div class="content">
    <h2 style="margin-top:0">{{.Heading}}</h2>
    {{template "body" .}}
  </div>
  <div class="footer">
    <p>Water-Watcher &middot; Whitewater Rafting Tracker</p>
    <p>You're receiving this because of your notification preferences.</p>
  </div>
</div>
</body>
</html>{{end}}`

const dealHTML = `{{define "body"}}
<p>We found {{len .Deals}} gear {{if eq (len .Deals) 1}}deal{{else}}deals{{end}} matching your filters:</p>
{{range .Deals}}
<div class="card">
  <h3 style="margin:0 0 8px 0"><a href="{{.URL}}" style="color:#1e40af;text-decoration:none">{{.Title}}</a></h3>
  <span class="price">{{.Price}}</span>
  <span class="badge badge-blue" style="margin-left:8px">{{.Category}}</span>
  <p style="color:#64748b;margin:8px 0 0 0">📍 {{.Region}}</p>
</div>
{{end}}
<p style="text-align:center;margin-top:24px"><a href="{{.BaseURL}}/deals" class="btn">View All Deals</a></p>
{{end}}`

const conditionHTML = `{{define "body"}}
<div class="card">
  <h3 style="margin:0 0 12px 0">{{.RiverName}}</h3>
  <p>
    <span class="badge badge-yellow">{{.OldQuality}}</span>
    &rarr;
    <span class="badge {{.Badge}}">{{.NewQuality}}</span>
  </p>
  {{if .Details}}<table>{{range .Details}}<tr><td><strong>{{.Label}}</strong></td><td>{{.Value}}</td></tr>{{end}}</table>{{end}}
</div>
<p style="text-align:center;margin-top:24px"><a href="{{.Link}}" class="btn">View River Details</a></p>
{{end}}`

const hazardHTML = `{{define "body"}}
<p>{{len .Hazards}} new hazard{{if ne (len .Hazards) 1}}s{{end}} reported on <strong>{{.RiverName}}</strong>:</p>
{{range .Hazards}}
<div class="card">
  <h3 style="margin:0 0 8px 0">{{.Title}}</h3>
  <span class="badge {{.Badge}}">{{.Severity}}</span>
  <span class="badge badge-blue" style="margin-left:4px">{{.Type}}</span>
  {{if .Description}}<p style="color:#475569;margin:8px 0 0 0">{{.Description}}</p>{{end}}
</div>
{{end}}
<p style="text-align:center;margin-top:24px"><a href="{{.Link}}" class="btn">View River Details</a></p>
{{end}}`

const digestHTML = `{{define "body"}}
<p>Here's your weekly summary for <strong>{{.Date}}</strong>:</p>
<table>
  <tr><th>River</th><th>Quality</th><th>Flow</th><th>Runnability</th><th>Hazards</th></tr>
  {{range .Rivers}}<tr>
    <td><strong>{{.Name}}</strong></td>
    <td><span class="badge {{.Badge}}">{{.Quality}}</span></td>
    <td>{{.Flow}}</td>
    <td>{{.Runnability}}</td>
    <td>{{.Hazards}}</td>
  </tr>{{end}}
</table>
<p style="text-align:center;margin-top:24px"><a href="{{.BaseURL}}/rivers" class="btn">View All Rivers</a></p>
{{end}}`

const resetHTML = `{{define "body"}}
<p>Someone asked to reset the password for this account. The link below is valid for one hour.</p>
<p style="text-align:center;margin-top:24px"><a href="{{.Link}}" class="btn">Reset Password</a></p>
<p style="color:#64748b">If you did not ask for this, you can ignore this email.</p>
{{end}}`

func mustTemplate(body string) *template.Template {
	t := template.Must(template.New("email").Parse(layoutHTML))
	return template.Must(t.Parse(body))
}

var (
	dealTemplate      = mustTemplate(dealHTML)
	conditionTemplate = mustTemplate(conditionHTML)
	hazardTemplate    = mustTemplate(hazardHTML)
	digestTemplate    = mustTemplate(digestHTML)
	resetTemplate     = mustTemplate(resetHTML)
)
