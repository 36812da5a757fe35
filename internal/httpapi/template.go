package httpapi

import "html/template"

var albumTemplate = template.Must(template.New("album").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Album</title>
<style>
body { margin: 0; background: #111; color: #eee; font-family: sans-serif; }
.group { margin: 24px auto; max-width: 900px; }
.group h2 { font-size: 14px; font-weight: normal; color: #888; padding: 0 8px; }
.group p.caption { font-size: 13px; color: #bbb; padding: 0 8px; margin: 4px 0; }
.items { display: flex; flex-wrap: wrap; gap: 8px; padding: 0 8px; }
.items img, .items video { max-width: 280px; max-height: 280px; border-radius: 4px; }
</style>
</head>
<body>
{{range .Groups}}
<div class="group">
<h2>Group {{.Sequence}}</h2>
{{if .Caption}}<p class="caption">{{.Caption}}</p>{{end}}
<div class="items">
{{range .Items}}
{{if eq .Kind "video"}}<video controls preload="metadata" title="{{.Caption}}" src="/media/{{.Reference}}"></video>{{else}}<img loading="lazy" src="/media/{{.Reference}}" alt="{{.Caption}}">{{end}}
{{end}}
</div>
</div>
{{end}}
</body>
</html>
`))
