package api

import "net/http"

const formPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>cohort</title>
<style>
body { font-family: sans-serif; max-width: 46rem; margin: 2rem auto; }
fieldset { margin-bottom: 2rem; }
label { display: block; margin: .5rem 0 .25rem; }
textarea { width: 100%; }
</style>
</head>
<body>
<h1>Persona synthesis</h1>
<form method="post" action="/api/v1/runs" enctype="multipart/form-data">
<fieldset>
<legend>Generate personas</legend>
<label for="dataset">Survey CSV</label>
<input id="dataset" type="file" name="dataset" accept=".csv,text/csv">
<label for="documents">Interview documents</label>
<input id="documents" type="file" name="documents" accept=".md,.txt,.pdf" multiple>
<p><button type="submit">Run</button></p>
</fieldset>
</form>
<form method="post" action="/api/v1/feedback" enctype="multipart/form-data">
<fieldset>
<legend>Marketing copy feedback</legend>
<label for="persona">Persona JSON</label>
<input id="persona" type="file" name="persona" accept=".json,application/json">
<label for="copy">Marketing copy</label>
<textarea id="copy" name="copy" rows="10"></textarea>
<p><button type="submit">Evaluate</button></p>
</fieldset>
</form>
</body>
</html>
`

func (s *Server) form(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(formPage))
}
