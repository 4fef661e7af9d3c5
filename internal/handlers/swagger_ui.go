package handlers

import (
	"html/template"
	"net/http"

	"wxdata/pkg/logging"
)

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({ url: "{{.SpecURL}}", dom_id: "#swagger-ui", deepLinking: true });
        };
    </script>
</body>
</html>`))

// SwaggerUI serves an interactive page over the OpenAPI document.
func (h *WeatherHandler) SwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := swaggerPage.Execute(w, struct {
		Title   string
		SpecURL string
	}{Title: apiTitle + " Documentation", SpecURL: "/api/docs/openapi.json"})
	if err != nil {
		h.logger.Error(r.Context(), "[API_DOCS_ERROR] Failed to render documentation page", logging.Fields{}, err)
		h.metrics.RecordAPIError("render_error", "/api/docs")
	}
}
