// Package docs stands in for swag init's generated docs package: it
// registers Terma's OpenAPI template with swaggo/swag so swaggo/gin-swagger
// can serve it at /swagger.
package docs

import "github.com/swaggo/swag"

// SwaggerInfo holds exported Swagger Info so it can be modified by code
// that imports this package, the same shape swag init emits.
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Terma API",
	Description:      "Multi-session PTY terminal server: REST session management, WebSocket terminal I/O, and LLM-assisted command explanations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{.Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/sessions": {
            "get": {
                "tags": ["sessions"],
                "summary": "List sessions",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["sessions"],
                "summary": "Create a session",
                "responses": {"200": {"description": "OK"}, "500": {"description": "spawn failed"}}
            }
        },
        "/api/sessions/{id}": {
            "get": {
                "tags": ["sessions"],
                "summary": "Get session info",
                "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}
            },
            "delete": {
                "tags": ["sessions"],
                "summary": "Close a session",
                "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}
            }
        },
        "/api/sessions/{id}/write": {
            "post": {
                "tags": ["sessions"],
                "summary": "Write input to a session",
                "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}
            }
        },
        "/api/sessions/{id}/read": {
            "get": {
                "tags": ["sessions"],
                "summary": "Read recent output from a session",
                "responses": {"200": {"description": "OK"}, "404": {"description": "not found"}}
            }
        }
    }
}`
