// Package docs registers the certwatch OpenAPI description with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["meta"],
                "summary": "Database health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/meta": {
            "get": {
                "produces": ["application/json"],
                "tags": ["meta"],
                "summary": "Get server metadata",
                "responses": {
                    "200": {"description": "Server metadata", "schema": {"$ref": "#/definitions/server.MetaResponse"}}
                }
            }
        },
        "/notifications/check": {
            "get": {
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Run the expiry notification check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.CheckResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/server.CheckErrorResponse"}}
                }
            }
        },
        "/notifications/history": {
            "get": {
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "List notification history",
                "parameters": [
                    {"type": "integer", "description": "Maximum rows (1-500, default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.NotificationHistoryView"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/notifications/upcoming": {
            "get": {
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "List upcoming expiries",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.UpcomingExpiry"}}}
                }
            }
        },
        "/admin/notifications/send": {
            "post": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Send notifications now",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.SendResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.APIResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "data": {},
                "message": {"type": "string"},
                "error_type": {"type": "string"}
            }
        },
        "models.NotificationHistoryView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "item_id": {"type": "string"},
                "item_type": {"type": "string"},
                "item_name": {"type": "string"},
                "team_id": {"type": "string"},
                "team_name": {"type": "string"},
                "days_until_expiry": {"type": "integer"},
                "notification_type": {"type": "string"},
                "recipients": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string"},
                "error_message": {"type": "string"},
                "triggered_by": {"type": "string"},
                "sent_at": {"type": "string"}
            }
        },
        "models.UpcomingExpiry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "type": {"type": "string"},
                "team_id": {"type": "string"},
                "expiry_date": {"type": "string"},
                "days_remaining": {"type": "integer"},
                "next_notification_day": {"type": "integer"},
                "days_until_next_notification": {"type": "integer"}
            }
        },
        "server.CheckResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "degraded": {"type": "boolean"},
                "checked": {"type": "integer"},
                "sent": {"type": "integer"},
                "skipped": {"type": "integer"},
                "failed": {"type": "integer"}
            }
        },
        "server.CheckErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "server.MetaResponse": {
            "type": "object",
            "properties": {
                "version": {"type": "string"},
                "scheduler_enabled": {"type": "boolean"},
                "scheduler_interval": {"type": "string"},
                "lookahead_days": {"type": "integer"},
                "thresholds": {"type": "array", "items": {"type": "integer"}},
                "smtp_configured": {"type": "boolean"}
            }
        },
        "server.SendResponse": {
            "type": "object",
            "properties": {
                "degraded": {"type": "boolean"},
                "report": {"type": "object"},
                "history": {"type": "array", "items": {"$ref": "#/definitions/models.NotificationHistoryView"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "certwatch API",
	Description:      "Certificate and service ID expiry notifications.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
